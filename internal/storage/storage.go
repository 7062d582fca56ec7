// Package storage keeps finished videos on local disk and optionally publishes them
// to S3. It defines the Storage port and its local and S3 implementations.
package storage

import (
	"context"
	"io"
)

// Storage persists rendered videos between the end of a render and their download.
type Storage interface {
	// SaveVideo stores the video of jobID and returns its path.
	SaveVideo(ctx context.Context, jobID string, data io.Reader) (path string, err error)

	// OpenVideo opens a stored video. The caller closes the returned ReadCloser.
	OpenVideo(ctx context.Context, path string) (io.ReadCloser, error)

	// RemoveVideo deletes a stored video. Removing a missing video is not an error.
	RemoveVideo(ctx context.Context, path string) error

	// Publish uploads data under key and returns its public URL.
	// Returns ErrS3NotConfigured when no remote store is configured.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
