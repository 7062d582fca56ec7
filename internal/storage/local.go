package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when publishing without an S3 bucket.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrInvalidJobID is returned for job IDs that cannot name a file.
	ErrInvalidJobID = errors.New("invalid job id")
	// ErrOutsideStorage is returned for paths that are not inside the output directory.
	ErrOutsideStorage = errors.New("path is outside the output directory")
)

// VideoExt is the extension of every stored video.
const VideoExt = ".mp4"

var _ Storage = (*LocalStorage)(nil)

// LocalStorage keeps videos in a directory on local disk.
type LocalStorage struct {
	outputDir string
}

// NewLocalStorage creates a LocalStorage rooted at outputDir, creating it if needed.
// An empty outputDir uses <os.TempDir()>/memory-images.
func NewLocalStorage(outputDir string) (*LocalStorage, error) {
	if outputDir == "" {
		outputDir = filepath.Join(os.TempDir(), "memory-images")
	}

	if err := os.MkdirAll(outputDir, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStorage{outputDir: outputDir}, nil
}

// OutputDir returns the directory videos are stored in.
func (s *LocalStorage) OutputDir() string {
	return s.outputDir
}

// SaveVideo writes data to <outputDir>/<jobID>.mp4. The file only appears under its
// final name once fully written.
func (s *LocalStorage) SaveVideo(ctx context.Context, jobID string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	if jobID == "" || strings.ContainsAny(jobID, `/\`) || jobID == "." || jobID == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidJobID, jobID)
	}

	f, err := os.CreateTemp(s.outputDir, jobID+"_*.part")
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}

	tmpName := f.Name()
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write video file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close video file: %w", err)
	}

	path := filepath.Join(s.outputDir, jobID+VideoExt)
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename video file: %w", err)
	}
	return path, nil
}

// OpenVideo opens a video previously returned by SaveVideo.
func (s *LocalStorage) OpenVideo(ctx context.Context, path string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	if err := s.contains(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 - path is checked to be inside outputDir
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	return f, nil
}

// RemoveVideo deletes a video previously returned by SaveVideo.
func (s *LocalStorage) RemoveVideo(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := s.contains(path); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove video file %s: %w", path, err)
	}
	return nil
}

// Publish is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) Publish(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

func (s *LocalStorage) contains(path string) error {
	rel, err := filepath.Rel(s.outputDir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return fmt.Errorf("%w: %s", ErrOutsideStorage, path)
	}
	return nil
}
