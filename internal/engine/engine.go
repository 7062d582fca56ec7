// Package engine provides the media-processing engine the assembly pipeline drives:
// a handle over ffmpeg with an addressable working storage, and a Loader that creates
// that handle once per process.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maauso/memory-images/internal/probe"
)

// Static errors for engine operations.
var (
	// ErrInitFailed wraps any failure while bringing the engine up.
	ErrInitFailed = errors.New("engine initialization failed")
	// ErrCoreNotFound is returned when the ffmpeg binary cannot be resolved.
	ErrCoreNotFound = errors.New("ffmpeg binary not found")
	// ErrCompanionNotFound is returned when the ffprobe binary cannot be resolved.
	ErrCompanionNotFound = errors.New("ffprobe binary not found")
	// ErrUnsupportedVersion is returned when ffmpeg is older than required.
	ErrUnsupportedVersion = errors.New("unsupported ffmpeg version")
	// ErrInvalidName is returned for working-storage names that are not plain file names.
	ErrInvalidName = errors.New("invalid working storage name")
	// ErrFileNotFound is returned when reading a working-storage entry that does not exist.
	ErrFileNotFound = errors.New("working storage entry not found")
)

// ProgressFunc receives fractional progress in [0,1].
type ProgressFunc func(fraction float64)

// ExecOptions tunes a single engine run.
type ExecOptions struct {
	// ExpectedDuration is the length in seconds of the media the run produces. When
	// positive, the engine reports progress as output time over this duration.
	ExpectedDuration float64
}

// Engine is a media-processing engine with its own working storage. Names passed to
// WriteFile, ReadFile and used inside Exec arguments are relative to that storage.
// Operations are issued one at a time; the engine is a single serial resource.
type Engine interface {
	// WriteFile stores data under name, replacing any previous entry.
	WriteFile(ctx context.Context, name string, data []byte) error

	// ReadFile returns the content stored under name.
	ReadFile(ctx context.Context, name string) ([]byte, error)

	// Exec runs one ffmpeg invocation with the given arguments.
	Exec(ctx context.Context, args []string, opts ExecOptions) error

	// SetProgressHandler registers the receiver of progress for subsequent Exec calls.
	// A nil handler disables progress reporting.
	SetProgressHandler(fn ProgressFunc)
}

// Prober is implemented by engines that can inspect entries of their working storage.
type Prober interface {
	Probe(ctx context.Context, name string) (probe.Result, error)
}

// Factory constructs and initialises an engine, reporting initialisation progress.
type Factory func(ctx context.Context, report ProgressFunc) (Engine, error)

// ValidateName checks that name addresses a single entry of the working storage.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`), filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}
