package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/maauso/memory-images/internal/probe"
)

// DefaultMinMajorVersion is the oldest ffmpeg major release the engine accepts.
const DefaultMinMajorVersion = 4

// workSubdir is the directory under WorkDir holding the engine's working storage.
const workSubdir = "engine"

var versionPattern = regexp.MustCompile(`ffmpeg version n?(\d+)\.(\d+)`)

// FFmpegConfig configures an ffmpeg-backed engine.
type FFmpegConfig struct {
	// FFmpegPath is the ffmpeg binary. Defaults to "ffmpeg" resolved via PATH.
	FFmpegPath string
	// FFprobePath is the ffprobe binary. Defaults to "ffprobe" resolved via PATH.
	FFprobePath string
	// WorkDir is the parent of the working storage directory.
	WorkDir string
	// MinMajorVersion rejects older ffmpeg releases. Zero uses DefaultMinMajorVersion.
	MinMajorVersion int
	Logger          *slog.Logger
}

// FFmpegEngine implements Engine on top of the ffmpeg CLI, with a directory on disk
// as its working storage.
type FFmpegEngine struct {
	ffmpegPath  string
	ffprobePath string
	dir         string
	version     string
	logger      *slog.Logger

	mu       sync.Mutex
	progress ProgressFunc
}

var (
	_ Engine = (*FFmpegEngine)(nil)
	_ Prober = (*FFmpegEngine)(nil)
)

// FFmpegFactory returns a Factory that builds an FFmpegEngine from cfg.
func FFmpegFactory(cfg FFmpegConfig) Factory {
	return func(ctx context.Context, report ProgressFunc) (Engine, error) {
		return NewFFmpegEngine(ctx, cfg, report)
	}
}

// NewFFmpegEngine resolves the ffmpeg and ffprobe binaries, checks the ffmpeg version
// and prepares the working storage. report receives 0 at start, 0.5 once the binaries
// are resolved and 1 when the engine is ready.
func NewFFmpegEngine(ctx context.Context, cfg FFmpegConfig, report ProgressFunc) (*FFmpegEngine, error) {
	if report == nil {
		report = func(float64) {}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	report(0)

	ffmpegPath, err := exec.LookPath(orDefault(cfg.FFmpegPath, "ffmpeg"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCoreNotFound, err)
	}
	ffprobePath, err := exec.LookPath(orDefault(cfg.FFprobePath, "ffprobe"))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompanionNotFound, err)
	}
	report(0.5)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	out, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, fmt.Errorf("run ffmpeg -version: %w", err)
	}
	version, err := checkVersion(string(out), minMajor(cfg.MinMajorVersion))
	if err != nil {
		return nil, err
	}

	workDir := cfg.WorkDir
	if workDir == "" {
		workDir = os.TempDir()
	}
	dir := filepath.Join(workDir, workSubdir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create working storage: %w", err)
	}

	logger.Debug("ffmpeg resolved",
		slog.String("ffmpeg", ffmpegPath),
		slog.String("ffprobe", ffprobePath),
		slog.String("version", version),
		slog.String("dir", dir),
	)
	report(1)

	return &FFmpegEngine{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		dir:         dir,
		version:     version,
		logger:      logger,
	}, nil
}

// Dir returns the working storage directory.
func (e *FFmpegEngine) Dir() string {
	return e.dir
}

// Version returns the ffmpeg version string, e.g. "6.1".
func (e *FFmpegEngine) Version() string {
	return e.version
}

// WriteFile stores data under name in the working storage.
func (e *FFmpegEngine) WriteFile(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(e.dir, name), data, 0600); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// ReadFile returns the content stored under name.
func (e *FFmpegEngine) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(e.dir, name)) // #nosec G304 - name is validated above
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, name)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// SetProgressHandler registers fn as the receiver of Exec progress.
func (e *FFmpegEngine) SetProgressHandler(fn ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.progress = fn
}

// Exec runs ffmpeg with args inside the working storage. Machine-readable progress
// is requested on stdout and turned into fractions of opts.ExpectedDuration.
func (e *FFmpegEngine) Exec(ctx context.Context, args []string, opts ExecOptions) error {
	full := append([]string{"-hide_banner", "-nostats", "-y", "-progress", "pipe:1"}, args...)

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)
	cmd.Dir = e.dir

	var stderr bytes.Buffer
	logLines := &lineLogger{logger: e.logger}
	if len(args) > 0 {
		logLines.output = args[len(args)-1]
	}
	cmd.Stderr = io.MultiWriter(&stderr, logLines)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	e.mu.Lock()
	handler := e.progress
	e.mu.Unlock()
	ParseProgress(stdout, opts.ExpectedDuration, handler)

	err = cmd.Wait()
	logLines.flush()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		e.logger.Debug("ffmpeg failed",
			slog.String("args", strings.Join(args, " ")),
			slog.String("error", err.Error()),
		)
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}
	return nil
}

// Probe inspects a working storage entry with ffprobe.
func (e *FFmpegEngine) Probe(ctx context.Context, name string) (probe.Result, error) {
	if err := ValidateName(name); err != nil {
		return probe.Result{}, err
	}
	return probe.Inspect(ctx, e.ffprobePath, filepath.Join(e.dir, name))
}

// ParseProgress consumes ffmpeg "-progress" key=value output from r and reports
// out_time over expected as a fraction. A final "progress=end" reports 1. Reading
// continues to EOF even without a handler so the process never blocks on the pipe.
func ParseProgress(r io.Reader, expected float64, fn ProgressFunc) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if fn == nil {
			continue
		}
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		switch key {
		case "out_time_us", "out_time_ms":
			if expected <= 0 {
				continue
			}
			// Both keys carry microseconds.
			us, err := strconv.ParseInt(value, 10, 64)
			if err != nil || us < 0 {
				continue
			}
			f := float64(us) / 1e6 / expected
			if f > 1 {
				f = 1
			}
			fn(f)
		case "progress":
			if value == "end" {
				fn(1)
			}
		}
	}
	_, _ = io.Copy(io.Discard, r)
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, lastLines(e.Stderr, 20))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// ParseVersion extracts the major and minor release from "ffmpeg -version" output.
// ok is false for builds that do not report a release number, such as git snapshots.
func ParseVersion(output string) (major, minor int, ok bool) {
	m := versionPattern.FindStringSubmatch(output)
	if m == nil {
		return 0, 0, false
	}
	major, _ = strconv.Atoi(m[1])
	minor, _ = strconv.Atoi(m[2])
	return major, minor, true
}

func checkVersion(output string, minimum int) (string, error) {
	major, minor, ok := ParseVersion(output)
	if !ok {
		return "unknown", nil
	}
	version := fmt.Sprintf("%d.%d", major, minor)
	if major < minimum {
		return version, fmt.Errorf("%w: %s, need %d or newer", ErrUnsupportedVersion, version, minimum)
	}
	return version, nil
}

func minMajor(v int) int {
	if v <= 0 {
		return DefaultMinMajorVersion
	}
	return v
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// lineLogger writes each complete ffmpeg stderr line to the logger at debug level.
type lineLogger struct {
	logger *slog.Logger
	output string
	buf    []byte
}

func (w *lineLogger) Write(p []byte) (int, error) {
	if !w.logger.Enabled(context.Background(), slog.LevelDebug) {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// flush logs a trailing line that had no newline.
func (w *lineLogger) flush() {
	if len(w.buf) > 0 {
		w.emit(w.buf)
		w.buf = nil
	}
}

func (w *lineLogger) emit(line []byte) {
	text := strings.TrimSpace(string(line))
	if text == "" {
		return
	}
	w.logger.Debug("ffmpeg",
		slog.String("output", w.output),
		slog.String("line", text),
	)
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
