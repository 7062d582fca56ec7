package engine

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		t.Skip("ffmpeg not found in PATH, skipping test")
	}
	if _, err := exec.LookPath("ffprobe"); err != nil {
		t.Skip("ffprobe not found in PATH, skipping test")
	}
}

type stubEngine struct{}

func (stubEngine) WriteFile(context.Context, string, []byte) error { return nil }
func (stubEngine) ReadFile(context.Context, string) ([]byte, error) { return nil, nil }
func (stubEngine) Exec(context.Context, []string, ExecOptions) error { return nil }
func (stubEngine) SetProgressHandler(ProgressFunc) {}

func TestValidateName(t *testing.T) {
	valid := []string{"audio.mp3", "image0.jpg", "segment12.mp4", "concat.txt"}
	for _, name := range valid {
		assert.NoError(t, ValidateName(name), name)
	}

	invalid := []string{"", ".", "..", "../etc/passwd", "a/b.mp4", `a\b.mp4`, "/abs.mp4"}
	for _, name := range invalid {
		assert.ErrorIs(t, ValidateName(name), ErrInvalidName, name)
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		name   string
		output string
		major  int
		minor  int
		ok     bool
	}{
		{"release", "ffmpeg version 6.1.1 Copyright (c) 2000-2023", 6, 1, true},
		{"n prefix", "ffmpeg version n7.0 Copyright", 7, 0, true},
		{"distro suffix", "ffmpeg version 4.4.2-0ubuntu0.22.04.1 Copyright", 4, 4, true},
		{"git build", "ffmpeg version N-112345-gabcdef Copyright", 0, 0, false},
		{"garbage", "hello", 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			major, minor, ok := ParseVersion(tt.output)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.major, major)
			assert.Equal(t, tt.minor, minor)
		})
	}
}

func TestCheckVersion(t *testing.T) {
	v, err := checkVersion("ffmpeg version 3.4.8", 4)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
	assert.Equal(t, "3.4", v)

	v, err = checkVersion("ffmpeg version 5.1.2", 4)
	require.NoError(t, err)
	assert.Equal(t, "5.1", v)

	v, err = checkVersion("ffmpeg version N-1-gabc", 4)
	require.NoError(t, err)
	assert.Equal(t, "unknown", v)
}

func TestParseProgress(t *testing.T) {
	out := strings.Join([]string{
		"frame=10",
		"out_time_us=500000",
		"progress=continue",
		"out_time_ms=1000000",
		"out_time_us=N/A",
		"out_time_us=4000000",
		"progress=end",
	}, "\n")

	var got []float64
	ParseProgress(strings.NewReader(out), 2, func(f float64) { got = append(got, f) })

	require.Len(t, got, 4)
	assert.InDelta(t, 0.25, got[0], 1e-9)
	assert.InDelta(t, 0.5, got[1], 1e-9)
	assert.InDelta(t, 1, got[2], 1e-9)
	assert.InDelta(t, 1, got[3], 1e-9)
}

func TestParseProgress_NoExpectedDuration(t *testing.T) {
	var got []float64
	ParseProgress(strings.NewReader("out_time_us=100\nprogress=end\n"), 0, func(f float64) { got = append(got, f) })
	assert.Equal(t, []float64{1}, got)
}

func TestParseProgress_NilHandler(t *testing.T) {
	assert.NotPanics(t, func() {
		ParseProgress(strings.NewReader("out_time_us=100\n"), 1, nil)
	})
}

func TestFFmpegError(t *testing.T) {
	inner := errors.New("exit status 1")
	err := &FFmpegError{Args: []string{"-i", "x"}, Stderr: "boom", Err: inner}

	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "boom")
	assert.Contains(t, err.Error(), "-i")
}

func TestLineLogger(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	w := &lineLogger{logger: logger, output: "segment0.mp4"}

	_, err := w.Write([]byte("Input #0, image2\nStream #0"))
	require.NoError(t, err)
	_, err = w.Write([]byte(":0 Video: mjpeg\r\n\nconversion failed"))
	require.NoError(t, err)
	w.flush()

	got := out.String()
	assert.Equal(t, 3, strings.Count(got, "msg=ffmpeg"))
	assert.Contains(t, got, `line="Input #0, image2"`)
	assert.Contains(t, got, `line="Stream #0:0 Video: mjpeg"`)
	assert.Contains(t, got, `line="conversion failed"`)
	assert.Contains(t, got, "output=segment0.mp4")
}

func TestLineLogger_SkippedAboveDebug(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelInfo}))
	w := &lineLogger{logger: logger}

	n, err := w.Write([]byte("noise\n"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	w.flush()
	assert.Empty(t, out.String())
}

func TestLoader_InitialisesOnce(t *testing.T) {
	calls := 0
	var mu sync.Mutex
	loader := NewLoader(func(_ context.Context, report ProgressFunc) (Engine, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		report(0)
		report(1)
		return stubEngine{}, nil
	}, nil)

	var progress []float64
	eng1, err := loader.Ensure(context.Background(), func(f float64) { progress = append(progress, f) })
	require.NoError(t, err)
	eng2, err := loader.Ensure(context.Background(), nil)
	require.NoError(t, err)

	assert.Equal(t, eng1, eng2)
	assert.Equal(t, 1, calls)
	assert.Equal(t, []float64{0, 1}, progress)
	assert.True(t, loader.Ready())
}

func TestLoader_ConcurrentCallersShareInit(t *testing.T) {
	calls := 0
	loader := NewLoader(func(context.Context, ProgressFunc) (Engine, error) {
		calls++
		return stubEngine{}, nil
	}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := loader.Ensure(context.Background(), nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, calls)
}

func TestLoader_FailureIsRetried(t *testing.T) {
	attempts := 0
	loader := NewLoader(func(context.Context, ProgressFunc) (Engine, error) {
		attempts++
		if attempts == 1 {
			return nil, ErrCoreNotFound
		}
		return stubEngine{}, nil
	}, nil)

	_, err := loader.Ensure(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInitFailed)
	assert.ErrorIs(t, err, ErrCoreNotFound)
	assert.False(t, loader.Ready())

	_, err = loader.Ensure(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.True(t, loader.Ready())
}

func TestLoader_WaitersShareFailure(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var mu sync.Mutex
	calls := 0
	loader := NewLoader(func(context.Context, ProgressFunc) (Engine, error) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			close(started)
			<-release
		}
		return nil, ErrCoreNotFound
	}, nil)

	errs := make(chan error, 3)
	go func() {
		_, err := loader.Ensure(context.Background(), nil)
		errs <- err
	}()
	<-started
	for i := 0; i < 2; i++ {
		go func() {
			_, err := loader.Ensure(context.Background(), nil)
			errs <- err
		}()
	}
	require.Eventually(t, func() bool {
		loader.mu.Lock()
		defer loader.mu.Unlock()
		return loader.inflight != nil && loader.inflight.waiters == 2
	}, 2*time.Second, time.Millisecond)
	close(release)

	for i := 0; i < 3; i++ {
		err := <-errs
		assert.ErrorIs(t, err, ErrInitFailed)
		assert.ErrorIs(t, err, ErrCoreNotFound)
	}
	mu.Lock()
	assert.Equal(t, 1, calls)
	mu.Unlock()
	assert.False(t, loader.Ready())

	// The failure is not remembered once every waiter has it.
	_, err := loader.Ensure(context.Background(), nil)
	assert.ErrorIs(t, err, ErrCoreNotFound)
	mu.Lock()
	assert.Equal(t, 2, calls)
	mu.Unlock()
}

func TestLoader_WaiterGivesUpOnContext(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	loader := NewLoader(func(context.Context, ProgressFunc) (Engine, error) {
		close(started)
		<-release
		return stubEngine{}, nil
	}, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := loader.Ensure(context.Background(), nil)
		assert.NoError(t, err)
	}()
	<-started

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := loader.Ensure(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
	<-done
	assert.True(t, loader.Ready())
}

func TestNewFFmpegEngine_MissingBinary(t *testing.T) {
	_, err := NewFFmpegEngine(context.Background(), FFmpegConfig{
		FFmpegPath: "/nonexistent/ffmpeg-binary",
		WorkDir:    t.TempDir(),
	}, nil)
	assert.ErrorIs(t, err, ErrCoreNotFound)
}

func TestFFmpegEngine_WorkingStorage(t *testing.T) {
	skipIfNoFFmpeg(t)
	ctx := context.Background()

	var reports []float64
	eng, err := NewFFmpegEngine(ctx, FFmpegConfig{WorkDir: t.TempDir()}, func(f float64) {
		reports = append(reports, f)
	})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0.5, 1}, reports)

	require.NoError(t, eng.WriteFile(ctx, "concat.txt", []byte("file 'segment0.mp4'\n")))
	data, err := eng.ReadFile(ctx, "concat.txt")
	require.NoError(t, err)
	assert.Equal(t, "file 'segment0.mp4'\n", string(data))

	_, err = eng.ReadFile(ctx, "missing.mp4")
	assert.ErrorIs(t, err, ErrFileNotFound)

	assert.ErrorIs(t, eng.WriteFile(ctx, "../escape.txt", nil), ErrInvalidName)
}

func TestFFmpegEngine_ExecReportsProgress(t *testing.T) {
	skipIfNoFFmpeg(t)
	ctx := context.Background()

	eng, err := NewFFmpegEngine(ctx, FFmpegConfig{WorkDir: t.TempDir()}, nil)
	require.NoError(t, err)

	var last float64
	eng.SetProgressHandler(func(f float64) { last = f })

	err = eng.Exec(ctx, []string{
		"-f", "lavfi", "-i", "color=c=blue:s=64x64:d=1",
		"-r", "25", "-pix_fmt", "yuv420p", "-c:v", "libx264", "-preset", "ultrafast",
		"clip.mp4",
	}, ExecOptions{ExpectedDuration: 1})
	require.NoError(t, err)
	assert.InDelta(t, 1, last, 1e-9)

	res, err := eng.Probe(ctx, "clip.mp4")
	require.NoError(t, err)
	assert.Equal(t, 1, res.VideoStreamCount())
	assert.InDelta(t, 1.0, res.DurationSeconds(), 0.1)
}

func TestFFmpegEngine_ExecFailure(t *testing.T) {
	skipIfNoFFmpeg(t)
	ctx := context.Background()

	eng, err := NewFFmpegEngine(ctx, FFmpegConfig{WorkDir: t.TempDir()}, nil)
	require.NoError(t, err)

	err = eng.Exec(ctx, []string{"-i", "does-not-exist.jpg", "out.mp4"}, ExecOptions{})
	var ffErr *FFmpegError
	require.ErrorAs(t, err, &ffErr)
	assert.NotEmpty(t, ffErr.Stderr)
}
