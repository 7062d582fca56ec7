// Package pipeline assembles a slideshow video from still images and an audio track by
// driving the media engine through a fixed sequence of phases.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/maauso/memory-images/internal/engine"
	"github.com/maauso/memory-images/internal/imageprep"
	"github.com/maauso/memory-images/internal/progress"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

// Default output geometry.
const (
	DefaultWidth       = 1280
	DefaultHeight      = 720
	DefaultFPS         = 25
	DefaultJPEGQuality = 90
)

// Static errors for pipeline operations.
var (
	// ErrNoImages is returned when a request carries no images.
	ErrNoImages = errors.New("no images to render")
	// ErrNoAudio is returned when a request carries no audio payload.
	ErrNoAudio = errors.New("no audio track to render")
	// ErrRenderInProgress is returned when another render holds the working storage.
	ErrRenderInProgress = errors.New("a render is already in progress")
)

// PhaseError reports the phase in which a render failed.
type PhaseError struct {
	Phase progress.Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s phase: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Loader hands out the ready engine, initialising it on first use.
type Loader interface {
	Ensure(ctx context.Context, onProgress engine.ProgressFunc) (engine.Engine, error)
}

// Observer is notified of how long each completed phase took.
type Observer interface {
	ObservePhase(phase progress.Phase, d time.Duration)
}

// Assembler runs renders against a single engine, one at a time.
type Assembler struct {
	loader      Loader
	logger      *slog.Logger
	filterMode  transition.FilterMode
	width       int
	height      int
	fps         int
	normalize   bool
	jpegQuality int
	lockPath    string
	observer    Observer

	mu sync.Mutex
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithFilterMode selects how segment filters are derived.
func WithFilterMode(m transition.FilterMode) Option {
	return func(a *Assembler) {
		if m.IsValid() {
			a.filterMode = m
		}
	}
}

// WithFrameSize sets the output frame size. Non-positive values are ignored.
func WithFrameSize(width, height int) Option {
	return func(a *Assembler) {
		if width > 0 && height > 0 {
			a.width, a.height = width, height
		}
	}
}

// WithFPS sets the output frame rate. Non-positive values are ignored.
func WithFPS(fps int) Option {
	return func(a *Assembler) {
		if fps > 0 {
			a.fps = fps
		}
	}
}

// WithImageNormalization re-encodes every image as an upright JPEG before staging.
func WithImageNormalization(quality int) Option {
	return func(a *Assembler) {
		a.normalize = true
		if quality > 0 && quality <= 100 {
			a.jpegQuality = quality
		}
	}
}

// WithLockFile guards renders across processes with an advisory lock on path.
func WithLockFile(path string) Option {
	return func(a *Assembler) {
		a.lockPath = path
	}
}

// WithObserver registers a receiver of phase timings.
func WithObserver(o Observer) Option {
	return func(a *Assembler) {
		a.observer = o
	}
}

// NewAssembler creates an Assembler drawing its engine from loader.
func NewAssembler(loader Loader, opts ...Option) *Assembler {
	a := &Assembler{
		loader:      loader,
		logger:      slog.Default(),
		filterMode:  transition.FilterModeTransition,
		width:       DefaultWidth,
		height:      DefaultHeight,
		fps:         DefaultFPS,
		jpegQuality: DefaultJPEGQuality,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FilterMode returns the configured segment filter mode.
func (a *Assembler) FilterMode() transition.FilterMode {
	return a.filterMode
}

// Generate renders req into an MP4. Progress is reported to sink, which may be nil.
//
// Phases run strictly in order with one engine operation at a time. Any failure aborts
// the render and no partial output is returned. A Generate issued while another is
// running returns ErrRenderInProgress without touching the engine.
func (a *Assembler) Generate(ctx context.Context, req render.Request, sink progress.Sink) (*render.Result, error) {
	if len(req.Images) == 0 {
		return nil, ErrNoImages
	}
	if req.Audio == nil || len(req.Audio.Data) == 0 {
		return nil, ErrNoAudio
	}

	if !a.mu.TryLock() {
		return nil, ErrRenderInProgress
	}
	defer a.mu.Unlock()

	release, err := a.lockWorkDir()
	if err != nil {
		return nil, err
	}
	defer release()

	start := time.Now()
	a.logger.Info("render started",
		slog.Int("images", len(req.Images)),
		slog.String("transition_mode", string(req.Transitions.Mode)),
		slog.String("filter_mode", string(a.filterMode)),
	)

	r := &run{
		Assembler: a,
		req:       req,
		timing:    effectiveTiming(req.Timing),
		tracker:   progress.NewTracker(sink),
	}
	result, err := r.execute(ctx)
	if err != nil {
		a.logger.Error("render failed",
			slog.String("error", err.Error()),
			slog.Duration("elapsed", time.Since(start)),
		)
		return nil, err
	}

	a.logger.Info("render completed",
		slog.Int("bytes", len(result.Data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (a *Assembler) lockWorkDir() (func(), error) {
	if a.lockPath == "" {
		return func() {}, nil
	}
	if err := os.MkdirAll(filepath.Dir(a.lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	lock := flock.New(a.lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquire render lock: %w", err)
	}
	if !ok {
		return nil, ErrRenderInProgress
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			a.logger.Warn("failed to release render lock", slog.String("error", err.Error()))
		}
	}, nil
}

// effectiveTiming substitutes defaults for durations a caller left unset.
func effectiveTiming(t render.Timing) render.Timing {
	def := render.DefaultTiming()
	if t.PhotoDuration <= 0 {
		t.PhotoDuration = def.PhotoDuration
	}
	if t.TransitionDuration <= 0 {
		t.TransitionDuration = def.TransitionDuration
	}
	return t
}

// run is the state of one Generate call.
type run struct {
	*Assembler
	req     render.Request
	timing  render.Timing
	tracker *progress.Tracker
	eng     engine.Engine
}

func (r *run) execute(ctx context.Context) (*render.Result, error) {
	steps := []struct {
		phase progress.Phase
		fn    func(context.Context) error
	}{
		{progress.PhaseEngine, r.ensureEngine},
		{progress.PhaseStage, r.stage},
		{progress.PhaseEncode, r.encode},
		{progress.PhaseConcat, r.concat},
		{progress.PhaseMux, r.mux},
	}
	defer func() {
		if r.eng != nil {
			r.eng.SetProgressHandler(nil)
		}
	}()

	for _, s := range steps {
		if err := r.phase(ctx, s.phase, s.fn); err != nil {
			return nil, err
		}
	}

	result := &render.Result{MediaType: render.MediaTypeMP4}
	err := r.phase(ctx, progress.PhaseFinalize, func(ctx context.Context) error {
		data, err := r.eng.ReadFile(ctx, OutputName)
		if err != nil {
			return fmt.Errorf("read %s: %w", OutputName, err)
		}
		result.Data = data
		result.Media = r.inspectOutput(ctx)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.tracker.Complete()
	return result, nil
}

// inspectOutput probes the final file when the engine supports it. A probe failure
// does not fail the render.
func (r *run) inspectOutput(ctx context.Context) *render.MediaInfo {
	p, ok := r.eng.(engine.Prober)
	if !ok {
		return nil
	}
	res, err := p.Probe(ctx, OutputName)
	if err != nil {
		r.logger.Warn("failed to inspect output",
			slog.String("file", OutputName),
			slog.String("error", err.Error()),
		)
		return nil
	}
	info := &render.MediaInfo{
		DurationSeconds: res.DurationSeconds(),
		VideoStreams:    res.VideoStreamCount(),
		AudioStreams:    res.AudioStreamCount(),
	}
	r.logger.Info("output inspected",
		slog.Float64("duration_seconds", info.DurationSeconds),
		slog.Float64("estimated_seconds", render.EstimateDuration(len(r.req.Images), r.timing)),
		slog.Int("video_streams", info.VideoStreams),
		slog.Int("audio_streams", info.AudioStreams),
	)
	return info
}

func (r *run) phase(ctx context.Context, p progress.Phase, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &PhaseError{Phase: p, Err: err}
	}
	r.tracker.Enter(p, "")
	start := time.Now()
	if err := fn(ctx); err != nil {
		return &PhaseError{Phase: p, Err: err}
	}
	elapsed := time.Since(start)
	r.logger.Debug("render phase done",
		slog.String("phase", string(p)),
		slog.Duration("elapsed", elapsed),
	)
	if r.observer != nil {
		r.observer.ObservePhase(p, elapsed)
	}
	return nil
}

func (r *run) ensureEngine(ctx context.Context) error {
	eng, err := r.loader.Ensure(ctx, func(f float64) {
		r.tracker.Engine(f, "")
	})
	if err != nil {
		return err
	}
	r.eng = eng
	return nil
}

func (r *run) stage(ctx context.Context) error {
	if err := r.eng.WriteFile(ctx, AudioName, r.req.Audio.Data); err != nil {
		return fmt.Errorf("stage audio: %w", err)
	}

	total := len(r.req.Images)
	for i, img := range r.req.Images {
		r.tracker.Milestone(i*20/total, fmt.Sprintf("Loading image %d/%d...", i+1, total))

		data := img.Data
		if r.normalize {
			var err error
			data, err = imageprep.Normalize(data, r.jpegQuality)
			if err != nil {
				return fmt.Errorf("stage image %d: %w", i, err)
			}
		}
		if err := r.eng.WriteFile(ctx, ImageName(i), data); err != nil {
			return fmt.Errorf("stage image %d: %w", i, err)
		}
	}
	r.tracker.Milestone(20, "")
	return nil
}

func (r *run) encode(ctx context.Context) error {
	total := len(r.req.Images)
	params := transition.EffectParams{
		Width:              r.width,
		Height:             r.height,
		FPS:                r.fps,
		PhotoDuration:      r.timing.PhotoDuration,
		TransitionDuration: r.timing.TransitionDuration,
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		kind := r.req.Transitions.KindFor(i)
		filter := transition.SegmentFilter(r.filterMode, kind, params)
		status := fmt.Sprintf("Creating video segment %d/%d...", i+1, total)

		done := float64(i)
		r.eng.SetProgressHandler(func(f float64) {
			r.tracker.EngineWithin((done+f)/float64(total), f, status)
		})
		r.logger.Debug("encoding segment",
			slog.Int("index", i),
			slog.String("transition", string(kind)),
			slog.String("filter", filter),
		)

		args := EncodeArgs(i, filter, r.timing.PhotoDuration, r.fps)
		if err := r.eng.Exec(ctx, args, engine.ExecOptions{ExpectedDuration: r.timing.PhotoDuration}); err != nil {
			return fmt.Errorf("encode segment %d: %w", i, err)
		}
		r.tracker.Fraction(float64(i+1)/float64(total), status)
	}
	return nil
}

func (r *run) concat(ctx context.Context) error {
	total := len(r.req.Images)
	if err := r.eng.WriteFile(ctx, ManifestName, Manifest(total)); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	r.forwardEngineProgress()
	expected := float64(total) * r.timing.PhotoDuration
	if err := r.eng.Exec(ctx, ConcatArgs(), engine.ExecOptions{ExpectedDuration: expected}); err != nil {
		return fmt.Errorf("concatenate segments: %w", err)
	}
	return nil
}

func (r *run) mux(ctx context.Context) error {
	r.forwardEngineProgress()
	expected := float64(len(r.req.Images)) * r.timing.PhotoDuration
	if err := r.eng.Exec(ctx, MuxArgs(), engine.ExecOptions{ExpectedDuration: expected}); err != nil {
		return fmt.Errorf("mux audio: %w", err)
	}
	return nil
}

// forwardEngineProgress reports engine progress without moving the job percentage.
func (r *run) forwardEngineProgress() {
	r.eng.SetProgressHandler(func(f float64) {
		r.tracker.Engine(f, "")
	})
}
