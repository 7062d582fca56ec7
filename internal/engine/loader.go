package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Loader lazily creates a single engine and hands the same instance to every caller.
//
// The first successful Ensure initialises the engine; later calls return it without
// touching the factory again. Callers arriving while an initialisation runs share its
// outcome, success or failure. A failure is not remembered past that point, so the next
// Ensure tries again. There is no teardown.
type Loader struct {
	factory Factory
	logger  *slog.Logger

	mu       sync.Mutex
	engine   Engine
	inflight *initCall
}

// initCall is one running initialisation. done is closed once eng and err are set.
type initCall struct {
	done    chan struct{}
	eng     Engine
	err     error
	waiters int
}

// NewLoader creates a Loader using factory to build the engine.
func NewLoader(factory Factory, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{factory: factory, logger: logger}
}

// Ensure returns the ready engine, initialising it on first use. Initialisation
// progress is forwarded to onProgress of the caller that started it; callers arriving
// while it runs wait for the same outcome without progress, or until ctx is done.
func (l *Loader) Ensure(ctx context.Context, onProgress ProgressFunc) (Engine, error) {
	l.mu.Lock()
	if l.engine != nil {
		eng := l.engine
		l.mu.Unlock()
		return eng, nil
	}
	if c := l.inflight; c != nil {
		c.waiters++
		l.mu.Unlock()
		l.logger.Debug("waiting for media engine initialization")
		select {
		case <-c.done:
			return c.eng, c.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrInitFailed, ctx.Err())
		}
	}
	c := &initCall{done: make(chan struct{})}
	l.inflight = c
	l.mu.Unlock()

	c.eng, c.err = l.initialize(ctx, onProgress)

	l.mu.Lock()
	if c.err == nil {
		l.engine = c.eng
	}
	l.inflight = nil
	l.mu.Unlock()
	close(c.done)

	return c.eng, c.err
}

func (l *Loader) initialize(ctx context.Context, onProgress ProgressFunc) (Engine, error) {
	report := func(f float64) {
		if onProgress != nil {
			onProgress(f)
		}
	}

	l.logger.Info("initializing media engine")
	start := time.Now()

	eng, err := l.factory(ctx, report)
	if err != nil {
		l.logger.Error("media engine initialization failed",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrInitFailed, err)
	}

	l.logger.Info("media engine ready",
		slog.Duration("duration", time.Since(start)),
	)
	return eng, nil
}

// Ready reports whether the engine has been initialised.
func (l *Loader) Ready() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.engine != nil
}
