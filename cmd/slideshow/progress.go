package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/maauso/memory-images/internal/progress"
)

// progressReporter shows render progress as a bar on terminals and as log lines
// everywhere else.
type progressReporter struct {
	bar    *progressbar.ProgressBar
	logger *slog.Logger

	mu          sync.Mutex
	lastPercent int
	lastStatus  string
}

var _ progress.Sink = (*progressReporter)(nil)

func newProgressReporter(w io.Writer, logger *slog.Logger, interactive bool) *progressReporter {
	r := &progressReporter{logger: logger, lastPercent: -1}
	if interactive {
		r.bar = progressbar.NewOptions(100,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription("Starting..."),
			progressbar.OptionSetWidth(30),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
	}
	return r
}

func (r *progressReporter) Report(e progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.bar != nil {
		r.bar.Describe(e.Status)
		_ = r.bar.Set(e.Percent)
		return
	}

	if e.Percent == r.lastPercent && e.Status == r.lastStatus {
		return
	}
	r.lastPercent, r.lastStatus = e.Percent, e.Status
	r.logger.Info("render progress",
		slog.Int("percent", e.Percent),
		slog.String("phase", string(e.Phase)),
		slog.String("status", e.Status),
	)
}

func (r *progressReporter) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
