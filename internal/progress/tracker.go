package progress

import (
	"math"
	"sync"
)

// Tracker turns phase-relative reports into job-level events and forwards them to a
// Sink. Percentages are clamped into the phase range and never drop below the last
// value reported.
type Tracker struct {
	mu    sync.Mutex
	sink  Sink
	last  int
	phase Phase
}

// NewTracker creates a Tracker reporting to sink. A nil sink discards events.
func NewTracker(sink Sink) *Tracker {
	if sink == nil {
		sink = Discard
	}
	return &Tracker{sink: sink}
}

// Enter switches to phase p and reports its start with the given status. An empty
// status uses the phase's declared label.
func (t *Tracker) Enter(p Phase, status string) {
	t.mu.Lock()
	t.phase = p
	t.mu.Unlock()
	t.Milestone(Info(p).Range.From, status)
}

// Milestone reports an absolute job percentage within the current phase.
func (t *Tracker) Milestone(percent int, status string) {
	t.emit(percent, status, -1)
}

// Fraction reports progress through the current phase as a fraction in [0,1].
func (t *Tracker) Fraction(f float64, status string) {
	t.emit(t.scale(f), status, -1)
}

// Engine forwards engine-internal progress (fraction of the current engine operation)
// without advancing the job percentage.
func (t *Tracker) Engine(f float64, status string) {
	t.mu.Lock()
	last := t.last
	t.mu.Unlock()
	t.emit(last, status, roundPercent(f))
}

// EngineWithin forwards engine progress and also advances the job percentage to the
// fraction f of the current phase.
func (t *Tracker) EngineWithin(phaseFraction, engineFraction float64, status string) {
	t.emit(t.scale(phaseFraction), status, roundPercent(engineFraction))
}

// Complete reports 100%.
func (t *Tracker) Complete() {
	t.mu.Lock()
	t.phase = PhaseFinalize
	t.mu.Unlock()
	t.emit(100, StatusComplete, -1)
}

// Percent returns the last reported job percentage.
func (t *Tracker) Percent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) scale(f float64) int {
	t.mu.Lock()
	r := Info(t.phase).Range
	t.mu.Unlock()
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return r.From + int(math.Floor(f*float64(r.To-r.From)))
}

func (t *Tracker) emit(percent int, status string, engine int) {
	t.mu.Lock()
	info := Info(t.phase)
	if percent > info.Range.To {
		percent = info.Range.To
	}
	if percent < t.last {
		percent = t.last
	}
	if percent > 100 {
		percent = 100
	}
	t.last = percent
	if status == "" {
		status = info.Status
	}
	e := Event{Phase: t.phase, Percent: percent, Status: status, EnginePercent: engine}
	t.mu.Unlock()

	t.sink.Report(e)
}

func roundPercent(f float64) int {
	if f < 0 || math.IsNaN(f) {
		return 0
	}
	if f > 1 {
		return 100
	}
	return int(math.Round(f * 100))
}
