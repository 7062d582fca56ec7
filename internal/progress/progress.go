// Package progress models render progress as a typed stream of events, one per phase
// milestone, with a job-level percentage that never moves backwards.
package progress

import (
	"sync"
)

// Phase is a named step of the assembly pipeline.
type Phase string

// Phases in execution order.
const (
	PhaseEngine   Phase = "engine"
	PhaseStage    Phase = "stage"
	PhaseEncode   Phase = "encode"
	PhaseConcat   Phase = "concat"
	PhaseMux      Phase = "mux"
	PhaseFinalize Phase = "finalize"
)

// Range is the span of job percentages a phase reports within.
type Range struct {
	From int
	To   int
}

// PhaseInfo declares a phase's percentage range and default status label.
type PhaseInfo struct {
	Phase  Phase
	Range  Range
	Status string
}

var phases = []PhaseInfo{
	{PhaseEngine, Range{0, 0}, "Processing video..."},
	{PhaseStage, Range{0, 20}, "Loading files..."},
	{PhaseEncode, Range{25, 70}, "Creating video segments..."},
	{PhaseConcat, Range{70, 70}, "Merging segments..."},
	{PhaseMux, Range{85, 85}, "Adding audio..."},
	{PhaseFinalize, Range{95, 100}, "Finalizing..."},
}

// StatusComplete is the label of the final 100% event.
const StatusComplete = "Complete!"

// Phases returns the declared phases in execution order.
func Phases() []PhaseInfo {
	out := make([]PhaseInfo, len(phases))
	copy(out, phases)
	return out
}

// Info returns the declaration of p. Unknown phases get a zero-width range at 0.
func Info(p Phase) PhaseInfo {
	for _, info := range phases {
		if info.Phase == p {
			return info
		}
	}
	return PhaseInfo{Phase: p}
}

// Event is one progress report.
type Event struct {
	// Phase is the pipeline phase that produced the event.
	Phase Phase `json:"phase"`
	// Percent is the job completion percentage, 0-100, non-decreasing within a render.
	Percent int `json:"percent"`
	// Status is a human readable label of the current step.
	Status string `json:"status"`
	// EnginePercent is the engine's own progress (initialisation or the current
	// ffmpeg run), 0-100, or -1 when the event is a pipeline milestone.
	EnginePercent int `json:"engine_percent"`
}

// Sink receives progress events. Implementations must be safe to call from the
// goroutine running the render.
type Sink interface {
	Report(Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

// Report calls f(e).
func (f SinkFunc) Report(e Event) {
	f(e)
}

// Discard is a Sink that drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Fanout reports each event to every non-nil sink in order.
func Fanout(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			if s != nil {
				s.Report(e)
			}
		}
	})
}

// Recorder is a Sink that keeps every event it receives.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report appends e.
func (r *Recorder) Report(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Last returns the most recent event and whether one exists.
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Percents returns the job percentages in report order.
func (r *Recorder) Percents() []int {
	events := r.Events()
	out := make([]int, len(events))
	for i, e := range events {
		out[i] = e.Percent
	}
	return out
}
