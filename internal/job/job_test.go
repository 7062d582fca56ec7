package job

import (
	"strings"
	"testing"
	"time"

	"github.com/maauso/memory-images/internal/progress"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

func TestNew(t *testing.T) {
	job := New()

	if !strings.HasPrefix(job.ID, "render-") {
		t.Errorf("expected render- prefixed ID, got %q", job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.EngineProgress != -1 {
		t.Errorf("expected EngineProgress -1, got %d", job.EngineProgress)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id)

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions from IN_QUEUE
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to CANCELLED", StatusInQueue, StatusCancelled, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		// Valid transitions from RUNNING
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		// Invalid transitions
		{"RUNNING to CANCELLED", StatusRunning, StatusCancelled, true},
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"COMPLETED to IN_QUEUE", StatusCompleted, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
		{"CANCELLED to RUNNING", StatusCancelled, StatusRunning, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New()
	beforeStart := time.Now()

	err := job.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New()
	_ = job.Start()
	job.ApplyEvent(progress.Event{Phase: progress.PhaseFinalize, Percent: 95, Status: "Finalizing...", EnginePercent: -1})

	err := job.Complete()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.Progress != 100 {
		t.Errorf("expected progress 100, got %d", job.Progress)
	}
	if job.StatusText != progress.StatusComplete {
		t.Errorf("expected status text %q, got %q", progress.StatusComplete, job.StatusText)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_CompleteRequiresRunning(t *testing.T) {
	job := New()

	if err := job.Complete(); err != ErrInvalidTransition {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if job.Progress != 0 {
		t.Errorf("progress must not change on a rejected transition, got %d", job.Progress)
	}
}

func TestJob_Fail(t *testing.T) {
	job := New()
	_ = job.Start()

	errMsg := "failed to generate video"
	err := job.Fail(errMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.Error != errMsg {
		t.Errorf("expected error %q, got %q", errMsg, job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set on failure")
	}
}

func TestJob_Cancel(t *testing.T) {
	job := New()

	err := job.Cancel()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCancelled {
		t.Errorf("expected status %s, got %s", StatusCancelled, job.Status)
	}
}

func TestJob_CannotTransitionFromTerminalState(t *testing.T) {
	terminalStates := []Status{StatusCompleted, StatusFailed, StatusCancelled}
	allStates := []Status{StatusInQueue, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

	for _, terminal := range terminalStates {
		for _, target := range allStates {
			t.Run(string(terminal)+"_to_"+string(target), func(t *testing.T) {
				job := NewWithID("test")
				job.Status = terminal

				err := job.TransitionTo(target)
				if err != ErrInvalidTransition {
					t.Errorf("expected ErrInvalidTransition, got %v", err)
				}
			})
		}
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
		{StatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test")
			job.Status = tt.status

			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_ApplyEvent(t *testing.T) {
	job := New()

	job.ApplyEvent(progress.Event{Phase: progress.PhaseEncode, Percent: 40, Status: "Creating video segment 2/4...", EnginePercent: 50})
	if job.Progress != 40 || job.EngineProgress != 50 || job.Phase != progress.PhaseEncode {
		t.Errorf("unexpected job state after event: %+v", job.Clone())
	}

	// A stale, lower percentage must not move the job backwards.
	job.ApplyEvent(progress.Event{Phase: progress.PhaseEncode, Percent: 30, Status: "late", EnginePercent: -1})
	if job.Progress != 40 {
		t.Errorf("expected progress to stay at 40, got %d", job.Progress)
	}
	if job.StatusText != "late" {
		t.Errorf("expected status text to follow events, got %q", job.StatusText)
	}

	job.ApplyEvent(progress.Event{Percent: 150})
	if job.Progress != 100 {
		t.Errorf("expected progress clamped to 100, got %d", job.Progress)
	}
}

func TestJob_SetOutput(t *testing.T) {
	job := New()

	job.SetOutput("/tmp/video.mp4", 1024, "https://s3.example.com/video.mp4")

	if job.OutputVideoPath != "/tmp/video.mp4" {
		t.Errorf("expected OutputVideoPath /tmp/video.mp4, got %s", job.OutputVideoPath)
	}
	if job.OutputSize != 1024 {
		t.Errorf("expected OutputSize 1024, got %d", job.OutputSize)
	}
	if job.VideoURL != "https://s3.example.com/video.mp4" {
		t.Errorf("expected VideoURL https://s3.example.com/video.mp4, got %s", job.VideoURL)
	}

	job.ClearOutput()
	if job.OutputVideoPath != "" || job.VideoURL != "" || job.OutputSize != 0 {
		t.Error("expected output to be cleared")
	}
}

func TestJob_SetMedia(t *testing.T) {
	job := New()

	job.SetMedia(nil)
	if job.DurationSeconds != 0 {
		t.Errorf("expected no duration before media is known, got %v", job.DurationSeconds)
	}

	job.SetMedia(&render.MediaInfo{DurationSeconds: 9.96, VideoStreams: 1, AudioStreams: 1})
	if job.DurationSeconds != 9.96 {
		t.Errorf("expected DurationSeconds 9.96, got %v", job.DurationSeconds)
	}
	if clone := job.Clone(); clone.DurationSeconds != 9.96 {
		t.Errorf("expected clone to keep DurationSeconds, got %v", clone.DurationSeconds)
	}
}

func TestJob_Clone(t *testing.T) {
	job := New()
	job.Status = StatusRunning
	job.Progress = 50
	job.Transitions = transition.Cycle(transition.KindFade, transition.KindBlur)

	clone := job.Clone()

	if clone.ID != job.ID {
		t.Errorf("expected ID %s, got %s", job.ID, clone.ID)
	}
	if clone.Status != job.Status {
		t.Errorf("expected Status %s, got %s", job.Status, clone.Status)
	}
	if clone.Progress != job.Progress {
		t.Errorf("expected Progress %d, got %d", job.Progress, clone.Progress)
	}

	clone.Status = StatusCompleted
	if job.Status == StatusCompleted {
		t.Error("modifying clone should not affect original")
	}

	clone.Transitions.Multiple[0] = transition.KindPixelate
	if job.Transitions.Multiple[0] != transition.KindFade {
		t.Error("modifying clone transitions should not affect original")
	}
}

func TestJob_GetStatus_ThreadSafe(t *testing.T) {
	job := New()

	done := make(chan bool)
	go func() {
		for i := 0; i < 100; i++ {
			_ = job.GetStatus()
			job.ApplyEvent(progress.Event{Percent: i})
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = job.Start()
			_ = job.Clone()
		}
		done <- true
	}()

	<-done
	<-done
}
