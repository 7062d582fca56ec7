// Package job provides the render Job aggregate with its state machine, the
// repository port for persisting jobs, and the RenderService use case that runs
// renders in the background.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/maauso/memory-images/internal/job/id"
	"github.com/maauso/memory-images/internal/progress"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is waiting for the renderer.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being rendered.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the video is ready.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the render failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the job was discarded before it started.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusCancelled, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Job is one slideshow render requested by a client.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Progress is the percentage of completion (0-100). It never decreases.
	Progress int
	// Phase is the pipeline phase last reported.
	Phase progress.Phase
	// StatusText is the human-readable label of the current step.
	StatusText string
	// EngineProgress is the engine's own progress for its current operation, or -1.
	EngineProgress int
	// Error contains any error message if the job failed.
	Error string
	// ImageCount is the number of images in the slideshow.
	ImageCount int
	// Transitions is the transition selection of the request.
	Transitions transition.Spec
	// Timing holds the photo and transition durations.
	Timing render.Timing
	// EstimatedSeconds is the display estimate of the output duration.
	EstimatedSeconds float64
	// DurationSeconds is the probed length of the rendered video, 0 until known.
	DurationSeconds float64
	// OutputVideoPath is the stored video.
	OutputVideoPath string
	// OutputSize is the size of the video in bytes.
	OutputSize int64
	// PushToS3 indicates whether to publish the result to S3.
	PushToS3 bool
	// VideoURL is the S3 URL if the video was published.
	VideoURL string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when rendering started.
	StartedAt time.Time
	// CompletedAt is when the job reached a terminal state.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New() *Job {
	return NewWithID(id.Generate())
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:             jobID,
		Status:         StatusInQueue,
		EngineProgress: -1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete transitions the job to COMPLETED at 100%.
func (j *Job) Complete() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	j.Progress = 100
	j.Phase = progress.PhaseFinalize
	j.StatusText = progress.StatusComplete
	j.EngineProgress = -1
	return nil
}

// Fail transitions the job to FAILED with an error message.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	return nil
}

// Cancel transitions a queued job to CANCELLED.
func (j *Job) Cancel() error {
	return j.TransitionTo(StatusCancelled)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// ApplyEvent records a progress event. The percentage never moves backwards.
func (j *Job) ApplyEvent(e progress.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	pct := e.Percent
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	if pct > j.Progress {
		j.Progress = pct
	}
	j.Phase = e.Phase
	j.StatusText = e.Status
	j.EngineProgress = e.EnginePercent
	j.UpdatedAt = time.Now()
}

// SetOutput records the stored video and optional published URL.
func (j *Job) SetOutput(videoPath string, size int64, videoURL string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = videoPath
	j.OutputSize = size
	j.VideoURL = videoURL
	j.UpdatedAt = time.Now()
}

// SetMedia records what the encoder produced. A nil info leaves the job unchanged.
func (j *Job) SetMedia(info *render.MediaInfo) {
	if info == nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	j.DurationSeconds = info.DurationSeconds
	j.UpdatedAt = time.Now()
}

// ClearOutput forgets the stored video, used when the file is deleted.
func (j *Job) ClearOutput() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.OutputVideoPath = ""
	j.OutputSize = 0
	j.VideoURL = ""
	j.UpdatedAt = time.Now()
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted ||
		j.Status == StatusFailed ||
		j.Status == StatusCancelled
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	ts := j.Transitions
	ts.Multiple = append([]transition.Kind(nil), j.Transitions.Multiple...)

	return &Job{
		ID:               j.ID,
		Status:           j.Status,
		Progress:         j.Progress,
		Phase:            j.Phase,
		StatusText:       j.StatusText,
		EngineProgress:   j.EngineProgress,
		Error:            j.Error,
		ImageCount:       j.ImageCount,
		Transitions:      ts,
		Timing:           j.Timing,
		EstimatedSeconds: j.EstimatedSeconds,
		DurationSeconds:  j.DurationSeconds,
		OutputVideoPath:  j.OutputVideoPath,
		OutputSize:       j.OutputSize,
		PushToS3:         j.PushToS3,
		VideoURL:         j.VideoURL,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
		StartedAt:        j.StartedAt,
		CompletedAt:      j.CompletedAt,
	}
}
