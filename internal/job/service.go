package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/memory-images/internal/metrics"
	"github.com/maauso/memory-images/internal/notify"
	"github.com/maauso/memory-images/internal/pipeline"
	"github.com/maauso/memory-images/internal/progress"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/storage"
)

// FailureMessage is the only failure reason exposed to clients.
const FailureMessage = "failed to generate video"

// Static errors for the render service.
var (
	// ErrInputNotFound is returned when a job has no pending render input.
	ErrInputNotFound = errors.New("render input not found for job")
	// ErrVideoNotReady is returned when a job has no stored video.
	ErrVideoNotReady = errors.New("video not ready")
)

// Renderer turns a render request into a video.
type Renderer interface {
	Generate(ctx context.Context, req render.Request, sink progress.Sink) (*render.Result, error)
}

// Notifier receives job updates for live subscribers.
type Notifier interface {
	Publish(jobID string, m notify.Message)
}

// Recorder receives render metrics.
type Recorder interface {
	RenderStarted(images int)
	RenderFinished(outcome string, d time.Duration)
	RenderRejected()
}

// RenderInput contains everything needed to run one render job.
type RenderInput struct {
	// Request is the slideshow to render.
	Request render.Request
	// PushToS3 indicates whether to publish the finished video to S3.
	PushToS3 bool
}

// RenderService creates render jobs and runs them one at a time.
type RenderService struct {
	repo     Repository
	renderer Renderer
	storage  storage.Storage
	notifier Notifier
	metrics  Recorder
	logger   *slog.Logger

	inputsMu sync.Mutex
	inputs   map[string]RenderInput

	// renderMu serializes renders so queued jobs wait instead of being rejected.
	renderMu sync.Mutex
}

// ServiceOption configures a RenderService.
type ServiceOption func(*RenderService)

// WithNotifier sets the receiver of live job updates.
func WithNotifier(n Notifier) ServiceOption {
	return func(s *RenderService) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithMetrics sets the receiver of render metrics.
func WithMetrics(r Recorder) ServiceOption {
	return func(s *RenderService) {
		if r != nil {
			s.metrics = r
		}
	}
}

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *RenderService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewRenderService creates a RenderService.
func NewRenderService(repo Repository, renderer Renderer, store storage.Storage, opts ...ServiceOption) *RenderService {
	s := &RenderService{
		repo:     repo,
		renderer: renderer,
		storage:  store,
		notifier: nopNotifier{},
		metrics:  nopRecorder{},
		logger:   slog.Default(),
		inputs:   make(map[string]RenderInput),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateJob validates input, creates an IN_QUEUE job and keeps the input until the
// job is processed.
func (s *RenderService) CreateJob(ctx context.Context, input RenderInput) (*Job, error) {
	if err := input.Request.Validate(); err != nil {
		s.metrics.RenderRejected()
		return nil, err
	}

	req := input.Request
	job := New()
	job.ImageCount = len(req.Images)
	job.Transitions = req.Transitions
	job.Timing = req.Timing
	job.EstimatedSeconds = render.EstimateDuration(len(req.Images), req.Timing)
	job.PushToS3 = input.PushToS3

	s.logger.Info("creating render job",
		slog.String("job_id", job.ID),
		slog.Int("images", job.ImageCount),
		slog.String("transition_mode", string(req.Transitions.Mode)),
		slog.Bool("push_to_s3", input.PushToS3),
	)

	if err := s.repo.Save(ctx, job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	s.inputsMu.Lock()
	s.inputs[job.ID] = input
	s.inputsMu.Unlock()

	return job, nil
}

// ProcessExistingJob renders a job created by CreateJob. It blocks until earlier
// renders have finished, then runs the pipeline and stores the video.
func (s *RenderService) ProcessExistingJob(ctx context.Context, jobID string) error {
	s.renderMu.Lock()
	defer s.renderMu.Unlock()

	input, ok := s.takeInput(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrInputNotFound, jobID)
	}

	if _, err := s.repo.Update(ctx, jobID, func(j *Job) error { return j.Start() }); err != nil {
		s.logger.Warn("job not started",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return err
	}

	start := time.Now()
	s.metrics.RenderStarted(len(input.Request.Images))

	result, err := s.renderer.Generate(ctx, input.Request, s.progressSink(ctx, jobID))
	if err != nil {
		outcome := metrics.OutcomeFailure
		if errors.Is(err, pipeline.ErrRenderInProgress) {
			outcome = metrics.OutcomeRejected
		}
		s.metrics.RenderFinished(outcome, time.Since(start))
		return s.fail(ctx, jobID, err)
	}

	path, url, err := s.storeResult(ctx, jobID, input, result)
	if err != nil {
		s.metrics.RenderFinished(metrics.OutcomeFailure, time.Since(start))
		return s.fail(ctx, jobID, err)
	}

	if _, err := s.repo.Update(ctx, jobID, func(j *Job) error {
		j.SetOutput(path, int64(len(result.Data)), url)
		j.SetMedia(result.Media)
		return j.Complete()
	}); err != nil {
		s.metrics.RenderFinished(metrics.OutcomeFailure, time.Since(start))
		if errors.Is(err, ErrJobNotFound) {
			_ = s.storage.RemoveVideo(ctx, path)
		}
		return err
	}
	s.metrics.RenderFinished(metrics.OutcomeSuccess, time.Since(start))

	if url == "" {
		url = VideoPath(jobID)
	}
	s.notifier.Publish(jobID, notify.Message{
		Type:        notify.TypeComplete,
		Progress:    100,
		Status:      string(StatusCompleted),
		CurrentStep: progress.StatusComplete,
		VideoURL:    url,
	})

	s.logger.Info("render job completed",
		slog.String("job_id", jobID),
		slog.Int("bytes", len(result.Data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return nil
}

// GetJob retrieves a job by ID.
func (s *RenderService) GetJob(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// ListJobs returns all jobs, newest first.
func (s *RenderService) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// OpenVideo opens the stored video of a completed job.
func (s *RenderService) OpenVideo(ctx context.Context, id string) (*Job, io.ReadCloser, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job.Status != StatusCompleted || job.OutputVideoPath == "" {
		return job, nil, ErrVideoNotReady
	}
	rc, err := s.storage.OpenVideo(ctx, job.OutputVideoPath)
	if err != nil {
		return job, nil, fmt.Errorf("open video: %w", err)
	}
	return job, rc, nil
}

// DeleteJob removes a job and its stored video. A queued job is cancelled first so
// it never starts.
func (s *RenderService) DeleteJob(ctx context.Context, id string) error {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if job.GetStatus() == StatusInQueue {
		s.takeInput(id)
		if _, err := s.repo.Update(ctx, id, func(j *Job) error { return j.Cancel() }); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return err
		}
	}

	if job.OutputVideoPath != "" {
		if err := s.storage.RemoveVideo(ctx, job.OutputVideoPath); err != nil {
			s.logger.Warn("failed to remove video",
				slog.String("job_id", id),
				slog.String("path", job.OutputVideoPath),
				slog.String("error", err.Error()),
			)
		}
	}

	s.logger.Info("deleting job", slog.String("job_id", id))
	return s.repo.Delete(ctx, id)
}

// VideoPath is the download route of a job's video.
func VideoPath(jobID string) string {
	return "/renders/" + jobID + "/video"
}

func (s *RenderService) takeInput(jobID string) (RenderInput, bool) {
	s.inputsMu.Lock()
	defer s.inputsMu.Unlock()
	input, ok := s.inputs[jobID]
	delete(s.inputs, jobID)
	return input, ok
}

func (s *RenderService) progressSink(ctx context.Context, jobID string) progress.Sink {
	return progress.SinkFunc(func(e progress.Event) {
		j, err := s.repo.Update(ctx, jobID, func(j *Job) error {
			j.ApplyEvent(e)
			return nil
		})
		if err != nil {
			return
		}

		m := notify.Message{
			Type:        notify.TypeProgress,
			Progress:    j.Progress,
			Status:      string(j.Status),
			CurrentStep: e.Status,
		}
		if e.EnginePercent >= 0 {
			pct := e.EnginePercent
			m.EngineProgress = &pct
		}
		s.notifier.Publish(jobID, m)
	})
}

func (s *RenderService) storeResult(ctx context.Context, jobID string, input RenderInput, result *render.Result) (string, string, error) {
	path, err := s.storage.SaveVideo(ctx, jobID, bytes.NewReader(result.Data))
	if err != nil {
		return "", "", fmt.Errorf("save video: %w", err)
	}
	if !input.PushToS3 {
		return path, "", nil
	}

	url, err := s.storage.Publish(ctx, jobID+storage.VideoExt, bytes.NewReader(result.Data))
	if err != nil {
		_ = s.storage.RemoveVideo(ctx, path)
		return "", "", fmt.Errorf("publish video: %w", err)
	}
	return path, url, nil
}

func (s *RenderService) fail(ctx context.Context, jobID string, cause error) error {
	s.logger.Error("render job failed",
		slog.String("job_id", jobID),
		slog.String("error", cause.Error()),
	)

	if _, err := s.repo.Update(ctx, jobID, func(j *Job) error { return j.Fail(FailureMessage) }); err != nil {
		s.logger.Warn("failed to mark job failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	s.notifier.Publish(jobID, notify.Message{
		Type:   notify.TypeError,
		Status: string(StatusFailed),
		Error:  FailureMessage,
	})
	return cause
}

type nopNotifier struct{}

func (nopNotifier) Publish(string, notify.Message) {}

type nopRecorder struct{}

func (nopRecorder) RenderStarted(int) {}

func (nopRecorder) RenderFinished(string, time.Duration) {}

func (nopRecorder) RenderRejected() {}
