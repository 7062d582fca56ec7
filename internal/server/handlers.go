package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/maauso/memory-images/internal/job"
	"github.com/maauso/memory-images/internal/notify"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/transition"
)

// defaultMaxBodyBytes bounds request bodies when no limit is configured.
const defaultMaxBodyBytes int64 = 200 << 20

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service            *job.RenderService
	hub                *notify.Hub
	validator          *validator.Validate
	logger             *slog.Logger
	engineReady        func() bool
	maxBodyBytes       int64
	enableAsyncProcess bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithAsyncProcessing enables or disables background processing.
// When disabled, CreateRender only creates the job and returns immediately
// without starting background processing.
func WithAsyncProcessing(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.enableAsyncProcess = enabled
	}
}

// WithHub sets the hub that live progress subscriptions read from.
func WithHub(hub *notify.Hub) HandlerOption {
	return func(h *Handlers) {
		h.hub = hub
	}
}

// WithEngineStatus sets the probe reported by the health check.
func WithEngineStatus(ready func() bool) HandlerOption {
	return func(h *Handlers) {
		h.engineReady = ready
	}
}

// WithMaxBodyBytes limits the size of request bodies.
func WithMaxBodyBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxBodyBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.RenderService, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:            service,
		validator:          validator.New(),
		logger:             logger,
		engineReady:        func() bool { return false },
		maxBodyBytes:       defaultMaxBodyBytes,
		enableAsyncProcess: true, // Default to enabled
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", EngineReady: h.engineReady()})
}

// Transitions handles GET /transitions requests.
func (h *Handlers) Transitions(w http.ResponseWriter, r *http.Request) {
	kinds := transition.All()
	resp := TransitionsResponse{Transitions: make([]TransitionDTO, 0, len(kinds))}
	for _, k := range kinds {
		resp.Transitions = append(resp.Transitions, TransitionDTO{Name: string(k), Label: k.Label()})
	}

	def := transition.DefaultSpec()
	resp.Default = TransitionsDTO{Mode: string(def.Mode), Single: string(def.Single)}
	for _, k := range def.Multiple {
		resp.Default.Multiple = append(resp.Default.Multiple, string(k))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Estimate handles POST /estimate requests.
func (h *Handlers) Estimate(w http.ResponseWriter, r *http.Request) {
	var req EstimateRequest
	if !h.decode(w, r, &req) {
		return
	}

	seconds := render.EstimateDuration(req.ImageCount, render.Timing{
		PhotoDuration:      req.PhotoDuration,
		TransitionDuration: req.TransitionDuration,
	})
	writeJSON(w, http.StatusOK, EstimateResponse{
		Seconds: seconds,
		Display: "~" + render.FormatEstimate(seconds),
	})
}

// CreateRender handles POST /renders requests.
func (h *Handlers) CreateRender(w http.ResponseWriter, r *http.Request) {
	var req CreateRenderRequest
	if !h.decode(w, r, &req) {
		return
	}

	input, err := toRenderInput(req)
	if err != nil {
		h.logger.Warn("invalid render request",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	// Create job first (synchronously)
	createdJob, err := h.service.CreateJob(r.Context(), input)
	if err != nil {
		if errors.Is(err, render.ErrInvalidRequest) {
			writeError(w, http.StatusBadRequest, render.ValidationMessage(err), "VALIDATION_ERROR")
			return
		}
		h.logger.Error("failed to create job",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to create job", "JOB_CREATION_FAILED")
		return
	}

	// Start processing in background with a detached context
	// Use context.WithoutCancel to prevent cancellation when the request ends
	if h.enableAsyncProcess {
		go func(ctx context.Context, jobID string) {
			if processErr := h.service.ProcessExistingJob(ctx, jobID); processErr != nil {
				h.logger.Error("background processing failed",
					slog.String("job_id", jobID),
					slog.String("error", processErr.Error()),
				)
			}
		}(context.WithoutCancel(r.Context()), createdJob.ID)
	}

	h.logger.Info("render job accepted",
		slog.String("job_id", createdJob.ID),
		slog.Int("images", createdJob.ImageCount),
	)

	writeJSON(w, http.StatusAccepted, CreateRenderResponse{
		ID:                createdJob.ID,
		Status:            string(createdJob.Status),
		EstimatedSeconds:  createdJob.EstimatedSeconds,
		EstimatedDuration: "~" + render.FormatEstimate(createdJob.EstimatedSeconds),
	})
}

// ListRenders handles GET /renders requests.
func (h *Handlers) ListRenders(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context())
	if err != nil {
		h.logger.Error("failed to list jobs", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "failed to list jobs", "JOB_FETCH_FAILED")
		return
	}

	resp := ListRendersResponse{Renders: make([]RenderResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Renders = append(resp.Renders, toRenderResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetRender handles GET /renders/{id} requests.
func (h *Handlers) GetRender(w http.ResponseWriter, r *http.Request) {
	foundJob, ok := h.findJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toRenderResponse(foundJob))
}

// DownloadVideo handles GET /renders/{id}/video requests.
func (h *Handlers) DownloadVideo(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	foundJob, rc, err := h.service.OpenVideo(r.Context(), jobID)
	switch {
	case errors.Is(err, job.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
		return
	case errors.Is(err, job.ErrVideoNotReady):
		writeError(w, http.StatusConflict, "video not ready", "VIDEO_NOT_READY")
		return
	case err != nil:
		h.logger.Error("failed to open video",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to open video", "VIDEO_READ_FAILED")
		return
	}
	defer func() { _ = rc.Close() }()

	w.Header().Set("Content-Type", render.MediaTypeMP4)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", render.FileName(time.Now())))

	if rs, ok := rc.(io.ReadSeeker); ok {
		http.ServeContent(w, r, "", foundJob.CompletedAt, rs)
		return
	}
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("video download interrupted",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}

// DeleteRender handles DELETE /renders/{id} requests.
func (h *Handlers) DeleteRender(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	if err := h.service.DeleteJob(r.Context(), jobID); err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return
		}
		h.logger.Error("failed to delete job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to delete job", "JOB_DELETE_FAILED")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) findJob(w http.ResponseWriter, r *http.Request) (*job.Job, bool) {
	jobID := r.PathValue("id")
	if jobID == "" {
		writeError(w, http.StatusBadRequest, "job ID is required", "MISSING_JOB_ID")
		return nil, false
	}

	foundJob, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			writeError(w, http.StatusNotFound, "job not found", "JOB_NOT_FOUND")
			return nil, false
		}
		h.logger.Error("failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get job", "JOB_FETCH_FAILED")
		return nil, false
	}
	return foundJob, true
}

// decode reads and validates a JSON body into dst, writing the error response itself.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large", "BODY_TOO_LARGE")
			return false
		}
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, render.ValidationMessage(err), "VALIDATION_ERROR")
		return false
	}
	return true
}

// toRenderInput converts the DTO to the domain request, decoding payloads and
// applying default transitions and timing.
func toRenderInput(req CreateRenderRequest) (job.RenderInput, error) {
	images := make([]render.ImageItem, 0, len(req.Images))
	for i, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.DataBase64)
		if err != nil {
			return job.RenderInput{}, fmt.Errorf("images[%d]: invalid base64", i)
		}
		id := img.ID
		if id == "" {
			id = uuid.NewString()
		}
		images = append(images, render.ImageItem{ID: id, Data: data, Position: i})
	}

	audio, err := base64.StdEncoding.DecodeString(req.AudioBase64)
	if err != nil {
		return job.RenderInput{}, errors.New("audio: invalid base64")
	}

	spec, err := toTransitionSpec(req.Transitions)
	if err != nil {
		return job.RenderInput{}, err
	}

	timing := render.DefaultTiming()
	if req.PhotoDuration != nil {
		timing.PhotoDuration = *req.PhotoDuration
	}
	if req.TransitionDuration != nil {
		timing.TransitionDuration = *req.TransitionDuration
	}

	return job.RenderInput{
		Request: render.Request{
			Images:      images,
			Audio:       &render.AudioAsset{Name: req.AudioName, Data: audio},
			Transitions: spec,
			Timing:      timing,
		},
		PushToS3: req.PushToS3,
	}, nil
}

func toTransitionSpec(dto *TransitionsDTO) (transition.Spec, error) {
	if dto == nil {
		return transition.Uniform(transition.DefaultKind), nil
	}

	spec := transition.Spec{Mode: transition.Mode(dto.Mode)}
	if dto.Single != "" {
		k, err := transition.ParseKind(dto.Single)
		if err != nil {
			return transition.Spec{}, err
		}
		spec.Single = k
	}
	for _, name := range dto.Multiple {
		k, err := transition.ParseKind(name)
		if err != nil {
			return transition.Spec{}, err
		}
		spec.Multiple = append(spec.Multiple, k)
	}
	return spec, nil
}

func toRenderResponse(j *job.Job) RenderResponse {
	resp := RenderResponse{
		ID:               j.ID,
		Status:           string(j.Status),
		Progress:         j.Progress,
		Phase:            string(j.Phase),
		CurrentStep:      j.StatusText,
		Error:            j.Error,
		ImageCount:       j.ImageCount,
		EstimatedSeconds: j.EstimatedSeconds,
		DurationSeconds:  j.DurationSeconds,
		CreatedAt:        j.CreatedAt,
		UpdatedAt:        j.UpdatedAt,
	}
	if j.EngineProgress >= 0 {
		pct := j.EngineProgress
		resp.EngineProgress = &pct
	}
	if j.Status == job.StatusCompleted {
		resp.VideoURL = j.VideoURL
		if resp.VideoURL == "" {
			resp.VideoURL = job.VideoPath(j.ID)
		}
	}
	return resp
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
