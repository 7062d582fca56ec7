package job

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/memory-images/internal/metrics"
	"github.com/maauso/memory-images/internal/notify"
	"github.com/maauso/memory-images/internal/pipeline"
	"github.com/maauso/memory-images/internal/progress"
	"github.com/maauso/memory-images/internal/render"
	"github.com/maauso/memory-images/internal/storage"
	"github.com/maauso/memory-images/internal/transition"
)

// mockRenderer replays a fixed progress sequence before returning its result.
type mockRenderer struct {
	mock.Mock
	events []progress.Event
}

func (m *mockRenderer) Generate(ctx context.Context, req render.Request, sink progress.Sink) (*render.Result, error) {
	for _, e := range m.events {
		sink.Report(e)
	}
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*render.Result)
	return res, args.Error(1)
}

func validInput() RenderInput {
	return RenderInput{
		Request: render.Request{
			Images: []render.ImageItem{
				{ID: "a", Data: []byte("img-a")},
				{ID: "b", Data: []byte("img-b")},
			},
			Audio:       &render.AudioAsset{Name: "song.mp3", Data: []byte("audio")},
			Transitions: transition.Uniform(transition.KindFade),
			Timing:      render.Timing{PhotoDuration: 2, TransitionDuration: 0.5},
		},
	}
}

func newTestService(t *testing.T, r Renderer, opts ...ServiceOption) (*RenderService, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewRenderService(NewMemoryRepository(), r, store, opts...), store
}

func TestRenderService_CreateJob(t *testing.T) {
	svc, _ := newTestService(t, &mockRenderer{})
	ctx := context.Background()

	input := validInput()
	input.PushToS3 = true
	job, err := svc.CreateJob(ctx, input)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, StatusInQueue, job.Status)
	assert.Equal(t, 2, job.ImageCount)
	assert.True(t, job.PushToS3)
	assert.InDelta(t, 4.5, job.EstimatedSeconds, 1e-9)

	saved, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, saved.ID)
}

func TestRenderService_CreateJob_Invalid(t *testing.T) {
	m := metrics.New()
	svc, _ := newTestService(t, &mockRenderer{}, WithMetrics(m))

	input := validInput()
	input.Request.Images = nil
	_, err := svc.CreateJob(context.Background(), input)
	assert.ErrorIs(t, err, render.ErrInvalidRequest)

	jobs, _ := svc.ListJobs(context.Background())
	assert.Empty(t, jobs)
	count, err := testutil.GatherAndCount(m.Registry(), "memory_images_renders_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRenderService_ProcessExistingJob_Success(t *testing.T) {
	r := &mockRenderer{events: []progress.Event{
		{Phase: progress.PhaseEngine, Percent: 0, Status: "Processing video...", EnginePercent: 50},
		{Phase: progress.PhaseEncode, Percent: 47, Status: "Creating video segment 2/2...", EnginePercent: 90},
		{Phase: progress.PhaseFinalize, Percent: 100, Status: progress.StatusComplete, EnginePercent: -1},
	}}
	hub := notify.NewHub(nil)
	svc, _ := newTestService(t, r, WithNotifier(hub))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, validInput())
	require.NoError(t, err)
	updates, cancel := hub.Subscribe(job.ID)
	defer cancel()

	r.On("Generate", ctx, mock.Anything).Return(&render.Result{
		Data:      []byte("mp4"),
		MediaType: render.MediaTypeMP4,
		Media:     &render.MediaInfo{DurationSeconds: 4.2, VideoStreams: 1, AudioStreams: 1},
	}, nil)

	require.NoError(t, svc.ProcessExistingJob(ctx, job.ID))
	r.AssertExpectations(t)

	done, err := svc.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	assert.Equal(t, 100, done.Progress)
	assert.Equal(t, int64(3), done.OutputSize)
	assert.InDelta(t, 4.2, done.DurationSeconds, 1e-9)
	assert.Empty(t, done.VideoURL)

	_, rc, err := svc.OpenVideo(ctx, job.ID)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	assert.Equal(t, "mp4", string(data))

	var msgs []notify.Message
	for m := range updates {
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 4)
	require.NotNil(t, msgs[0].EngineProgress)
	assert.Equal(t, 50, *msgs[0].EngineProgress)
	assert.Equal(t, 47, msgs[1].Progress)
	assert.Nil(t, msgs[2].EngineProgress)
	assert.Equal(t, notify.TypeComplete, msgs[3].Type)
	assert.Equal(t, VideoPath(job.ID), msgs[3].VideoURL)
}

func TestRenderService_ProcessExistingJob_Failure(t *testing.T) {
	r := &mockRenderer{}
	hub := notify.NewHub(nil)
	m := metrics.New()
	svc, _ := newTestService(t, r, WithNotifier(hub), WithMetrics(m))
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, validInput())
	require.NoError(t, err)
	updates, cancel := hub.Subscribe(job.ID)
	defer cancel()

	cause := &pipeline.PhaseError{Phase: progress.PhaseEncode, Err: errors.New("exit status 1")}
	r.On("Generate", ctx, mock.Anything).Return(nil, cause)

	err = svc.ProcessExistingJob(ctx, job.ID)
	assert.ErrorIs(t, err, cause)

	failed, _ := svc.GetJob(ctx, job.ID)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, FailureMessage, failed.Error)

	msg := <-updates
	assert.Equal(t, notify.TypeError, msg.Type)
	assert.Equal(t, FailureMessage, msg.Error)

	_, _, err = svc.OpenVideo(ctx, job.ID)
	assert.ErrorIs(t, err, ErrVideoNotReady)
}

func TestRenderService_ProcessExistingJob_PublishWithoutS3(t *testing.T) {
	r := &mockRenderer{}
	svc, store := newTestService(t, r)
	ctx := context.Background()

	input := validInput()
	input.PushToS3 = true
	job, err := svc.CreateJob(ctx, input)
	require.NoError(t, err)

	r.On("Generate", ctx, mock.Anything).Return(&render.Result{Data: []byte("mp4"), MediaType: render.MediaTypeMP4}, nil)

	err = svc.ProcessExistingJob(ctx, job.ID)
	assert.ErrorIs(t, err, storage.ErrS3NotConfigured)

	failed, _ := svc.GetJob(ctx, job.ID)
	assert.Equal(t, StatusFailed, failed.Status)

	entries, err := os.ReadDir(store.OutputDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "unpublished video should not stay on disk")
}

func TestRenderService_ProcessExistingJob_Unknown(t *testing.T) {
	svc, _ := newTestService(t, &mockRenderer{})

	err := svc.ProcessExistingJob(context.Background(), "render-0-missing")
	assert.ErrorIs(t, err, ErrInputNotFound)
}

func TestRenderService_DeleteQueuedJob(t *testing.T) {
	r := &mockRenderer{}
	svc, _ := newTestService(t, r)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, validInput())
	require.NoError(t, err)

	require.NoError(t, svc.DeleteJob(ctx, job.ID))

	_, err = svc.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)

	err = svc.ProcessExistingJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrInputNotFound)
	r.AssertNotCalled(t, "Generate", mock.Anything, mock.Anything)
}

func TestRenderService_DeleteCompletedJobRemovesVideo(t *testing.T) {
	r := &mockRenderer{}
	svc, _ := newTestService(t, r)
	ctx := context.Background()

	job, err := svc.CreateJob(ctx, validInput())
	require.NoError(t, err)
	r.On("Generate", ctx, mock.Anything).Return(&render.Result{Data: []byte("mp4"), MediaType: render.MediaTypeMP4}, nil)
	require.NoError(t, svc.ProcessExistingJob(ctx, job.ID))

	done, _ := svc.GetJob(ctx, job.ID)
	require.FileExists(t, done.OutputVideoPath)

	require.NoError(t, svc.DeleteJob(ctx, job.ID))
	assert.NoFileExists(t, done.OutputVideoPath)

	err = svc.DeleteJob(ctx, job.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}
