package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/uiextract/uiextract-processing-service/internal/domain/entity"
	"github.com/uiextract/uiextract-processing-service/internal/sampler"
)

type fakeRepo struct {
	jobs    map[uuid.UUID]*entity.Job
	updates []entity.JobStatus
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{jobs: map[uuid.UUID]*entity.Job{}}
}

func (r *fakeRepo) Create(_ context.Context, job *entity.Job) error {
	r.jobs[job.ID] = job
	return nil
}

func (r *fakeRepo) Update(_ context.Context, job *entity.Job) error {
	r.jobs[job.ID] = job
	r.updates = append(r.updates, job.Status)
	return nil
}

func (r *fakeRepo) FindByID(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	job, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("job %s not found", id)
	}
	return job, nil
}

type fakeStorage struct {
	downloadErr error
	uploads     int
}

func (s *fakeStorage) DownloadVideo(_ context.Context, _, _ string) error {
	return s.downloadErr
}

func (s *fakeStorage) UploadZip(_ context.Context, _ string, _ io.Reader, _ int64) error {
	s.uploads++
	return nil
}

type fakeArchiver struct{ calls int }

func (a *fakeArchiver) CreateArchive(_ context.Context, _ []entity.Keyframe, _ []string, _ string) error {
	a.calls++
	return nil
}

type fakePublisher struct{ statuses []entity.KeyframeStatusMessage }

func (p *fakePublisher) PublishStatus(_ context.Context, msg []byte) error {
	var status entity.KeyframeStatusMessage
	if err := json.Unmarshal(msg, &status); err != nil {
		return err
	}
	p.statuses = append(p.statuses, status)
	return nil
}

type fakeDLQ struct{ reasons []string }

func (d *fakeDLQ) PublishToDLQ(_ context.Context, _ []byte, reason string) error {
	d.reasons = append(d.reasons, reason)
	return nil
}

type fakeNotifier struct{ notified []string }

func (n *fakeNotifier) NotifyFailure(_ context.Context, userEmail, _, _, _ string) error {
	n.notified = append(n.notified, userEmail)
	return nil
}

type fixture struct {
	uc       *ProcessKeyframesUseCase
	repo     *fakeRepo
	storage  *fakeStorage
	archiver *fakeArchiver
	pub      *fakePublisher
	dlq      *fakeDLQ
	notifier *fakeNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		repo:     newFakeRepo(),
		storage:  &fakeStorage{},
		archiver: &fakeArchiver{},
		pub:      &fakePublisher{},
		dlq:      &fakeDLQ{},
		notifier: &fakeNotifier{},
	}
	f.uc = NewProcessKeyframesUseCase(
		f.repo, f.storage, f.archiver,
		f.pub, f.dlq, f.notifier,
		zap.NewNop(),
		ProcessKeyframesConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
			Sampler:    sampler.DefaultConfig(),
		},
	)
	return f
}

func requestBody(t *testing.T, msg entity.KeyframeRequestMessage) []byte {
	t.Helper()
	body, err := json.Marshal(msg)
	require.NoError(t, err)
	return body
}

func TestExecuteMalformedMessageGoesToDLQ(t *testing.T) {
	f := newFixture(t)

	err := f.uc.Execute(context.Background(), []byte(`{not json`))
	require.NoError(t, err, "poison messages must not be redelivered")

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "unmarshal_error")
}

func TestExecuteUnreadableVideoCompletesEmpty(t *testing.T) {
	// Download "succeeds" but leaves no file behind, so the probe fails and
	// the job resolves as no-output rather than crashing or retrying.
	f := newFixture(t)

	msg := entity.KeyframeRequestMessage{
		JobID:    uuid.New(),
		UserID:   "user-1",
		VideoKey: "user-1/broken.mp4",
	}
	err := f.uc.Execute(context.Background(), requestBody(t, msg))
	require.NoError(t, err)

	job, err := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, err)
	assert.Equal(t, entity.JobStatusCompletedEmpty, job.Status)

	require.Len(t, f.pub.statuses, 1)
	assert.Equal(t, entity.JobStatusCompletedEmpty, f.pub.statuses[0].Status)
	assert.NotEmpty(t, f.pub.statuses[0].Hint)
	assert.Empty(t, f.dlq.reasons)
	assert.Zero(t, f.storage.uploads)
}

func TestExecuteDownloadFailureIsRetryable(t *testing.T) {
	f := newFixture(t)
	f.storage.downloadErr = errors.New("connection refused")

	msg := entity.KeyframeRequestMessage{
		JobID:    uuid.New(),
		UserID:   "user-1",
		VideoKey: "user-1/demo.mp4",
	}
	err := f.uc.Execute(context.Background(), requestBody(t, msg))
	require.Error(t, err, "retryable failures bubble up so the message is nacked")

	job, ferr := f.repo.FindByID(context.Background(), msg.JobID)
	require.NoError(t, ferr)
	assert.Equal(t, entity.JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.Attempt)
	assert.Empty(t, f.dlq.reasons)
}

func TestExecuteExhaustedRetriesGoToDLQAndNotify(t *testing.T) {
	f := newFixture(t)

	jobID := uuid.New()
	job := entity.NewJob("user-1", "user-1/demo.mp4", 100, 3)
	job.ID = jobID
	job.Attempt = 3
	require.NoError(t, f.repo.Create(context.Background(), job))

	msg := entity.KeyframeRequestMessage{
		JobID:     jobID,
		UserID:    "user-1",
		VideoKey:  "user-1/demo.mp4",
		UserEmail: "user@example.com",
	}
	err := f.uc.Execute(context.Background(), requestBody(t, msg))
	require.NoError(t, err)

	require.Len(t, f.dlq.reasons, 1)
	assert.Contains(t, f.dlq.reasons[0], "max retries")
	assert.Equal(t, []string{"user@example.com"}, f.notifier.notified)

	stored, ferr := f.repo.FindByID(context.Background(), jobID)
	require.NoError(t, ferr)
	assert.Equal(t, entity.JobStatusFailed, stored.Status)
}

func TestResolveSamplerConfigOverrides(t *testing.T) {
	f := newFixture(t)
	log := zap.NewNop()

	cfg := f.uc.resolveSamplerConfig(entity.KeyframeRequestMessage{
		Threshold:  0.05,
		MinTimeGap: 1.0,
	}, log)
	assert.Equal(t, 0.05, cfg.Threshold)
	assert.Equal(t, 1.0, cfg.MinTimeGap)

	// Out-of-range overrides fall back to the service defaults.
	cfg = f.uc.resolveSamplerConfig(entity.KeyframeRequestMessage{
		Threshold: 0.5,
	}, log)
	assert.Equal(t, sampler.DefaultThreshold, cfg.Threshold)

	// Zero values keep the defaults.
	cfg = f.uc.resolveSamplerConfig(entity.KeyframeRequestMessage{}, log)
	assert.Equal(t, sampler.DefaultConfig(), cfg)
}
