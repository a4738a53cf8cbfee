package jobs

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/arkhan2/invoicing-system-sub001/internal/jobs"
)

type fakeExpirer struct {
	n     int64
	err   error
	calls int
}

func (f *fakeExpirer) ExpireOverdue(context.Context) (int64, error) {
	f.calls++
	return f.n, f.err
}

type fakeCleaner struct {
	got time.Duration
	n   int64
}

func (f *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	f.got = olderThan
	return f.n, nil
}

func TestNewTaskRejectsUnknownType(t *testing.T) {
	_, err := NewTask("mail:send", time.Now())
	require.Error(t, err)

	task, err := NewTask(TaskEstimatesExpire, time.Date(2024, 5, 10, 0, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, TaskEstimatesExpire, task.Type())
	assert.JSONEq(t, `{"scheduled_for":"2024-05-10T00:30:00Z"}`, string(task.Payload()))
	assert.Equal(t, []string{TaskEstimatesExpire, TaskIdempotencyCleanup}, TaskTypes())
}

func TestEstimateExpiryJob(t *testing.T) {
	expirer := &fakeExpirer{n: 4}
	job := &EstimateExpiryJob{Expirer: expirer, Metrics: jobmetrics.NewMetrics(prometheus.NewRegistry())}

	task, err := NewTask(TaskEstimatesExpire, time.Now())
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, expirer.calls)

	expirer.err = errors.New("db down")
	require.Error(t, job.Handle(context.Background(), task))

	err = job.Handle(context.Background(), asynq.NewTask(TaskEstimatesExpire, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 2, expirer.calls)
}

func TestIdempotencyCleanupDefaultsRetention(t *testing.T) {
	cleaner := &fakeCleaner{n: 12}
	job := &IdempotencyCleanupJob{Cleaner: cleaner}
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, DefaultIdempotencyRetention, cleaner.got)

	job.Retention = time.Hour
	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, time.Hour, cleaner.got)
}

func TestSchedule(t *testing.T) {
	regs, err := Schedule("30 0 * * *", "")
	require.NoError(t, err)
	require.Len(t, regs, 1)
	assert.Equal(t, TaskEstimatesExpire, regs[0].Task.Type())

	regs, err = Schedule("30 0 * * *", "0 3 * * *")
	require.NoError(t, err)
	assert.Len(t, regs, 2)
}

type fakeInspector struct {
	info *asynq.QueueInfo
	err  error
}

func (f fakeInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) { return f.info, f.err }

func TestHealthEndpoint(t *testing.T) {
	serve := func(inspector QueueInspector) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", NewHandler(inspector, nil).MountRoutes)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rec
	}

	rec := serve(nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"queue":"default"`)

	rec = serve(fakeInspector{info: &asynq.QueueInfo{Queue: QueueDefault, Pending: 3, Retry: 1}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"pending":3`)
	assert.Contains(t, rec.Body.String(), `"retry":1`)

	rec = serve(fakeInspector{err: errors.New("redis down")})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
