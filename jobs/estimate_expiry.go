package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/arkhan2/invoicing-system-sub001/internal/jobs"
)

// EstimateExpirer flips overdue draft and sent estimates to expired.
type EstimateExpirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// EstimateExpiryJob handles TaskEstimatesExpire.
type EstimateExpiryJob struct {
	Expirer EstimateExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Handle runs one expiry sweep.
func (j *EstimateExpiryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Expirer == nil {
		return errors.New("estimate expiry: handler not configured")
	}
	payload, err := decodeSchedule(t)
	if err != nil {
		return err
	}
	tracker := j.Metrics.Track(TaskEstimatesExpire)
	defer func() { err = tracker.End(err) }()

	logger := loggerOrDefault(j.Logger).With(slog.String("job", TaskEstimatesExpire))
	n, err := j.Expirer.ExpireOverdue(ctx)
	if err != nil {
		logger.Error("estimate expiry failed", slog.Any("error", err))
		return err
	}
	j.Metrics.AddAffected(TaskEstimatesExpire, n)
	logger.Info("estimate expiry completed",
		slog.Int64("expired", n),
		slog.Time("scheduled_for", payload.ScheduledFor))
	return nil
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
