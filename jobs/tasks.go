package jobs

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the queue every invoicing task runs on.
	QueueDefault = "default"
	// TaskEstimatesExpire marks overdue estimates as expired.
	TaskEstimatesExpire = "estimates:expire"
	// TaskIdempotencyCleanup prunes old idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// SchedulePayload carries scheduling metadata shared by the periodic tasks.
type SchedulePayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

var knownTasks = map[string]bool{
	TaskEstimatesExpire:    true,
	TaskIdempotencyCleanup: true,
}

// TaskTypes lists the task types the worker handles.
func TaskTypes() []string {
	out := make([]string, 0, len(knownTasks))
	for t := range knownTasks {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// NewTask builds a periodic task of the given type.
func NewTask(taskType string, at time.Time) (*asynq.Task, error) {
	if !knownTasks[taskType] {
		return nil, fmt.Errorf("jobs: unknown task type %q", taskType)
	}
	body, err := json.Marshal(SchedulePayload{ScheduledFor: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(taskType, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func decodeSchedule(t *asynq.Task) (SchedulePayload, error) {
	var payload SchedulePayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
