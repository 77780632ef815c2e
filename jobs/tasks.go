package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity scans stock positions for ledger inconsistencies.
	TaskStockIntegrity = "stock:integrity"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// Cron schedules, evaluated in UTC.
const (
	StockIntegritySchedule     = "*/30 * * * *"
	IdempotencyCleanupSchedule = "0 3 * * *"
)

// ScheduledPayload carries scheduling metadata shared by periodic tasks.
type ScheduledPayload struct {
	RequestedAt time.Time `json:"requested_at"`
	Reason      string    `json:"reason,omitempty"`
}

// NewStockIntegrityTask constructs an Asynq task for the integrity scan.
func NewStockIntegrityTask(reason string) (*asynq.Task, error) {
	return newScheduledTask(TaskStockIntegrity, reason)
}

// NewIdempotencyCleanupTask constructs an Asynq task for key cleanup.
func NewIdempotencyCleanupTask() (*asynq.Task, error) {
	return newScheduledTask(TaskIdempotencyCleanup, "scheduled")
}

func newScheduledTask(kind, reason string) (*asynq.Task, error) {
	body, err := json.Marshal(ScheduledPayload{RequestedAt: time.Now().UTC(), Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(kind, body, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}

func decodeScheduled(t *asynq.Task) (ScheduledPayload, error) {
	var payload ScheduledPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, asynq.SkipRetry
	}
	return payload, nil
}

// DefaultCron returns the periodic registrations for the worker scheduler.
func DefaultCron() ([]CronRegistration, error) {
	integrity, err := NewStockIntegrityTask("scheduled")
	if err != nil {
		return nil, err
	}
	cleanup, err := NewIdempotencyCleanupTask()
	if err != nil {
		return nil, err
	}
	return []CronRegistration{
		{Spec: StockIntegritySchedule, Task: integrity},
		{Spec: IdempotencyCleanupSchedule, Task: cleanup},
	}, nil
}
