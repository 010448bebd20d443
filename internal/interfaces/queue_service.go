package interfaces

import (
	"context"

	"github.com/ternarybob/fides/internal/models"
)

// QueueStats summarises one named queue for status reporting.
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Delayed   int `json:"delayed"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// QueueManager manages the durable named job queues.
type QueueManager interface {
	Start() error
	Stop() error

	// Enqueue submits a job. When a job with the same idempotency key
	// is waiting, active, or delayed, the call is a no-op and returns
	// the existing job ID. Completed and failed jobs do not block.
	Enqueue(ctx context.Context, queue string, payload interface{}, idempotencyKey string, priority int) (string, error)

	// Receive claims the next ready job, ordered by priority then
	// visibility time. Returns models.ErrNoJob when nothing is ready.
	Receive(ctx context.Context, queue string) (*models.Job, error)

	// Complete marks a claimed job done and releases its idempotency key.
	Complete(ctx context.Context, job *models.Job) error

	// Fail records a failed attempt. Jobs with attempts remaining are
	// re-scheduled with exponential backoff; exhausted jobs move to the
	// failed retention set and release their idempotency key.
	Fail(ctx context.Context, job *models.Job, jobErr error) error

	Stats(ctx context.Context) (map[string]QueueStats, error)
}

// JobHandler processes one claimed job. Returning an error sends the
// job back through the queue's retry policy.
type JobHandler func(ctx context.Context, job *models.Job) error

// WorkerPool manages concurrent job processing across queues.
type WorkerPool interface {
	RegisterHandler(queue string, concurrency int, handler JobHandler)
	Start() error
	Stop() error
}
