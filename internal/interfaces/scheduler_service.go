package interfaces

import (
	"context"
	"time"
)

// SchedulerStatus is a snapshot of the crawl scheduler for the status
// surface.
type SchedulerStatus struct {
	Running   bool       `json:"running"`
	Schedule  string     `json:"schedule"`
	LastTick  *time.Time `json:"last_tick,omitempty"`
	NextTick  *time.Time `json:"next_tick,omitempty"`
	Ticking   bool       `json:"ticking"`
	LastRunID string     `json:"last_run_id,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}

// SchedulerService fires the periodic crawl cycle.
type SchedulerService interface {
	// Start arms the cron schedule. An empty expression falls back to
	// the default cadence.
	Start(cronExpr string) error

	// Stop disarms the schedule. In-flight ticks finish.
	Stop() error

	// IsRunning reports whether the schedule is armed.
	IsRunning() bool

	// RunOnce executes a single tick synchronously: take the leader
	// lock, enumerate companies, enqueue their targets. Returns nil
	// when another replica holds the lock.
	RunOnce(ctx context.Context) error

	// Status returns the current scheduler snapshot.
	Status() *SchedulerStatus
}
