package models

import "time"

// RunStatus is the lifecycle state of a crawl run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// CrawlRun tracks one crawl cycle for reporting. A run opened by the
// scheduler spans all companies (empty CompanyID); a manual run is
// scoped to one company. Workers fold their per-target results in via
// RunProgress; the run closes when every target has reported.
type CrawlRun struct {
	ID        string    `json:"id"`                                      // run_{uuid}
	CompanyID string    `json:"company_id,omitempty" badgerhold:"index"` // empty = all companies
	Status    RunStatus `json:"status"`

	TargetCount     int      `json:"target_count"`
	PagesProcessed  int      `json:"pages_processed"`
	ClaimsExtracted int      `json:"claims_extracted"`
	EventsCreated   int      `json:"events_created"`
	Errors          []string `json:"errors,omitempty"`

	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunProgress is one worker's contribution to a run, applied as a
// single atomic increment. Error carries the per-target failure text
// accumulated on the run; failures still count the page as processed
// so the run can close.
type RunProgress struct {
	Pages  int
	Claims int
	Events int
	Error  string
}
