package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Queue names. Each queue carries exactly one payload shape.
const (
	QueueCrawlTarget     = "crawl_target"
	QueueProcessEvidence = "process_evidence"
	QueueSendAlertEmail  = "send_alert_email"
)

// QueueNames lists every queue for registration and stats.
var QueueNames = []string{QueueCrawlTarget, QueueProcessEvidence, QueueSendAlertEmail}

// Job priorities. Lower value is claimed first.
const (
	PriorityEmail    = 0
	PriorityCrawl    = 1
	PriorityEvidence = 2
)

// ErrNoJob is returned by Receive when no job is ready on the queue.
var ErrNoJob = errors.New("no jobs ready")

// JobStatus is the queue-side lifecycle of a job. Waiting, active and
// delayed jobs hold their idempotency key; completed and failed jobs
// release it.
type JobStatus string

const (
	JobStatusWaiting   JobStatus = "waiting"
	JobStatusActive    JobStatus = "active"
	JobStatusDelayed   JobStatus = "delayed"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
)

// Job is the durable queue record. The payload passes through opaque;
// handlers decode it against the queue's payload struct.
type Job struct {
	ID             string          `json:"id"` // job_{uuid}
	Queue          string          `json:"queue"`
	Payload        json.RawMessage `json:"payload"`
	IdempotencyKey string          `json:"idempotency_key"`
	Priority       int             `json:"priority"`

	Status      JobStatus `json:"status"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	LastError   string    `json:"last_error,omitempty"`

	EnqueuedAt  time.Time  `json:"enqueued_at"`
	VisibleAt   time.Time  `json:"visible_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CrawlTargetPayload drives the crawl_target queue.
type CrawlTargetPayload struct {
	CompanyID string `json:"company_id"`
	TargetID  string `json:"target_id"`
	URL       string `json:"url"`
	RunID     string `json:"run_id,omitempty"` // crawl run bookkeeping
}

// ProcessEvidencePayload drives the process_evidence queue.
type ProcessEvidencePayload struct {
	EvidenceID string `json:"evidence_id"`
	PDFURL     string `json:"pdf_url"`
	CompanyID  string `json:"company_id"`
}

// SendAlertEmailPayload drives the send_alert_email queue.
type SendAlertEmailPayload struct {
	EventID        string `json:"event_id"`
	UserID         string `json:"user_id"`
	RecipientEmail string `json:"recipient_email"`
}

// Idempotency keys. Re-enqueueing the same key while a job is live is
// a no-op returning the existing job.

func CrawlJobKey(companyID, targetID string) string {
	return fmt.Sprintf("crawl-%s-%s", companyID, targetID)
}

func EvidenceJobKey(evidenceID string) string {
	return fmt.Sprintf("evidence-%s", evidenceID)
}

func EmailJobKey(eventID, userID string) string {
	return fmt.Sprintf("email-%s-%s", eventID, userID)
}
