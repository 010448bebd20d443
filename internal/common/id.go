package common

import (
	"github.com/google/uuid"
)

// Typed ID constructors. The prefix makes log lines and payloads
// self-describing.

// NewCompanyID generates a unique company ID. Format: cmp_<uuid>
func NewCompanyID() string {
	return "cmp_" + uuid.New().String()
}

// NewTargetID generates a unique crawl target ID. Format: tgt_<uuid>
func NewTargetID() string {
	return "tgt_" + uuid.New().String()
}

// NewClaimID generates a unique claim ID. Format: clm_<uuid>
func NewClaimID() string {
	return "clm_" + uuid.New().String()
}

// NewVersionID generates a unique claim version ID. Format: ver_<uuid>
func NewVersionID() string {
	return "ver_" + uuid.New().String()
}

// NewEventID generates a unique change event ID. Format: evt_<uuid>
func NewEventID() string {
	return "evt_" + uuid.New().String()
}

// NewRunID generates a unique crawl run ID. Format: run_<uuid>
func NewRunID() string {
	return "run_" + uuid.New().String()
}

// NewEvidenceID generates a unique evidence ID. Format: evd_<uuid>
func NewEvidenceID() string {
	return "evd_" + uuid.New().String()
}

// NewUserID generates a unique user ID. Format: usr_<uuid>
func NewUserID() string {
	return "usr_" + uuid.New().String()
}

// NewJobID generates a unique queue job ID. Format: job_<uuid>
func NewJobID() string {
	return "job_" + uuid.New().String()
}
