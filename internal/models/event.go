package models

import "time"

// EventType classifies what happened to a claim between two crawls.
type EventType string

const (
	EventAdded         EventType = "ADDED"
	EventRemoved       EventType = "REMOVED"
	EventWeakened      EventType = "WEAKENED"
	EventReversed      EventType = "REVERSED"
	EventNumberChanged EventType = "NUMBER_CHANGED"
)

// Severity ranks a change event for triage and alerting.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityMedium   Severity = "medium"
	SeverityCritical Severity = "critical"
)

// ChangeEvent is an append-only record of one claim transition.
// Acknowledged and EmailedAt are the only fields mutated after insert.
//
// Snippet payload rules: REMOVED carries the old snippet only, ADDED
// the new snippet only, all other types carry both.
type ChangeEvent struct {
	ID        string    `json:"id"` // evt_{uuid}
	CompanyID string    `json:"company_id" badgerhold:"index"`
	ClaimType ClaimType `json:"claim_type"`
	Key       string    `json:"key"`

	EventType  EventType `json:"event_type"`
	Severity   Severity  `json:"severity" badgerhold:"index"`
	OldSnippet string    `json:"old_snippet,omitempty"`
	NewSnippet string    `json:"new_snippet,omitempty"`
	SourceURL  string    `json:"source_url"`

	DetectedAt   time.Time  `json:"detected_at"`
	Acknowledged bool       `json:"acknowledged"`
	EmailedAt    *time.Time `json:"emailed_at,omitempty"`
}

// ClassifySeverity maps an event to its severity. Pure function of the
// event type, the claim type, and whether a numeric value decreased.
func ClassifySeverity(eventType EventType, claimType ClaimType, numericDecrease bool) Severity {
	switch eventType {
	case EventRemoved:
		if claimType == ClaimTypeCompliance {
			return SeverityCritical
		}
		return SeverityMedium
	case EventWeakened, EventReversed:
		return SeverityCritical
	case EventNumberChanged:
		if numericDecrease {
			return SeverityMedium
		}
		return SeverityInfo
	default:
		return SeverityInfo
	}
}

// RiskDelta returns the additive risk contribution of an event.
// The company score accumulates these deltas capped at 100.
func RiskDelta(eventType EventType, severity Severity) int {
	switch {
	case eventType == EventReversed:
		return 30
	case eventType == EventRemoved && severity == SeverityCritical:
		return 40
	case eventType == EventWeakened && severity == SeverityCritical:
		return 40
	case eventType == EventNumberChanged && severity == SeverityMedium:
		return 10
	}
	return 0
}

// MaxRiskScore caps a company's cumulative risk score.
const MaxRiskScore = 100
