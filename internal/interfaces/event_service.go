package interfaces

import "context"

// EventType represents different telemetry event types in the system
type EventType string

const (
	EventSchedulerTick        EventType = "scheduler.tick"
	EventCrawlTargetCompleted EventType = "crawl.target.completed"
	EventCrawlTargetFailed    EventType = "crawl.target.failed"
	EventClaimEventRecorded   EventType = "claim.event.recorded"
	EventEvidenceReady        EventType = "evidence.ready"
	EventEvidenceFailed       EventType = "evidence.failed"
	EventAlertSent            EventType = "alert.sent"
	EventAlertSuppressed      EventType = "alert.suppressed"
)

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages the in-process pub/sub telemetry bus. Durable
// work never rides the bus; that is the queue's job.
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes an event and waits for all handlers
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
