package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs all pipeline events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		// Pull identifying fields out of the known payload shapes
		switch payload := event.Payload.(type) {
		case models.ChangeEvent:
			logEvent = logEvent.
				Str("company_id", payload.CompanyID).
				Str("key", payload.Key).
				Str("severity", string(payload.Severity))
		case *models.ChangeEvent:
			if payload != nil {
				logEvent = logEvent.
					Str("company_id", payload.CompanyID).
					Str("key", payload.Key).
					Str("severity", string(payload.Severity))
			}
		case models.CrawlTargetPayload:
			logEvent = logEvent.
				Str("company_id", payload.CompanyID).
				Str("target_id", payload.TargetID)
		case models.Evidence:
			logEvent = logEvent.
				Str("company_id", payload.CompanyID).
				Str("evidence_id", payload.ID)
		case *models.Evidence:
			if payload != nil {
				logEvent = logEvent.
					Str("company_id", payload.CompanyID).
					Str("evidence_id", payload.ID)
			}
		case map[string]interface{}:
			if id, ok := payload["run_id"].(string); ok {
				logEvent = logEvent.Str("run_id", id)
			}
			if id, ok := payload["company_id"].(string); ok {
				logEvent = logEvent.Str("company_id", id)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventSchedulerTick,
		interfaces.EventCrawlTargetCompleted,
		interfaces.EventCrawlTargetFailed,
		interfaces.EventClaimEventRecorded,
		interfaces.EventEvidenceReady,
		interfaces.EventEvidenceFailed,
		interfaces.EventAlertSent,
		interfaces.EventAlertSuppressed,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Info().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
