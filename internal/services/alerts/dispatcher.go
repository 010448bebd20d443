package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// Dispatcher owns the alert pipeline for Critical change events: the
// per-company rate limit, recipient resolution, and the hand-off to
// the send_alert_email queue.
//
// An event counts against the rolling window the moment its email job
// is enqueued. Send retries inside the mail worker never re-stamp it,
// so the window stays stable however long delivery takes.
type Dispatcher struct {
	storage  interfaces.StorageManager
	queueMgr interfaces.QueueManager
	events   interfaces.EventService
	logger   arbor.ILogger

	enabled          bool
	defaultRecipient string
	rateLimitMax     int
	rateLimitWindow  time.Duration
}

// NewDispatcher creates the alert dispatcher.
func NewDispatcher(
	storage interfaces.StorageManager,
	queueMgr interfaces.QueueManager,
	events interfaces.EventService,
	cfg common.AlertsConfig,
	logger arbor.ILogger,
) *Dispatcher {
	max := cfg.RateLimitMax
	if max <= 0 {
		max = 5
	}

	return &Dispatcher{
		storage:          storage,
		queueMgr:         queueMgr,
		events:           events,
		logger:           logger,
		enabled:          cfg.Enabled,
		defaultRecipient: cfg.DefaultRecipient,
		rateLimitMax:     max,
		rateLimitWindow:  common.ParseDurationOr(cfg.RateLimitWindow, time.Hour),
	}
}

// Dispatch queues an alert email for one Critical event. Suppression
// by the rate limit is silent: the event stays recorded, no error is
// returned, and emailed-at remains null.
func (d *Dispatcher) Dispatch(ctx context.Context, event *models.ChangeEvent, company *models.Company) error {
	if !d.enabled {
		d.logger.Debug().
			Str("event_id", event.ID).
			Msg("Alerting disabled, skipping dispatch")
		return nil
	}

	now := time.Now().UTC()
	windowStart := now.Add(-d.rateLimitWindow)

	emailed, err := d.storage.Events().CountEmailedSince(ctx, company.ID, windowStart)
	if err != nil {
		return fmt.Errorf("failed to count recent alerts: %w", err)
	}
	if emailed >= d.rateLimitMax {
		d.logger.Warn().
			Str("company_id", company.ID).
			Str("event_id", event.ID).
			Int("emailed_in_window", emailed).
			Msg("Alert rate limit reached, suppressing")

		if d.events != nil {
			d.events.Publish(ctx, interfaces.Event{
				Type:    interfaces.EventAlertSuppressed,
				Payload: event,
			})
		}
		return nil
	}

	recipient, userID := d.resolveRecipient(ctx, company)
	if recipient == "" {
		d.logger.Warn().
			Str("company_id", company.ID).
			Str("event_id", event.ID).
			Msg("No alert recipient available, skipping dispatch")
		return nil
	}

	payload := models.SendAlertEmailPayload{
		EventID:        event.ID,
		UserID:         userID,
		RecipientEmail: recipient,
	}
	if _, err := d.queueMgr.Enqueue(ctx, models.QueueSendAlertEmail, payload, models.EmailJobKey(event.ID, userID), models.PriorityEmail); err != nil {
		return fmt.Errorf("failed to enqueue alert email: %w", err)
	}

	if err := d.storage.Events().SetEmailedAt(ctx, event.ID, now); err != nil {
		return fmt.Errorf("failed to stamp emailed-at: %w", err)
	}

	d.logger.Info().
		Str("company_id", company.ID).
		Str("event_id", event.ID).
		Str("recipient", recipient).
		Msg("Alert email queued")
	return nil
}

// resolveRecipient prefers the company owner's address and falls back
// to the configured default recipient.
func (d *Dispatcher) resolveRecipient(ctx context.Context, company *models.Company) (string, string) {
	if company.UserID != "" {
		user, err := d.storage.Users().GetUser(ctx, company.UserID)
		if err == nil && user.Email != "" {
			return user.Email, user.ID
		}
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			d.logger.Warn().
				Err(err).
				Str("user_id", company.UserID).
				Msg("Failed to load company owner")
		}
	}

	return d.defaultRecipient, company.UserID
}
