package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"

	"github.com/ternarybob/fides/internal/interfaces"
	"github.com/ternarybob/fides/internal/models"
)

// EmailWorker drains the send_alert_email queue. The dispatcher has
// already applied the rate limit and stamped emailed-at; this worker
// only renders and delivers.
type EmailWorker struct {
	storage interfaces.StorageManager
	mailer  interfaces.MailSender
	events  interfaces.EventService
	logger  arbor.ILogger
}

// NewEmailWorker creates the alert email worker.
func NewEmailWorker(storage interfaces.StorageManager, mailer interfaces.MailSender, events interfaces.EventService, logger arbor.ILogger) *EmailWorker {
	return &EmailWorker{
		storage: storage,
		mailer:  mailer,
		events:  events,
		logger:  logger,
	}
}

// HandleSendEmail processes one send_alert_email job. A missing event
// or company means the record was deleted after enqueue; the job is
// dropped without error. Delivery failures return an error so the
// queue's retry policy applies.
func (w *EmailWorker) HandleSendEmail(ctx context.Context, job *models.Job) error {
	var payload models.SendAlertEmailPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("invalid alert email payload: %w", err)
	}

	event, err := w.storage.Events().GetEvent(ctx, payload.EventID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.logger.Warn().
				Str("event_id", payload.EventID).
				Msg("Alert event no longer exists, dropping email job")
			return nil
		}
		return fmt.Errorf("failed to load event %s: %w", payload.EventID, err)
	}

	company, err := w.storage.Companies().GetCompany(ctx, event.CompanyID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			w.logger.Warn().
				Str("company_id", event.CompanyID).
				Str("event_id", event.ID).
				Msg("Company no longer exists, dropping email job")
			return nil
		}
		return fmt.Errorf("failed to load company %s: %w", event.CompanyID, err)
	}

	subject := alertSubject(event, company)
	markdown := alertMarkdown(event, company)
	htmlBody := renderHTML(markdown, w.logger)

	if err := w.mailer.Send(ctx, []string{payload.RecipientEmail}, subject, htmlBody, markdown); err != nil {
		return fmt.Errorf("failed to send alert email: %w", err)
	}

	if w.events != nil {
		w.events.Publish(ctx, interfaces.Event{
			Type:    interfaces.EventAlertSent,
			Payload: event,
		})
	}

	w.logger.Info().
		Str("event_id", event.ID).
		Str("company_id", company.ID).
		Str("recipient", payload.RecipientEmail).
		Msg("Alert email sent")
	return nil
}

func alertSubject(event *models.ChangeEvent, company *models.Company) string {
	return fmt.Sprintf("[Fides] %s: %s %s at %s",
		strings.ToUpper(string(event.Severity)), event.Key, describeChange(event.EventType), company.Name)
}

// alertMarkdown builds the email body. The plain-text alternative is
// this markdown verbatim; the HTML part is rendered from it.
func alertMarkdown(event *models.ChangeEvent, company *models.Company) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Trust page change detected\n\n")
	fmt.Fprintf(&b, "**Company:** %s (%s)\n\n", company.Name, company.Domain)
	fmt.Fprintf(&b, "**Claim:** %s (%s)\n\n", event.Key, event.ClaimType)
	fmt.Fprintf(&b, "**Change:** %s\n\n", describeChange(event.EventType))
	fmt.Fprintf(&b, "**Severity:** %s\n\n", event.Severity)
	fmt.Fprintf(&b, "**Detected:** %s\n\n", event.DetectedAt.Format(time.RFC1123))

	if event.OldSnippet != "" {
		fmt.Fprintf(&b, "## Previous wording\n\n> %s\n\n", event.OldSnippet)
	}
	if event.NewSnippet != "" {
		fmt.Fprintf(&b, "## Current wording\n\n> %s\n\n", event.NewSnippet)
	}

	fmt.Fprintf(&b, "Source page: %s\n\n", event.SourceURL)
	fmt.Fprintf(&b, "Current risk score: %d/%d\n", company.RiskScore, models.MaxRiskScore)

	return b.String()
}

func describeChange(eventType models.EventType) string {
	switch eventType {
	case models.EventAdded:
		return "claim added"
	case models.EventRemoved:
		return "claim removed"
	case models.EventWeakened:
		return "commitment weakened"
	case models.EventReversed:
		return "claim reversed"
	case models.EventNumberChanged:
		return "number changed"
	default:
		return string(eventType)
	}
}

// renderHTML converts the markdown body to HTML for the email's rich
// part. On conversion failure the markdown is shipped inside pre tags.
func renderHTML(markdown string, logger arbor.ILogger) string {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
		),
		goldmark.WithRendererOptions(
			html.WithHardWraps(),
			html.WithXHTML(),
		),
	)

	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		logger.Error().Err(err).Msg("Failed to convert alert markdown to HTML")
		return "<pre>" + markdown + "</pre>"
	}
	return buf.String()
}
