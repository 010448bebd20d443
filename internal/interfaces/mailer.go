package interfaces

import "context"

// MailSender delivers one alert email. The body arrives as rendered
// HTML with a plain-text alternative.
type MailSender interface {
	Send(ctx context.Context, to []string, subject, htmlBody, textBody string) error
}
