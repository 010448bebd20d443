// -----------------------------------------------------------------------
// SMTP mail sender for change alerts. Credentials come from the smtp
// section of the config file; an empty host selects the log-only sender.
// -----------------------------------------------------------------------

package alerts

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/fides/internal/common"
	"github.com/ternarybob/fides/internal/interfaces"
)

// SMTPSender delivers alert emails over SMTP with TLS.
type SMTPSender struct {
	config common.SMTPConfig
	logger arbor.ILogger
}

// NewSMTPSender creates an SMTP-backed mail sender.
func NewSMTPSender(config common.SMTPConfig, logger arbor.ILogger) *SMTPSender {
	return &SMTPSender{
		config: config,
		logger: logger,
	}
}

// Send builds a multipart/alternative message and delivers it. Both
// parts are base64 encoded so long lines in snippets survive transit.
func (s *SMTPSender) Send(ctx context.Context, to []string, subject, htmlBody, textBody string) error {
	if s.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if s.config.From == "" {
		return fmt.Errorf("SMTP from address not configured")
	}
	if len(to) == 0 {
		return fmt.Errorf("no recipients")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s <%s>\r\n", s.config.FromName, s.config.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))

	boundary := generateBoundary()
	msg.WriteString("MIME-Version: 1.0\r\n")
	msg.WriteString(fmt.Sprintf("Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary))
	msg.WriteString("\r\n")

	if textBody != "" {
		msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
		msg.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n")
		msg.WriteString("Content-Transfer-Encoding: base64\r\n")
		msg.WriteString("\r\n")
		msg.WriteString(encodeBase64WithLineBreaks(textBody))
		msg.WriteString("\r\n")
	}

	msg.WriteString(fmt.Sprintf("--%s\r\n", boundary))
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("Content-Transfer-Encoding: base64\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(encodeBase64WithLineBreaks(htmlBody))
	msg.WriteString("\r\n")

	msg.WriteString(fmt.Sprintf("--%s--\r\n", boundary))

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	var auth smtp.Auth
	if s.config.Username != "" {
		auth = smtp.PlainAuth("", s.config.Username, s.config.Password, s.config.Host)
	}

	if s.config.UseTLS {
		return s.sendWithTLS(addr, auth, to, msg.String())
	}
	return smtp.SendMail(addr, auth, s.config.From, to, []byte(msg.String()))
}

// sendWithTLS connects over implicit TLS, falling back to STARTTLS for
// servers that only listen on the submission port.
func (s *SMTPSender) sendWithTLS(addr string, auth smtp.Auth, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: host})
	if err != nil {
		return s.sendWithSTARTTLS(addr, auth, to, msg)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, host)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Close()

	return s.transmit(client, auth, to, msg)
}

func (s *SMTPSender) sendWithSTARTTLS(addr string, auth smtp.Auth, to []string, msg string) error {
	host := strings.Split(addr, ":")[0]

	client, err := smtp.Dial(addr)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer client.Close()

	if err := client.StartTLS(&tls.Config{ServerName: host}); err != nil {
		return fmt.Errorf("failed to start TLS: %w", err)
	}

	return s.transmit(client, auth, to, msg)
}

func (s *SMTPSender) transmit(client *smtp.Client, auth smtp.Auth, to []string, msg string) error {
	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(s.config.From); err != nil {
		return fmt.Errorf("failed to set mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to start data: %w", err)
	}
	if _, err := w.Write([]byte(msg)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close data writer: %w", err)
	}

	return client.Quit()
}

// LogSender writes alert emails to the log instead of sending them.
// Used in demo mode and whenever no SMTP host is configured.
type LogSender struct {
	logger arbor.ILogger
}

func NewLogSender(logger arbor.ILogger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(ctx context.Context, to []string, subject, htmlBody, textBody string) error {
	s.logger.Info().
		Strs("to", to).
		Str("subject", subject).
		Int("html_len", len(htmlBody)).
		Msg("Alert email (log sender, SMTP not configured)")
	return nil
}

// NewSender picks the SMTP sender when a host is configured and the
// log sender otherwise.
func NewSender(config common.SMTPConfig, logger arbor.ILogger) interfaces.MailSender {
	if config.Host == "" {
		logger.Warn().Msg("No SMTP host configured, alert emails will only be logged")
		return NewLogSender(logger)
	}
	return NewSMTPSender(config, logger)
}

// generateBoundary creates a unique MIME boundary string.
func generateBoundary() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "fides_boundary_fallback"
	}
	return fmt.Sprintf("fides_%x", b)
}

// encodeBase64WithLineBreaks encodes content as base64 with 76-char
// line breaks per RFC 2045.
func encodeBase64WithLineBreaks(content string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(content))

	var result strings.Builder
	const lineLen = 76

	for i := 0; i < len(encoded); i += lineLen {
		end := i + lineLen
		if end > len(encoded) {
			end = len(encoded)
		}
		result.WriteString(encoded[i:end])
		if end < len(encoded) {
			result.WriteString("\r\n")
		}
	}

	return result.String()
}
