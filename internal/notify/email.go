package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/smtp"
	"strings"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// EmailChannel delivers alerts over SMTP, one message per recipient.
// A failure for one recipient does not stop delivery to the rest.
type EmailChannel struct {
	cfg    config.EmailConfig
	auth   smtp.Auth
	logger *slog.Logger

	// send is injectable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailChannel creates an email channel from SMTP configuration.
func NewEmailChannel(cfg config.EmailConfig, logger *slog.Logger) *EmailChannel {
	var auth smtp.Auth
	if cfg.Username != "" && cfg.Password != "" {
		auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}

	return &EmailChannel{
		cfg:    cfg,
		auth:   auth,
		logger: logger,
		send:   smtp.SendMail,
	}
}

// Name returns "email".
func (c *EmailChannel) Name() string {
	return "email"
}

// Send emails the alert to each recipient individually, counting failures
// per recipient without stopping.
func (c *EmailChannel) Send(ctx context.Context, alert *domain.Alert, recipients []string) ChannelResult {
	result := ChannelResult{Attempted: len(recipients)}

	if c.cfg.Host == "" {
		result.Errors = append(result.Errors, "email channel not configured: missing smtp host")
		return result
	}

	body := c.buildMessage(alert)

	for _, recipient := range recipients {
		msg := append([]byte(fmt.Sprintf("To: %s\r\n", sanitizeHeader(recipient))), body...)
		if err := c.send(c.cfg.SMTPAddr(), c.auth, c.cfg.FromAddress, []string{recipient}, msg); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("email to %s: %v", recipient, err))
			c.logger.Warn("email delivery failed",
				"recipient", recipient,
				"alertID", alert.ID,
				"error", err,
			)
			continue
		}
		result.Sent++
	}

	result.Success = result.Sent > 0
	return result
}

// buildMessage renders the shared message headers and body; the To header
// is prepended per recipient.
func (c *EmailChannel) buildMessage(alert *domain.Alert) []byte {
	fromHeader := c.cfg.FromAddress
	if strings.TrimSpace(c.cfg.FromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", c.cfg.FromName, c.cfg.FromAddress)
	}

	subject := fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title)

	lines := []string{
		fmt.Sprintf("From: %s", sanitizeHeader(fromHeader)),
		fmt.Sprintf("Subject: %s", sanitizeHeader(subject)),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		alert.Description,
		"",
		fmt.Sprintf("Region: %s", alert.Region),
		fmt.Sprintf("Severity: %s", alert.Severity),
		fmt.Sprintf("Threat score: %.1f", alert.ThreatScore),
		fmt.Sprintf("Alert ID: %s", alert.ID),
	}

	return []byte(strings.Join(lines, "\r\n"))
}

// sanitizeHeader strips CRLF to prevent header injection.
func sanitizeHeader(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return s
}
