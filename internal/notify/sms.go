package notify

import (
	"context"
	"log/slog"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// SMSChannel is a placeholder channel until a real provider is integrated.
// It reports success without delivering anything so it never blocks or
// fails the other channels.
type SMSChannel struct {
	cfg    config.SMSConfig
	logger *slog.Logger
}

// NewSMSChannel creates the SMS stub channel.
func NewSMSChannel(cfg config.SMSConfig, logger *slog.Logger) *SMSChannel {
	return &SMSChannel{
		cfg:    cfg,
		logger: logger,
	}
}

// Name returns "sms".
func (c *SMSChannel) Name() string {
	return "sms"
}

// Send logs the would-be delivery and reports success for each recipient.
func (c *SMSChannel) Send(ctx context.Context, alert *domain.Alert, recipients []string) ChannelResult {
	c.logger.Info("STUB: would send sms notification",
		"alertID", alert.ID,
		"severity", alert.Severity,
		"recipients", len(recipients),
	)

	return ChannelResult{
		Success:   true,
		Sent:      len(recipients),
		Attempted: len(recipients),
	}
}
