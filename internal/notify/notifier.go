// Package notify provides multi-channel alert notification delivery.
// Channel failures are isolated: every failure is recorded in the dispatch
// result and never stops delivery on the remaining channels.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
	"geowatch-go/internal/metrics"
)

// ChannelResult is the delivery outcome for a single channel.
type ChannelResult struct {
	// Success is true when at least one delivery on this channel worked.
	Success bool `json:"success"`

	// Sent counts successful deliveries (recipients or URLs).
	Sent int `json:"sent_count"`

	// Attempted counts delivery attempts on this channel.
	Attempted int `json:"total_attempted"`

	// Errors lists every delivery failure on this channel.
	Errors []string `json:"errors,omitempty"`
}

// DispatchResult aggregates the per-channel outcomes of one alert dispatch.
// Success is partial-tolerant: it is true when ANY channel succeeded.
type DispatchResult struct {
	// NotificationID uniquely identifies this dispatch attempt.
	NotificationID string `json:"notification_id"`

	// AlertID references the dispatched alert.
	AlertID string `json:"alert_id"`

	// SentAt is when the dispatch started.
	SentAt time.Time `json:"sent_at"`

	// Success is true iff at least one channel succeeded.
	Success bool `json:"success"`

	// Channels holds the per-channel results, keyed by channel name.
	Channels map[string]ChannelResult `json:"channels"`

	// Errors lists dispatch-level failures such as unknown channel names.
	Errors []string `json:"errors,omitempty"`
}

// Channel is a single notification delivery mechanism. Implementations
// return structured results instead of failing: a channel never panics and
// never aborts a dispatch.
type Channel interface {
	// Name returns the channel's routing name (e.g. "email").
	Name() string

	// Send delivers an alert to the given recipients. The context bounds
	// any network I/O the channel performs.
	Send(ctx context.Context, alert *domain.Alert, recipients []string) ChannelResult
}

// Manager dispatches alerts across the configured channels. It treats the
// alert as read-only shared data and must not mutate it.
type Manager struct {
	channels map[string]Channel
	logger   *slog.Logger
}

// NewManager creates a manager with the built-in email, webhook and sms
// channels wired from config.
func NewManager(cfg config.NotificationsConfig, logger *slog.Logger) *Manager {
	m := &Manager{
		channels: make(map[string]Channel),
		logger:   logger,
	}
	m.Register(NewEmailChannel(cfg.Email, logger))
	m.Register(NewWebhookChannel(cfg.Webhook, logger))
	m.Register(NewSMSChannel(cfg.SMS, logger))
	return m
}

// Register adds or replaces a channel by name.
func (m *Manager) Register(ch Channel) {
	m.channels[ch.Name()] = ch
}

// Dispatch attempts delivery of the alert on every requested channel.
// Unknown channel names are recorded as errors without aborting the rest.
// The returned result's Success is true iff any channel succeeded.
func (m *Manager) Dispatch(ctx context.Context, alert *domain.Alert, recipients, channels []string) DispatchResult {
	start := time.Now()
	result := DispatchResult{
		NotificationID: uuid.New().String(),
		AlertID:        alert.ID,
		SentAt:         start.UTC(),
		Channels:       make(map[string]ChannelResult, len(channels)),
	}

	for _, name := range channels {
		ch, ok := m.channels[name]
		if !ok {
			msg := fmt.Sprintf("unknown notification channel %q", name)
			result.Errors = append(result.Errors, msg)
			m.logger.Warn("skipping unknown notification channel",
				"channel", name,
				"alertID", alert.ID,
			)
			continue
		}

		chResult := ch.Send(ctx, alert, recipients)
		result.Channels[name] = chResult

		status := "failure"
		if chResult.Success {
			status = "success"
			result.Success = true
		}
		metrics.NotificationsSentTotal.WithLabelValues(name, status).Inc()

		m.logger.Debug("channel dispatch finished",
			"channel", name,
			"alertID", alert.ID,
			"success", chResult.Success,
			"sent", chResult.Sent,
			"attempted", chResult.Attempted,
		)
	}

	metrics.DispatchLatency.Observe(time.Since(start).Seconds())

	if !result.Success {
		m.logger.Warn("alert dispatch failed on every channel",
			"alertID", alert.ID,
			"notificationID", result.NotificationID,
			"channels", channels,
		)
	}

	return result
}
