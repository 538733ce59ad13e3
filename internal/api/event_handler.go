package api

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"geowatch-go/internal/domain"
	"geowatch-go/internal/monitor"
)

// EventHandler handles HTTP requests for event ingestion and monitor
// statistics.
type EventHandler struct {
	monitor *monitor.Monitor
	logger  *slog.Logger
}

// NewEventHandler creates a new event handler.
func NewEventHandler(mon *monitor.Monitor, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		monitor: mon,
		logger:  logger,
	}
}

// Ingest handles POST /v1/events
// Receives an event observation and enqueues it for asynchronous scoring.
// Returns 202 Accepted immediately; alerts appear once processed.
func (h *EventHandler) Ingest(c *fiber.Ctx) error {
	var event domain.EventData
	if err := c.BodyParser(&event); err != nil {
		h.logger.Debug("failed to parse event body", "error", err)
		return BadRequest(c, "invalid request body")
	}

	if err := h.monitor.AddEvent(c.Context(), event); err != nil {
		h.logger.Error("failed to enqueue event", "error", err, "region", event.Region)
		return InternalError(c, "failed to enqueue event")
	}

	return Accepted(c, map[string]string{
		"status": "accepted",
		"region": event.Region,
	})
}

// Statistics handles GET /v1/statistics
// Returns summary statistics over the monitor's alert history.
func (h *EventHandler) Statistics(c *fiber.Ctx) error {
	return Success(c, h.monitor.GetStatistics())
}
