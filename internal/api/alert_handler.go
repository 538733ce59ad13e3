package api

import (
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"geowatch-go/internal/domain"
	"geowatch-go/internal/store"
)

// AlertHandler handles HTTP requests for alert queries. Alerts are
// immutable, so the API is read-only.
type AlertHandler struct {
	repo   store.AlertRepository
	logger *slog.Logger
}

// NewAlertHandler creates a new alert handler.
func NewAlertHandler(repo store.AlertRepository, logger *slog.Logger) *AlertHandler {
	return &AlertHandler{
		repo:   repo,
		logger: logger,
	}
}

// List handles GET /v1/alerts
// Returns alerts matching query parameters, newest first.
func (h *AlertHandler) List(c *fiber.Ctx) error {
	filter := domain.AlertFilter{
		Region: c.Query("region"),
	}

	if alertType := c.Query("type"); alertType != "" {
		filter.Type = domain.AlertType(alertType)
		if !filter.Type.IsValid() {
			return BadRequest(c, "unknown alert type")
		}
	}

	if severity := c.Query("severity"); severity != "" {
		filter.Severity = domain.Severity(severity)
		if !filter.Severity.IsValid() {
			return BadRequest(c, "unknown severity")
		}
	}

	if limit := c.Query("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			filter.Limit = l
		}
	}
	if offset := c.Query("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			filter.Offset = o
		}
	}

	if filter.Limit == 0 {
		filter.Limit = 100
	}

	alerts, err := h.repo.List(c.Context(), filter)
	if err != nil {
		h.logger.Error("failed to list alerts", "error", err)
		return InternalError(c, "failed to list alerts")
	}

	return Success(c, alerts)
}

// GetByID handles GET /v1/alerts/:id
// Returns a single alert by its ID.
func (h *AlertHandler) GetByID(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return BadRequest(c, "id is required")
	}

	alert, err := h.repo.GetByID(c.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrAlertNotFound) {
			return NotFound(c, "alert not found")
		}
		h.logger.Error("failed to get alert", "error", err, "id", id)
		return InternalError(c, "failed to get alert")
	}

	return Success(c, alert)
}
