// Package store defines interfaces for alert persistence and fast state
// operations. These abstractions allow swapping implementations (in-memory,
// Redis, PostgreSQL) without changing the monitoring logic.
package store

import (
	"context"
	"time"

	"geowatch-go/internal/domain"
)

// AlertRepository defines the interface for durable alert storage, the
// queryable sink behind the HTTP API. This is typically backed by PostgreSQL
// in production.
type AlertRepository interface {
	// Create stores a new alert. Alerts are immutable: there is no update.
	Create(ctx context.Context, alert *domain.Alert) error

	// GetByID retrieves an alert by its ID.
	GetByID(ctx context.Context, id string) (*domain.Alert, error)

	// List retrieves alerts matching the filter criteria, newest first.
	List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error)

	// CountSince returns the number of alerts created at or after t.
	CountSince(ctx context.Context, t time.Time) (int, error)
}

// StateStore defines the interface for fast shared state used during event
// processing: dispatch deduplication and per-region severity memory.
// This is typically backed by Redis in production. All methods must be safe
// for concurrent use.
type StateStore interface {
	// MarkDispatched records that an alert with the given fingerprint was
	// dispatched, expiring after ttl. It returns true when the fingerprint
	// was not already present - i.e. the caller holds the first dispatch
	// inside the window and should proceed.
	MarkDispatched(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error)

	// GetRegionSeverity returns the last recorded severity tier for a
	// region, or "" when none is recorded.
	GetRegionSeverity(ctx context.Context, region string) (domain.Severity, error)

	// SetRegionSeverity records a region's current severity tier with the
	// given ttl.
	SetRegionSeverity(ctx context.Context, region string, sev domain.Severity, ttl time.Duration) error

	// Close releases any resources held by the store.
	Close() error
}
