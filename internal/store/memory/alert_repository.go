// Package memory provides in-memory implementations of the store
// interfaces, used in memory storage mode and in tests.
package memory

import (
	"context"
	"sync"
	"time"

	"geowatch-go/internal/domain"
)

// AlertRepository is an in-memory implementation of store.AlertRepository.
// Alerts are kept in insertion order plus an ID index for fast lookups.
type AlertRepository struct {
	mu sync.RWMutex

	// ordered holds alerts oldest first.
	ordered []*domain.Alert

	// byID provides fast lookup by alert ID.
	byID map[string]*domain.Alert
}

// NewAlertRepository creates a new in-memory alert repository.
func NewAlertRepository() *AlertRepository {
	return &AlertRepository{
		byID: make(map[string]*domain.Alert),
	}
}

// Create stores a new alert.
func (r *AlertRepository) Create(ctx context.Context, alert *domain.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Store a copy so callers cannot mutate repository state.
	alertCopy := *alert
	r.ordered = append(r.ordered, &alertCopy)
	r.byID[alert.ID] = &alertCopy

	return nil
}

// GetByID retrieves an alert by its ID.
func (r *AlertRepository) GetByID(ctx context.Context, id string) (*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alert, exists := r.byID[id]
	if !exists {
		return nil, domain.ErrAlertNotFound
	}

	result := *alert
	return &result, nil
}

// List retrieves alerts matching the filter criteria, newest first.
func (r *AlertRepository) List(ctx context.Context, filter domain.AlertFilter) ([]*domain.Alert, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var results []*domain.Alert
	for i := len(r.ordered) - 1; i >= 0; i-- {
		alert := r.ordered[i]
		if filter.Type != "" && alert.Type != filter.Type {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		if filter.Region != "" && alert.Region != filter.Region {
			continue
		}

		alertCopy := *alert
		results = append(results, &alertCopy)
	}

	start := filter.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}

	return results[start:end], nil
}

// CountSince returns the number of alerts created at or after t.
func (r *AlertRepository) CountSince(ctx context.Context, t time.Time) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, alert := range r.ordered {
		if !alert.Timestamp.Before(t) {
			count++
		}
	}
	return count, nil
}

// Clear removes all data from the repository. Useful for test cleanup.
func (r *AlertRepository) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ordered = nil
	r.byID = make(map[string]*domain.Alert)
}
