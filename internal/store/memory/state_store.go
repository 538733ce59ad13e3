package memory

import (
	"context"
	"sync"
	"time"

	"geowatch-go/internal/domain"
)

// entry is a value with an optional expiry. A zero deadline never expires.
type entry struct {
	value    string
	deadline time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.deadline.IsZero() && now.After(e.deadline)
}

// StateStore is an in-memory implementation of store.StateStore with lazy
// TTL expiry. Safe for concurrent use.
type StateStore struct {
	mu         sync.Mutex
	dispatched map[string]entry
	regions    map[string]entry

	// now is injectable for tests; defaults to time.Now.
	now func() time.Time
}

// NewStateStore creates a new in-memory state store.
func NewStateStore() *StateStore {
	return &StateStore{
		dispatched: make(map[string]entry),
		regions:    make(map[string]entry),
		now:        time.Now,
	}
}

// MarkDispatched records a dispatch fingerprint with a ttl. It returns true
// when the fingerprint was not already present within its window.
func (s *StateStore) MarkDispatched(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.dispatched[fingerprint]; ok && !e.expired(now) {
		return false, nil
	}

	var deadline time.Time
	if ttl > 0 {
		deadline = now.Add(ttl)
	}
	s.dispatched[fingerprint] = entry{value: fingerprint, deadline: deadline}
	return true, nil
}

// GetRegionSeverity returns the last recorded severity for a region.
func (s *StateStore) GetRegionSeverity(ctx context.Context, region string) (domain.Severity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.regions[region]
	if !ok || e.expired(s.now()) {
		return "", nil
	}
	return domain.Severity(e.value), nil
}

// SetRegionSeverity records a region's current severity tier.
func (s *StateStore) SetRegionSeverity(ctx context.Context, region string, sev domain.Severity, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deadline time.Time
	if ttl > 0 {
		deadline = s.now().Add(ttl)
	}
	s.regions[region] = entry{value: string(sev), deadline: deadline}
	return nil
}

// Close releases resources. A no-op for the in-memory store.
func (s *StateStore) Close() error {
	return nil
}
