// Package redis provides a Redis-based implementation of the state store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"geowatch-go/internal/config"
	"geowatch-go/internal/domain"
)

// Key prefixes for the different state types in Redis.
const (
	prefixDispatched = "dispatched:"
	prefixRegion     = "region:"
)

// StateStore implements store.StateStore using Redis.
type StateStore struct {
	client *redis.Client
}

// NewStateStore creates a new Redis-backed state store.
func NewStateStore(cfg *config.RedisConfig) (*StateStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &StateStore{client: client}, nil
}

// MarkDispatched records a dispatch fingerprint via SETNX with a ttl.
// Returns true when the key was newly set, meaning this is the first
// dispatch inside the dedup window.
func (s *StateStore) MarkDispatched(ctx context.Context, fingerprint string, ttl time.Duration) (bool, error) {
	key := prefixDispatched + fingerprint

	acquired, err := s.client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark dispatched: %w", err)
	}

	return acquired, nil
}

// GetRegionSeverity returns the last recorded severity for a region, or ""
// when none is recorded.
func (s *StateStore) GetRegionSeverity(ctx context.Context, region string) (domain.Severity, error) {
	key := prefixRegion + region

	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("failed to get region severity: %w", err)
	}

	return domain.Severity(val), nil
}

// SetRegionSeverity records a region's current severity tier with a ttl.
func (s *StateStore) SetRegionSeverity(ctx context.Context, region string, sev domain.Severity, ttl time.Duration) error {
	key := prefixRegion + region

	if err := s.client.Set(ctx, key, string(sev), ttl).Err(); err != nil {
		return fmt.Errorf("failed to set region severity: %w", err)
	}

	return nil
}

// Close closes the Redis client connection.
func (s *StateStore) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
