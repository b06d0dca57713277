// Package dedupe suppresses reprocessing of redelivered messages. The
// transport may deliver the same message twice; a short-TTL seen-marker per
// message ID keeps the second delivery from advancing a workflow twice.
package dedupe

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store records message IDs as seen.
type Store interface {
	// Seen marks messageID as processed and reports whether it had
	// already been marked within the TTL window. The check and the mark
	// are a single atomic operation.
	Seen(ctx context.Context, messageID string, ttl time.Duration) (bool, error)
}

// --- MemoryStore ---

// MemoryStore is an in-memory Store for testing and single-instance
// deployments.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory dedupe store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// Seen marks messageID and reports a prior unexpired mark.
func (s *MemoryStore) Seen(_ context.Context, messageID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	expiresAt, exists := s.entries[messageID]
	if exists && now.Before(expiresAt) {
		return true, nil
	}
	s.entries[messageID] = now.Add(ttl)
	return false, nil
}

// Len returns the number of entries, including expired ones. For testing.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// --- RedisStore ---

// RedisStore is a Redis-backed Store shared across instances.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a Redis-backed dedupe store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Seen sets the marker with SET NX, which is atomic in Redis: exactly one
// delivery of a message observes false.
func (s *RedisStore) Seen(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	set, err := s.client.SetNX(ctx, "dedupe:"+messageID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("dedupe setnx: %w", err)
	}
	return !set, nil
}
