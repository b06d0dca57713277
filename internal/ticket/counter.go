// Package ticket issues unique ticket numbers for completed workflows.
package ticket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pitabwire/aduan/model"
)

// Number layout: ADU-YYYYMMDD-NNNNNN. The sequence resets daily; within a
// day it is strictly increasing, so numbers never repeat.
const numberFormat = "ADU-%s-%06d"

// Counter allocates ticket numbers. Implementations must never hand out the
// same number twice.
type Counter interface {
	Next(ctx context.Context, workflowType model.WorkflowType) (string, error)
}

// --- MemoryCounter ---

// MemoryCounter is an in-process Counter for testing and single-instance
// deployments.
type MemoryCounter struct {
	mu  sync.Mutex
	day string
	seq int64
	now func() time.Time
}

// NewMemoryCounter creates a new in-memory ticket counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Next allocates the next ticket number for today.
func (c *MemoryCounter) Next(_ context.Context, _ model.WorkflowType) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	day := c.now().Format("20060102")
	if day != c.day {
		c.day = day
		c.seq = 0
	}
	c.seq++
	return fmt.Sprintf(numberFormat, day, c.seq), nil
}

// --- RedisCounter ---

// RedisCounter allocates ticket numbers through a Redis atomic counter, so
// independently dispatched invocations never collide.
type RedisCounter struct {
	client redis.Cmdable
	now    func() time.Time
}

// NewRedisCounter creates a Redis-backed ticket counter.
func NewRedisCounter(client redis.Cmdable) *RedisCounter {
	return &RedisCounter{
		client: client,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Next increments the per-day sequence key and formats the ticket number.
// The key carries a two-day TTL so stale day counters reclaim themselves.
func (c *RedisCounter) Next(ctx context.Context, _ model.WorkflowType) (string, error) {
	day := c.now().Format("20060102")
	key := "ticket:seq:" + day

	seq, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("ticket counter incr: %w", err)
	}
	if seq == 1 {
		// First allocation of the day sets the reclamation TTL.
		if err := c.client.Expire(ctx, key, 48*time.Hour).Err(); err != nil {
			return "", fmt.Errorf("ticket counter expire: %w", err)
		}
	}
	return fmt.Sprintf(numberFormat, day, seq), nil
}
