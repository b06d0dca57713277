package dedupe

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// --- MemoryStore ---

func TestMemoryStore_Seen(t *testing.T) {
	store := NewMemoryStore()

	seen, err := store.Seen(context.Background(), "msg-1", time.Minute)
	if err != nil {
		t.Fatalf("Seen error: %v", err)
	}
	if seen {
		t.Error("first delivery reported as seen")
	}

	seen, err = store.Seen(context.Background(), "msg-1", time.Minute)
	if err != nil {
		t.Fatalf("Seen error: %v", err)
	}
	if !seen {
		t.Error("second delivery not reported as seen")
	}

	if seen, _ := store.Seen(context.Background(), "msg-2", time.Minute); seen {
		t.Error("distinct message ID reported as seen")
	}
}

func TestMemoryStore_Seen_expires(t *testing.T) {
	store := NewMemoryStore()
	clock := time.Now()
	store.now = func() time.Time { return clock }

	if seen, _ := store.Seen(context.Background(), "msg-1", time.Minute); seen {
		t.Fatal("first delivery reported as seen")
	}

	clock = clock.Add(2 * time.Minute)
	if seen, _ := store.Seen(context.Background(), "msg-1", time.Minute); seen {
		t.Error("marker outlived its TTL")
	}
}

// --- RedisStore ---

func TestRedisStore_Seen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := NewRedisStore(client)

	seen, err := store.Seen(context.Background(), "msg-1", time.Minute)
	if err != nil {
		t.Fatalf("Seen error: %v", err)
	}
	if seen {
		t.Error("first delivery reported as seen")
	}
	if seen, _ := store.Seen(context.Background(), "msg-1", time.Minute); !seen {
		t.Error("second delivery not reported as seen")
	}

	// TTL expiry frees the marker.
	mr.FastForward(2 * time.Minute)
	if seen, _ := store.Seen(context.Background(), "msg-1", time.Minute); seen {
		t.Error("marker outlived its TTL")
	}
}
