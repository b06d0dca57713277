package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/model"
)

func testSessionConfig() config.SessionConfig {
	return config.SessionConfig{
		TimeoutMinutes: 30,
		RecordTTL:      24 * time.Hour,
		Cleanup: config.CleanupConfig{
			BatchSize: 25,
			ScanLimit: 100,
		},
		Retry: config.RetryConfig{
			MaxAttempts:    3,
			BackoffInitial: time.Millisecond,
			BackoffMax:     5 * time.Millisecond,
		},
	}
}

func newTestManager(t *testing.T, store Store) *Manager {
	t.Helper()
	metrics := observability.InitMetrics(prometheus.NewRegistry())
	return NewManager(store, testSessionConfig(), zap.NewNop(), metrics)
}

// flakyStore fails writes a fixed number of times before delegating.
type flakyStore struct {
	Store
	failures int
}

func (f *flakyStore) Put(ctx context.Context, sess model.Session) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("transient store fault")
	}
	return f.Store.Put(ctx, sess)
}

// --- NewSession ---

func TestManager_NewSession(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)

	sess, err := mgr.NewSession(context.Background(), &model.ClientInfo{UserAgent: "test"})
	if err != nil {
		t.Fatalf("NewSession error: %v", err)
	}
	if !model.ValidSessionID(sess.ID) {
		t.Errorf("generated ID %q is not a valid session ID", sess.ID)
	}
	if sess.Status != model.SessionStatusActive {
		t.Errorf("Status = %q, want ACTIVE", sess.Status)
	}
	if !sess.CreatedAt.Equal(sess.LastActivity) {
		t.Error("CreatedAt and LastActivity must match on creation")
	}
	if sess.TTL <= sess.CreatedAt.Unix() {
		t.Errorf("TTL %d not in the future of created_at %d", sess.TTL, sess.CreatedAt.Unix())
	}

	stored, found, _ := store.Get(context.Background(), sess.ID)
	if !found {
		t.Fatal("session not persisted")
	}
	if stored.ID != sess.ID {
		t.Errorf("stored ID = %q", stored.ID)
	}
}

func TestManager_NewSession_unique_ids(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		sess, err := mgr.NewSession(context.Background(), nil)
		if err != nil {
			t.Fatalf("NewSession error: %v", err)
		}
		if seen[sess.ID] {
			t.Fatalf("duplicate session ID %q", sess.ID)
		}
		seen[sess.ID] = true
	}
}

func TestManager_NewSession_retries_transient_failure(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failures: 2}
	mgr := newTestManager(t, store)

	sess, err := mgr.NewSession(context.Background(), nil)
	if err != nil {
		t.Fatalf("NewSession should survive 2 transient failures with 3 attempts: %v", err)
	}
	if _, found, _ := store.Get(context.Background(), sess.ID); !found {
		t.Error("session missing after retried write")
	}
}

func TestManager_NewSession_exhausted_retries(t *testing.T) {
	store := &flakyStore{Store: NewMemoryStore(), failures: 10}
	mgr := newTestManager(t, store)

	_, err := mgr.NewSession(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if model.CodeOf(err) != model.ErrStoreUnavailable {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrStoreUnavailable)
	}
}

// --- Lookup ---

func TestManager_Lookup_found(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())
	created, _ := mgr.NewSession(context.Background(), nil)

	sess, outcome, err := mgr.Lookup(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if outcome != model.LookupFound {
		t.Fatalf("outcome = %v, want found", outcome)
	}
	if sess.ID != created.ID {
		t.Errorf("ID = %q", sess.ID)
	}
}

func TestManager_Lookup_malformed_id_skips_store(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)

	for _, id := range []string{"", "abc", "sess-short", "not-a-session-id-at-all"} {
		_, outcome, err := mgr.Lookup(context.Background(), id)
		if err != nil {
			t.Fatalf("Lookup(%q) error: %v", id, err)
		}
		if outcome != model.LookupNotFound {
			t.Errorf("Lookup(%q) outcome = %v, want not_found", id, outcome)
		}
	}
}

func TestManager_Lookup_expired_reconciles(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)

	created, _ := mgr.NewSession(context.Background(), nil)

	// Jump the clock past the inactivity timeout.
	mgr.now = func() time.Time { return created.LastActivity.Add(31 * time.Minute) }

	_, outcome, err := mgr.Lookup(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("Lookup error: %v", err)
	}
	if outcome != model.LookupExpired {
		t.Fatalf("outcome = %v, want expired", outcome)
	}

	stored, found, _ := store.Get(context.Background(), created.ID)
	if !found {
		t.Fatal("expiry must not delete the record, only mark it")
	}
	if stored.Status != model.SessionStatusInactive {
		t.Errorf("Status = %q, want INACTIVE after reconciliation", stored.Status)
	}

	// Once expired, the record never resolves as found again.
	_, outcome, _ = mgr.Lookup(context.Background(), created.ID)
	if outcome != model.LookupExpired {
		t.Errorf("second lookup outcome = %v, want expired", outcome)
	}
}

func TestManager_Lookup_at_exact_boundary_not_expired(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())
	created, _ := mgr.NewSession(context.Background(), nil)

	// Exactly at the timeout the session is still live; it expires strictly
	// after the window.
	mgr.now = func() time.Time { return created.LastActivity.Add(30 * time.Minute) }

	_, outcome, _ := mgr.Lookup(context.Background(), created.ID)
	if outcome != model.LookupFound {
		t.Errorf("outcome = %v, want found at exact boundary", outcome)
	}
}

// --- UpdateActivity ---

func TestManager_UpdateActivity_extends_window(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)
	created, _ := mgr.NewSession(context.Background(), nil)

	// Five messages spaced 10 minutes apart, each inside the 30 minute
	// window of the previous one. The session must stay alive throughout.
	clock := created.LastActivity
	var lastSeen time.Time
	for i := 0; i < 5; i++ {
		clock = clock.Add(10 * time.Minute)
		mgr.now = func() time.Time { return clock }

		_, outcome, err := mgr.Lookup(context.Background(), created.ID)
		if err != nil {
			t.Fatalf("Lookup error on message %d: %v", i+1, err)
		}
		if outcome != model.LookupFound {
			t.Fatalf("message %d: outcome = %v, want found", i+1, outcome)
		}
		if err := mgr.UpdateActivity(context.Background(), created.ID); err != nil {
			t.Fatalf("UpdateActivity error on message %d: %v", i+1, err)
		}

		stored, _, _ := store.Get(context.Background(), created.ID)
		if !stored.LastActivity.After(lastSeen) {
			t.Fatalf("message %d: last_activity %v did not advance past %v", i+1, stored.LastActivity, lastSeen)
		}
		lastSeen = stored.LastActivity
	}
}

func TestManager_UpdateActivity_deleted_session(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)
	created, _ := mgr.NewSession(context.Background(), nil)

	_ = store.Delete(context.Background(), created.ID)

	err := mgr.UpdateActivity(context.Background(), created.ID)
	if model.CodeOf(err) != model.ErrSessionNotFound {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrSessionNotFound)
	}
	if store.Len() != 0 {
		t.Error("conditional update resurrected a deleted session")
	}
}

func TestManager_TrackActivity_swallows_errors(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())

	// No session exists; the best-effort path must not panic or propagate.
	mgr.TrackActivity(context.Background(), model.SessionIDPrefix+"00000000-0000-0000-0000-000000000000")
}

// --- Close ---

func TestManager_Close(t *testing.T) {
	store := NewMemoryStore()
	mgr := newTestManager(t, store)
	created, _ := mgr.NewSession(context.Background(), nil)

	if err := mgr.Close(context.Background(), created.ID); err != nil {
		t.Fatalf("Close error: %v", err)
	}
	stored, _, _ := store.Get(context.Background(), created.ID)
	if stored.Status != model.SessionStatusInactive {
		t.Errorf("Status = %q, want INACTIVE", stored.Status)
	}
}

func TestManager_Close_absent(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())

	err := mgr.Close(context.Background(), model.SessionIDPrefix+"00000000-0000-0000-0000-000000000000")
	if model.CodeOf(err) != model.ErrSessionNotFound {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrSessionNotFound)
	}
}

// --- ActiveCount ---

func TestManager_ActiveCount(t *testing.T) {
	mgr := newTestManager(t, NewMemoryStore())
	a, _ := mgr.NewSession(context.Background(), nil)
	_, _ = mgr.NewSession(context.Background(), nil)
	_ = mgr.Close(context.Background(), a.ID)

	count, err := mgr.ActiveCount(context.Background())
	if err != nil {
		t.Fatalf("ActiveCount error: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}
