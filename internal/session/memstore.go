package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pitabwire/aduan/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]model.Session
}

// NewMemoryStore creates a new in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]model.Session),
	}
}

// Put writes a session record.
func (s *MemoryStore) Put(_ context.Context, sess model.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[sess.ID] = sess
	return nil
}

// Get retrieves a session record by ID.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (model.Session, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[sessionID]
	return sess, exists, nil
}

// UpdateActivity conditionally bumps last_activity and reactivates the
// record, only if it still exists.
func (s *MemoryStore) UpdateActivity(_ context.Context, sessionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return model.NewSessionNotFoundError(sessionID)
	}
	sess.LastActivity = at
	sess.Status = model.SessionStatusActive
	s.sessions[sessionID] = sess
	return nil
}

// SetStatus conditionally updates the status of an existing record.
func (s *MemoryStore) SetStatus(_ context.Context, sessionID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[sessionID]
	if !exists {
		return model.NewSessionNotFoundError(sessionID)
	}
	sess.Status = status
	s.sessions[sessionID] = sess
	return nil
}

// Delete removes a session record. Absent records are not an error.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// ScanLastActivityBefore returns one page of records idle since before the
// cutoff, ordered by session ID for a stable cursor.
func (s *MemoryStore) ScanLastActivityBefore(_ context.Context, cutoff time.Time, limit int, cursor string) (ScanPage, error) {
	return s.scan(limit, cursor, func(sess model.Session) bool {
		return sess.LastActivity.Before(cutoff)
	})
}

// ScanInactive returns one page of records with status INACTIVE.
func (s *MemoryStore) ScanInactive(_ context.Context, limit int, cursor string) (ScanPage, error) {
	return s.scan(limit, cursor, func(sess model.Session) bool {
		return sess.Status == model.SessionStatusInactive
	})
}

// scan pages over matching records in session-ID order.
func (s *MemoryStore) scan(limit int, cursor string, match func(model.Session) bool) (ScanPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id <= cursor {
			continue
		}
		if match(sess) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := ScanPage{}
	for _, id := range ids {
		if limit > 0 && len(page.Sessions) >= limit {
			// More matches remain; resume after the last returned record.
			page.Cursor = page.Sessions[len(page.Sessions)-1].ID
			break
		}
		page.Sessions = append(page.Sessions, s.sessions[id])
	}
	return page, nil
}

// BatchDelete removes the given records, returning how many existed.
func (s *MemoryStore) BatchDelete(_ context.Context, sessionIDs []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for _, id := range sessionIDs {
		if _, exists := s.sessions[id]; exists {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

// CountActive returns the number of ACTIVE records.
func (s *MemoryStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, sess := range s.sessions {
		if sess.Status == model.SessionStatusActive {
			count++
		}
	}
	return count, nil
}

// Len returns the total number of records. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// HealthCheck implements observability.HealthChecker.
func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }
