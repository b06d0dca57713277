package workflow

import (
	"context"
	"fmt"
	"sync"

	"github.com/pitabwire/aduan/model"
)

// MemoryStore is an in-memory Store for testing and single-instance
// deployments.
type MemoryStore struct {
	mu        sync.RWMutex
	byID      map[string]model.WorkflowContext
	bySession map[string]string
}

// NewMemoryStore creates a new in-memory workflow context store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:      make(map[string]model.WorkflowContext),
		bySession: make(map[string]string),
	}
}

// Create persists a new workflow context, one active per session.
func (s *MemoryStore) Create(_ context.Context, wctx model.WorkflowContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, busy := s.bySession[wctx.SessionID]; busy {
		return model.NewConflictError(
			fmt.Sprintf("session %q already has active workflow %q", wctx.SessionID, existing),
		)
	}
	s.byID[wctx.WorkflowID] = wctx
	s.bySession[wctx.SessionID] = wctx.WorkflowID
	return nil
}

// Get retrieves a workflow context by workflow ID.
func (s *MemoryStore) Get(_ context.Context, workflowID string) (model.WorkflowContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wctx, exists := s.byID[workflowID]
	if !exists {
		return model.WorkflowContext{}, model.NewWorkflowNotFoundError(workflowID)
	}
	return wctx, nil
}

// GetBySession retrieves the session's active workflow context.
func (s *MemoryStore) GetBySession(_ context.Context, sessionID string) (model.WorkflowContext, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	workflowID, exists := s.bySession[sessionID]
	if !exists {
		return model.WorkflowContext{}, false, nil
	}
	return s.byID[workflowID], true, nil
}

// Update persists an updated context, checking the version stamp.
func (s *MemoryStore) Update(_ context.Context, wctx model.WorkflowContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.byID[wctx.WorkflowID]
	if !exists {
		return model.NewWorkflowNotFoundError(wctx.WorkflowID)
	}
	if current.Version != wctx.Version {
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict: have %d, stored %d",
				wctx.WorkflowID, wctx.Version, current.Version),
		)
	}
	wctx.Version++
	s.byID[wctx.WorkflowID] = wctx
	return nil
}

// Delete removes a workflow context by workflow ID.
func (s *MemoryStore) Delete(_ context.Context, workflowID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wctx, exists := s.byID[workflowID]
	if !exists {
		return nil
	}
	delete(s.byID, workflowID)
	delete(s.bySession, wctx.SessionID)
	return nil
}

// DeleteBySession removes any workflow context for the session.
func (s *MemoryStore) DeleteBySession(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	workflowID, exists := s.bySession[sessionID]
	if !exists {
		return false, nil
	}
	delete(s.byID, workflowID)
	delete(s.bySession, sessionID)
	return true, nil
}

// Len returns the number of stored contexts. For testing.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// HealthCheck implements observability.HealthChecker.
func (s *MemoryStore) HealthCheck(_ context.Context) error { return nil }
