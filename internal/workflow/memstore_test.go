package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/pitabwire/aduan/model"
)

func testContext(workflowID, sessionID string, wt model.WorkflowType) model.WorkflowContext {
	now := time.Now().UTC()
	return model.WorkflowContext{
		WorkflowID:  workflowID,
		Type:        wt,
		SessionID:   sessionID,
		CurrentStep: 1,
		Status:      model.WorkflowStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
		Version:     1,
	}
}

// --- Create ---

func TestMemoryStore_Create_Get(t *testing.T) {
	store := NewMemoryStore()
	wctx := testContext("wf-1", "sess-a", model.WorkflowComplaint)

	if err := store.Create(context.Background(), wctx); err != nil {
		t.Fatalf("Create error: %v", err)
	}

	got, err := store.Get(context.Background(), "wf-1")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Type != model.WorkflowComplaint {
		t.Errorf("Type = %q", got.Type)
	}
	if got.SessionID != "sess-a" {
		t.Errorf("SessionID = %q", got.SessionID)
	}
}

func TestMemoryStore_Create_one_per_session(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testContext("wf-1", "sess-a", model.WorkflowComplaint))

	err := store.Create(context.Background(), testContext("wf-2", "sess-a", model.WorkflowTextIncident))
	if model.CodeOf(err) != model.ErrConflict {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrConflict)
	}
	if store.Len() != 1 {
		t.Errorf("Len = %d, want 1", store.Len())
	}
}

func TestMemoryStore_Get_absent(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Get(context.Background(), "wf-ghost")
	if model.CodeOf(err) != model.ErrWorkflowNotFound {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrWorkflowNotFound)
	}
}

// --- GetBySession ---

func TestMemoryStore_GetBySession(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testContext("wf-1", "sess-a", model.WorkflowTextIncident))

	got, active, err := store.GetBySession(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	if !active {
		t.Fatal("workflow not found by session")
	}
	if got.WorkflowID != "wf-1" {
		t.Errorf("WorkflowID = %q", got.WorkflowID)
	}

	_, active, err = store.GetBySession(context.Background(), "sess-idle")
	if err != nil {
		t.Fatalf("GetBySession error: %v", err)
	}
	if active {
		t.Error("idle session reported an active workflow")
	}
}

// --- Update ---

func TestMemoryStore_Update_bumps_version(t *testing.T) {
	store := NewMemoryStore()
	wctx := testContext("wf-1", "sess-a", model.WorkflowComplaint)
	_ = store.Create(context.Background(), wctx)

	wctx.CurrentStep = 2
	if err := store.Update(context.Background(), wctx); err != nil {
		t.Fatalf("Update error: %v", err)
	}

	got, _ := store.Get(context.Background(), "wf-1")
	if got.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, want 2", got.CurrentStep)
	}
	if got.Version != 2 {
		t.Errorf("Version = %d, want 2", got.Version)
	}
}

func TestMemoryStore_Update_version_conflict(t *testing.T) {
	store := NewMemoryStore()
	wctx := testContext("wf-1", "sess-a", model.WorkflowComplaint)
	_ = store.Create(context.Background(), wctx)

	// First writer wins.
	first := wctx
	first.CurrentStep = 2
	if err := store.Update(context.Background(), first); err != nil {
		t.Fatalf("first Update error: %v", err)
	}

	// Second writer still holds the stale version.
	second := wctx
	second.CurrentStep = 2
	err := store.Update(context.Background(), second)
	if model.CodeOf(err) != model.ErrConflict {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrConflict)
	}

	got, _ := store.Get(context.Background(), "wf-1")
	if got.CurrentStep != 2 {
		t.Errorf("CurrentStep = %d, conflicting write must not apply", got.CurrentStep)
	}
}

func TestMemoryStore_Update_absent(t *testing.T) {
	store := NewMemoryStore()
	err := store.Update(context.Background(), testContext("wf-ghost", "sess-a", model.WorkflowComplaint))
	if model.CodeOf(err) != model.ErrWorkflowNotFound {
		t.Errorf("code = %q, want %q", model.CodeOf(err), model.ErrWorkflowNotFound)
	}
}

// --- Delete ---

func TestMemoryStore_Delete_frees_session(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testContext("wf-1", "sess-a", model.WorkflowComplaint))

	if err := store.Delete(context.Background(), "wf-1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	// The session slot is free again.
	if err := store.Create(context.Background(), testContext("wf-2", "sess-a", model.WorkflowComplaint)); err != nil {
		t.Errorf("Create after Delete error: %v", err)
	}
}

func TestMemoryStore_Delete_absent(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Delete(context.Background(), "wf-ghost"); err != nil {
		t.Errorf("Delete of absent context should be a no-op, got %v", err)
	}
}

func TestMemoryStore_DeleteBySession(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Create(context.Background(), testContext("wf-1", "sess-a", model.WorkflowComplaint))

	existed, err := store.DeleteBySession(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("DeleteBySession error: %v", err)
	}
	if !existed {
		t.Error("existed = false, want true")
	}
	if store.Len() != 0 {
		t.Errorf("Len = %d, want 0", store.Len())
	}

	existed, err = store.DeleteBySession(context.Background(), "sess-a")
	if err != nil {
		t.Fatalf("second DeleteBySession error: %v", err)
	}
	if existed {
		t.Error("second delete reported a context")
	}
}
