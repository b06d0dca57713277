package workflow

import (
	"context"

	"github.com/pitabwire/aduan/model"
)

// Store persists workflow contexts. Contexts are held externally rather
// than in process memory so independently dispatched invocations observe
// the same conversation state.
type Store interface {
	// Create persists a new workflow context. Returns CONFLICT if the
	// session already has an active context; at most one active workflow
	// exists per session.
	Create(ctx context.Context, wctx model.WorkflowContext) error

	// Get retrieves a workflow context by workflow ID. Returns
	// WORKFLOW_NOT_FOUND if no such context exists.
	Get(ctx context.Context, workflowID string) (model.WorkflowContext, error)

	// GetBySession retrieves the session's active workflow context, if any.
	GetBySession(ctx context.Context, sessionID string) (model.WorkflowContext, bool, error)

	// Update persists an updated context with optimistic locking. The
	// version must match the stored version; CONFLICT signals a concurrent
	// advancement of the same context.
	Update(ctx context.Context, wctx model.WorkflowContext) error

	// Delete removes a workflow context by workflow ID. Absent contexts
	// are not an error.
	Delete(ctx context.Context, workflowID string) error

	// DeleteBySession removes any workflow context for the session,
	// reporting whether one existed.
	DeleteBySession(ctx context.Context, sessionID string) (bool, error)
}
