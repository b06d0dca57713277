package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/aduan/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5. A partial unique
// index on (session_id) WHERE status = 'active' enforces the one active
// context per session rule at the database level.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL workflow context store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Create persists a new workflow context.
func (s *PgStore) Create(ctx context.Context, wctx model.WorkflowContext) error {
	dataJSON, err := marshalCollectedData(wctx.CollectedData)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO workflow_contexts (
			workflow_id, workflow_type, session_id, current_step,
			status, collected_data, ticket_number,
			created_at, updated_at, version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		wctx.WorkflowID, wctx.Type, wctx.SessionID, wctx.CurrentStep,
		wctx.Status, dataJSON, wctx.TicketNumber,
		wctx.CreatedAt, wctx.UpdatedAt, wctx.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return model.NewConflictError(
				fmt.Sprintf("session %q already has an active workflow", wctx.SessionID),
			)
		}
		return fmt.Errorf("insert workflow context: %w", err)
	}
	return nil
}

// Get retrieves a workflow context by workflow ID.
func (s *PgStore) Get(ctx context.Context, workflowID string) (model.WorkflowContext, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, workflow_type, session_id, current_step,
		       status, collected_data, ticket_number,
		       created_at, updated_at, version
		FROM workflow_contexts
		WHERE workflow_id = $1`,
		workflowID,
	)

	wctx, err := scanContext(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowContext{}, model.NewWorkflowNotFoundError(workflowID)
	}
	if err != nil {
		return model.WorkflowContext{}, fmt.Errorf("query workflow context: %w", err)
	}
	return wctx, nil
}

// GetBySession retrieves the session's active workflow context.
func (s *PgStore) GetBySession(ctx context.Context, sessionID string) (model.WorkflowContext, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT workflow_id, workflow_type, session_id, current_step,
		       status, collected_data, ticket_number,
		       created_at, updated_at, version
		FROM workflow_contexts
		WHERE session_id = $1`,
		sessionID,
	)

	wctx, err := scanContext(row)
	if err == pgx.ErrNoRows {
		return model.WorkflowContext{}, false, nil
	}
	if err != nil {
		return model.WorkflowContext{}, false, fmt.Errorf("query workflow context: %w", err)
	}
	return wctx, true, nil
}

// Update persists an updated context with optimistic locking on version.
func (s *PgStore) Update(ctx context.Context, wctx model.WorkflowContext) error {
	dataJSON, err := marshalCollectedData(wctx.CollectedData)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE workflow_contexts SET
			current_step = $1,
			status = $2,
			collected_data = $3,
			ticket_number = $4,
			updated_at = $5,
			version = version + 1
		WHERE workflow_id = $6 AND version = $7`,
		wctx.CurrentStep, wctx.Status, dataJSON, wctx.TicketNumber,
		wctx.UpdatedAt, wctx.WorkflowID, wctx.Version,
	)
	if err != nil {
		return fmt.Errorf("update workflow context: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the context is gone or the version moved underneath us.
		if _, getErr := s.Get(ctx, wctx.WorkflowID); getErr != nil {
			return getErr
		}
		return model.NewConflictError(
			fmt.Sprintf("workflow %q version conflict at %d", wctx.WorkflowID, wctx.Version),
		)
	}
	return nil
}

// Delete removes a workflow context by workflow ID.
func (s *PgStore) Delete(ctx context.Context, workflowID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM workflow_contexts WHERE workflow_id = $1`, workflowID)
	if err != nil {
		return fmt.Errorf("delete workflow context: %w", err)
	}
	return nil
}

// DeleteBySession removes any workflow context for the session.
func (s *PgStore) DeleteBySession(ctx context.Context, sessionID string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM workflow_contexts WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete workflow context by session: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// HealthCheck implements observability.HealthChecker.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanContext(row pgx.Row) (model.WorkflowContext, error) {
	var wctx model.WorkflowContext
	var dataJSON []byte

	err := row.Scan(
		&wctx.WorkflowID, &wctx.Type, &wctx.SessionID, &wctx.CurrentStep,
		&wctx.Status, &dataJSON, &wctx.TicketNumber,
		&wctx.CreatedAt, &wctx.UpdatedAt, &wctx.Version,
	)
	if err != nil {
		return model.WorkflowContext{}, err
	}

	if len(dataJSON) > 0 {
		if err := json.Unmarshal(dataJSON, &wctx.CollectedData); err != nil {
			return model.WorkflowContext{}, fmt.Errorf("unmarshal collected_data: %w", err)
		}
	}
	return wctx, nil
}

func marshalCollectedData(data map[string]any) ([]byte, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal collected_data: %w", err)
	}
	return raw, nil
}
