package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pitabwire/aduan/model"
)

// PgStore is a PostgreSQL-backed Store using pgx/v5.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a new PostgreSQL session store.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// Put upserts a session record.
func (s *PgStore) Put(ctx context.Context, sess model.Session) error {
	clientJSON, metaJSON, err := marshalSessionBlobs(sess)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO sessions (
			session_id, status, client_info, metadata,
			created_at, last_activity, ttl
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			status = EXCLUDED.status,
			client_info = EXCLUDED.client_info,
			metadata = EXCLUDED.metadata,
			last_activity = EXCLUDED.last_activity,
			ttl = EXCLUDED.ttl`,
		sess.ID, sess.Status, clientJSON, metaJSON,
		sess.CreatedAt, sess.LastActivity, sess.TTL,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get retrieves a session record by ID.
func (s *PgStore) Get(ctx context.Context, sessionID string) (model.Session, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT session_id, status, client_info, metadata,
		       created_at, last_activity, ttl
		FROM sessions
		WHERE session_id = $1`,
		sessionID,
	)

	sess, err := scanSession(row)
	if err == pgx.ErrNoRows {
		return model.Session{}, false, nil
	}
	if err != nil {
		return model.Session{}, false, fmt.Errorf("query session: %w", err)
	}
	return sess, true, nil
}

// UpdateActivity conditionally bumps last_activity and reactivates the
// record. The WHERE clause makes this atomic: a deleted session is never
// recreated.
func (s *PgStore) UpdateActivity(ctx context.Context, sessionID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions
		SET last_activity = $1, status = $2
		WHERE session_id = $3`,
		at, model.SessionStatusActive, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session activity: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewSessionNotFoundError(sessionID)
	}
	return nil
}

// SetStatus conditionally updates the status of an existing record.
func (s *PgStore) SetStatus(ctx context.Context, sessionID, status string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $1 WHERE session_id = $2`,
		status, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return model.NewSessionNotFoundError(sessionID)
	}
	return nil
}

// Delete removes a session record.
func (s *PgStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// ScanLastActivityBefore returns one page of records idle since before the
// cutoff, using keyset pagination on session_id.
func (s *PgStore) ScanLastActivityBefore(ctx context.Context, cutoff time.Time, limit int, cursor string) (ScanPage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, status, client_info, metadata,
		       created_at, last_activity, ttl
		FROM sessions
		WHERE last_activity < $1 AND session_id > $2
		ORDER BY session_id
		LIMIT $3`,
		cutoff, cursor, limit,
	)
	if err != nil {
		return ScanPage{}, fmt.Errorf("scan stale sessions: %w", err)
	}
	return collectPage(rows, limit)
}

// ScanInactive returns one page of records with status INACTIVE.
func (s *PgStore) ScanInactive(ctx context.Context, limit int, cursor string) (ScanPage, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT session_id, status, client_info, metadata,
		       created_at, last_activity, ttl
		FROM sessions
		WHERE status = $1 AND session_id > $2
		ORDER BY session_id
		LIMIT $3`,
		model.SessionStatusInactive, cursor, limit,
	)
	if err != nil {
		return ScanPage{}, fmt.Errorf("scan inactive sessions: %w", err)
	}
	return collectPage(rows, limit)
}

// BatchDelete removes the given records, returning how many existed.
func (s *PgStore) BatchDelete(ctx context.Context, sessionIDs []string) (int, error) {
	if len(sessionIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM sessions WHERE session_id = ANY($1)`,
		sessionIDs,
	)
	if err != nil {
		return 0, fmt.Errorf("batch delete sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// CountActive returns the number of ACTIVE records.
func (s *PgStore) CountActive(ctx context.Context) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM sessions WHERE status = $1`,
		model.SessionStatusActive,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count active sessions: %w", err)
	}
	return count, nil
}

// HealthCheck implements observability.HealthChecker.
func (s *PgStore) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// collectPage drains rows into a ScanPage, setting the cursor when the page
// is full (a full page may be the last one; the next call then returns
// empty).
func collectPage(rows pgx.Rows, limit int) (ScanPage, error) {
	defer rows.Close()

	page := ScanPage{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return ScanPage{}, fmt.Errorf("scan session row: %w", err)
		}
		page.Sessions = append(page.Sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return ScanPage{}, fmt.Errorf("iterate session rows: %w", err)
	}
	if limit > 0 && len(page.Sessions) == limit {
		page.Cursor = page.Sessions[len(page.Sessions)-1].ID
	}
	return page, nil
}

// rowScanner abstracts pgx.Row and pgx.Rows for scanSession.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.Session, error) {
	var sess model.Session
	var clientJSON, metaJSON []byte

	err := row.Scan(
		&sess.ID, &sess.Status, &clientJSON, &metaJSON,
		&sess.CreatedAt, &sess.LastActivity, &sess.TTL,
	)
	if err != nil {
		return model.Session{}, err
	}

	if len(clientJSON) > 0 {
		if err := json.Unmarshal(clientJSON, &sess.ClientInfo); err != nil {
			return model.Session{}, fmt.Errorf("unmarshal client_info: %w", err)
		}
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &sess.Metadata); err != nil {
			return model.Session{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return sess, nil
}

func marshalSessionBlobs(sess model.Session) (clientJSON, metaJSON []byte, err error) {
	if sess.ClientInfo != nil {
		clientJSON, err = json.Marshal(sess.ClientInfo)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal client_info: %w", err)
		}
	}
	if sess.Metadata != nil {
		metaJSON, err = json.Marshal(sess.Metadata)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal metadata: %w", err)
		}
	}
	return clientJSON, metaJSON, nil
}
