// Package session implements the session lifecycle manager, its persistence
// contract, and the scheduled cleanup sweeper.
package session

import (
	"context"
	"time"

	"github.com/pitabwire/aduan/model"
)

// Store persists session records. It is the only shared mutable resource of
// the lifecycle manager; concurrency control lives in the backing store's
// conditional writes, not in an in-core lock.
type Store interface {
	// Put writes a session record, overwriting any existing record with the
	// same ID.
	Put(ctx context.Context, s model.Session) error

	// Get retrieves a session record by ID. The second return value is
	// false when no record exists.
	Get(ctx context.Context, sessionID string) (model.Session, bool, error)

	// UpdateActivity conditionally sets last_activity and status=ACTIVE,
	// only if the record exists. Returns SESSION_NOT_FOUND if the record
	// was deleted or never existed; the conditional write never resurrects
	// a deleted session.
	UpdateActivity(ctx context.Context, sessionID string, at time.Time) error

	// SetStatus conditionally updates the status of an existing record.
	// Returns SESSION_NOT_FOUND under the same atomicity rule as
	// UpdateActivity.
	SetStatus(ctx context.Context, sessionID, status string) error

	// Delete removes a single session record. Deleting an absent record is
	// not an error.
	Delete(ctx context.Context, sessionID string) error

	// ScanLastActivityBefore returns one page of records whose
	// last_activity predates the cutoff. An empty cursor starts the scan;
	// the returned cursor is empty when the scan is exhausted.
	ScanLastActivityBefore(ctx context.Context, cutoff time.Time, limit int, cursor string) (ScanPage, error)

	// ScanInactive returns one page of records whose status is INACTIVE,
	// with the same pagination contract as ScanLastActivityBefore.
	ScanInactive(ctx context.Context, limit int, cursor string) (ScanPage, error)

	// BatchDelete removes the given records and returns how many existed.
	// Callers bound the batch size; a failure affects only this batch.
	BatchDelete(ctx context.Context, sessionIDs []string) (int, error)

	// CountActive returns the number of records with status ACTIVE.
	CountActive(ctx context.Context) (int, error)
}

// ScanPage is one page of a paginated store scan.
type ScanPage struct {
	Sessions []model.Session
	// Cursor resumes the scan after the last returned record. Empty when
	// no further pages exist.
	Cursor string
}
