package model

import (
	"strings"
	"time"
)

// Session status constants.
const (
	SessionStatusActive   = "ACTIVE"
	SessionStatusInactive = "INACTIVE"
	SessionStatusExpired  = "EXPIRED"
)

// SessionIDPrefix is the fixed prefix of every generated session identifier.
const SessionIDPrefix = "sess-"

// sessionIDLength is the full length of a generated identifier:
// the prefix plus a canonical UUID string.
const sessionIDLength = len(SessionIDPrefix) + 36

// Session is a logical conversation identity tracked across multiple
// messages from one client. Records are owned exclusively by the session
// lifecycle manager; physical deletion is the sweeper's job.
type Session struct {
	ID           string         `json:"session_id"`
	Status       string         `json:"status"`
	ClientInfo   *ClientInfo    `json:"client_info,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	LastActivity time.Time      `json:"last_activity"`
	// TTL is the absolute expiry in epoch seconds used as the backing
	// store's own reclamation safety net. The application's timeout on
	// LastActivity is the primary expiry mechanism, not this marker.
	TTL int64 `json:"ttl"`
}

// ClientInfo captures optional transport-level details of the client that
// opened the session.
type ClientInfo struct {
	UserAgent    string `json:"user_agent,omitempty"`
	SourceIP     string `json:"source_ip,omitempty"`
	ConnectionID string `json:"connection_id,omitempty"`
}

// IsExpired reports whether the session's inactivity window has passed at
// the given instant.
func (s *Session) IsExpired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.LastActivity) > timeout
}

// ValidSessionID reports whether id has the shape of a generated session
// identifier. Lookups fail fast on malformed identifiers without a store
// round-trip.
func ValidSessionID(id string) bool {
	return len(id) == sessionIDLength && strings.HasPrefix(id, SessionIDPrefix)
}

// LookupOutcome is the result variant of a session lookup. Expiry is an
// ordinary branch the caller must handle, not an error path.
type LookupOutcome int

const (
	// LookupFound means a live session was returned.
	LookupFound LookupOutcome = iota
	// LookupExpired means the session existed but its inactivity window
	// passed; the record has been reconciled to INACTIVE as a side effect.
	LookupExpired
	// LookupNotFound means no record exists, or the identifier is malformed.
	LookupNotFound
)

// String returns the lookup outcome name.
func (o LookupOutcome) String() string {
	switch o {
	case LookupFound:
		return "found"
	case LookupExpired:
		return "expired"
	case LookupNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
