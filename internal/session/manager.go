package session

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/model"
)

// Manager owns session records in the backing store. It enforces the
// inactivity timeout lazily on read; physical deletion is the sweeper's job.
type Manager struct {
	store   Store
	timeout time.Duration
	ttl     time.Duration
	retry   config.RetryConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	// now is swappable for tests.
	now func() time.Time
}

// NewManager creates a session lifecycle manager. The timeout inside cfg is
// the same value the sweeper is built with, so expiry-on-read and the sweep
// cutoff can never drift apart.
func NewManager(store Store, cfg config.SessionConfig, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	return &Manager{
		store:   store,
		timeout: cfg.Timeout(),
		ttl:     cfg.RecordTTL,
		retry:   cfg.Retry,
		logger:  logger,
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// NewSession generates a new unique identifier and writes an ACTIVE record
// with created_at = last_activity = now. The write is retried with bounded
// exponential backoff; exhausted retries surface as STORE_UNAVAILABLE.
func (m *Manager) NewSession(ctx context.Context, clientInfo *model.ClientInfo) (model.Session, error) {
	now := m.now()
	sess := model.Session{
		ID:           model.SessionIDPrefix + uuid.New().String(),
		Status:       model.SessionStatusActive,
		ClientInfo:   clientInfo,
		CreatedAt:    now,
		LastActivity: now,
		TTL:          now.Add(m.ttl).Unix(),
	}

	if err := m.retryWrite(ctx, func() error { return m.store.Put(ctx, sess) }); err != nil {
		m.logger.Error("session create failed after retries",
			zap.String("session_id", sess.ID), zap.Error(err))
		return model.Session{}, model.NewStoreUnavailableError("session store write failed")
	}

	m.metrics.SessionsCreatedTotal.Inc()
	m.logger.Info("session created", zap.String("session_id", sess.ID))
	return sess, nil
}

// Lookup retrieves a session by ID, returning an explicit outcome variant.
// Malformed identifiers fail fast without a store round-trip. A record
// whose inactivity window has passed is reconciled to INACTIVE as a side
// effect and reported as LookupExpired; the sweep in this package is a
// separate, coarser safety net.
func (m *Manager) Lookup(ctx context.Context, sessionID string) (model.Session, model.LookupOutcome, error) {
	if !model.ValidSessionID(sessionID) {
		m.metrics.RecordSessionLookup(model.LookupNotFound.String())
		return model.Session{}, model.LookupNotFound, nil
	}

	sess, found, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return model.Session{}, model.LookupNotFound, model.NewStoreUnavailableError("session store read failed")
	}
	if !found {
		m.metrics.RecordSessionLookup(model.LookupNotFound.String())
		return model.Session{}, model.LookupNotFound, nil
	}

	if sess.IsExpired(m.now(), m.timeout) {
		// Reconcile lazily. Best-effort: the sweeper catches anything this
		// write misses, since last_activity stays stale.
		if err := m.store.SetStatus(ctx, sessionID, model.SessionStatusInactive); err != nil {
			m.logger.Warn("expired session reconciliation failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		m.metrics.SessionExpiriesTotal.Inc()
		m.metrics.RecordSessionLookup(model.LookupExpired.String())
		m.logger.Info("session expired on read", zap.String("session_id", sessionID))
		return model.Session{}, model.LookupExpired, nil
	}

	m.metrics.RecordSessionLookup(model.LookupFound.String())
	return sess, model.LookupFound, nil
}

// UpdateActivity conditionally bumps last_activity; the conditional write
// signals SESSION_NOT_FOUND rather than resurrecting a deleted record.
func (m *Manager) UpdateActivity(ctx context.Context, sessionID string) error {
	if !model.ValidSessionID(sessionID) {
		return model.NewSessionNotFoundError(sessionID)
	}
	return m.store.UpdateActivity(ctx, sessionID, m.now())
}

// TrackActivity is the best-effort form of UpdateActivity used on the
// conversational path: failures are logged, never propagated, so a store
// hiccup cannot block the response itself.
func (m *Manager) TrackActivity(ctx context.Context, sessionID string) {
	if err := m.UpdateActivity(ctx, sessionID); err != nil {
		m.logger.Warn("activity tracking failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

// Close conditionally marks the record INACTIVE. The record stays in the
// store until the sweeper purges it.
func (m *Manager) Close(ctx context.Context, sessionID string) error {
	if !model.ValidSessionID(sessionID) {
		return model.NewSessionNotFoundError(sessionID)
	}
	if err := m.store.SetStatus(ctx, sessionID, model.SessionStatusInactive); err != nil {
		return err
	}
	m.metrics.SessionsClosedTotal.Inc()
	m.logger.Info("session closed", zap.String("session_id", sessionID))
	return nil
}

// ActiveCount returns the number of ACTIVE session records.
func (m *Manager) ActiveCount(ctx context.Context) (int, error) {
	count, err := m.store.CountActive(ctx)
	if err != nil {
		return 0, model.NewStoreUnavailableError("session store count failed")
	}
	m.metrics.ActiveSessions.Set(float64(count))
	return count, nil
}

// retryWrite runs op with bounded exponential backoff per the retry config.
func (m *Manager) retryWrite(ctx context.Context, op func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retry.BackoffInitial
	bo.MaxInterval = m.retry.BackoffMax

	attempts := uint64(m.retry.MaxAttempts)
	if attempts > 0 {
		attempts--
	}

	return backoff.RetryNotify(
		op,
		backoff.WithContext(backoff.WithMaxRetries(bo, attempts), ctx),
		func(err error, next time.Duration) {
			m.metrics.SessionStoreRetriesTotal.Inc()
			m.logger.Warn("session store write retrying",
				zap.Duration("next_attempt_in", next), zap.Error(err))
		},
	)
}
