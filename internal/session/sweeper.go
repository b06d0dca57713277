package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pitabwire/aduan/internal/config"
	"github.com/pitabwire/aduan/internal/observability"
	"github.com/pitabwire/aduan/model"
)

// Sweeper is the scheduled batch process that purges expired and inactive
// session records. It shares the inactivity timeout with the lifecycle
// manager through the injected config, and shares nothing else: the manager
// marks, the sweeper deletes.
type Sweeper struct {
	store     Store
	timeout   time.Duration
	batchSize int
	scanLimit int
	dryRun    bool
	logger    *zap.Logger
	metrics   *observability.Metrics

	now func() time.Time
}

// NewSweeper creates a cleanup sweeper from the same SessionConfig the
// lifecycle manager is built with.
func NewSweeper(store Store, cfg config.SessionConfig, logger *zap.Logger, metrics *observability.Metrics) *Sweeper {
	return &Sweeper{
		store:     store,
		timeout:   cfg.Timeout(),
		batchSize: cfg.Cleanup.BatchSize,
		scanLimit: cfg.Cleanup.ScanLimit,
		dryRun:    cfg.Cleanup.DryRun,
		logger:    logger,
		metrics:   metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Run executes one sweep with the configured dry-run mode.
func (s *Sweeper) Run(ctx context.Context) (model.CleanupReport, error) {
	return s.RunWithOptions(ctx, s.dryRun)
}

// RunWithOptions executes one sweep. The run identifies records idle past
// the cutoff and records explicitly marked INACTIVE, deduplicates the union,
// and deletes them in bounded batches. Any scan failure aborts the whole
// run; batch deletion failures are independent, because a missed record's
// last_activity stays stale and the next run catches it.
func (s *Sweeper) RunWithOptions(ctx context.Context, dryRun bool) (model.CleanupReport, error) {
	start := s.now()
	cutoff := start.Add(-s.timeout)
	report := model.CleanupReport{
		DryRun:          dryRun,
		CutoffTimestamp: cutoff.Format(time.RFC3339),
	}

	identified, err := s.identify(ctx, cutoff)
	if err != nil {
		report.Status = model.CleanupStatusError
		s.metrics.RecordCleanupRun(0, time.Since(start), true)
		s.logger.Error("cleanup sweep aborted", zap.Error(err))
		return report, model.NewCleanupError(err.Error())
	}
	report.SessionsIdentified = len(identified)

	if dryRun {
		report.Status = model.CleanupStatusSuccess
		s.metrics.RecordCleanupRun(0, time.Since(start), false)
		s.logger.Info("cleanup dry run",
			zap.Int("sessions_identified", len(identified)),
			zap.String("cutoff", report.CutoffTimestamp))
		return report, nil
	}

	cleaned := s.deleteBatches(ctx, identified)
	report.SessionsCleaned = cleaned
	report.Status = model.CleanupStatusSuccess

	s.metrics.RecordCleanupRun(cleaned, time.Since(start), false)
	s.logger.Info("cleanup sweep finished",
		zap.Int("sessions_identified", len(identified)),
		zap.Int("sessions_cleaned", cleaned),
		zap.String("cutoff", report.CutoffTimestamp))
	return report, nil
}

// identify unions the stale-activity scan with the explicit-inactive scan,
// deduplicated by session ID. A record may appear in both scans.
func (s *Sweeper) identify(ctx context.Context, cutoff time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	var ids []string

	collect := func(scan func(ctx context.Context, limit int, cursor string) (ScanPage, error)) error {
		cursor := ""
		for {
			page, err := scan(ctx, s.scanLimit, cursor)
			if err != nil {
				return err
			}
			for _, sess := range page.Sessions {
				if _, dup := seen[sess.ID]; dup {
					continue
				}
				seen[sess.ID] = struct{}{}
				ids = append(ids, sess.ID)
			}
			if page.Cursor == "" {
				return nil
			}
			cursor = page.Cursor
		}
	}

	staleScan := func(ctx context.Context, limit int, cursor string) (ScanPage, error) {
		return s.store.ScanLastActivityBefore(ctx, cutoff, limit, cursor)
	}
	if err := collect(staleScan); err != nil {
		return nil, err
	}
	if err := collect(s.store.ScanInactive); err != nil {
		return nil, err
	}
	return ids, nil
}

// deleteBatches removes the identified records in batches bounded by the
// store's batch-write limit. Each batch failure is independent.
func (s *Sweeper) deleteBatches(ctx context.Context, ids []string) int {
	cleaned := 0
	for from := 0; from < len(ids); from += s.batchSize {
		to := from + s.batchSize
		if to > len(ids) {
			to = len(ids)
		}
		n, err := s.store.BatchDelete(ctx, ids[from:to])
		if err != nil {
			s.logger.Warn("cleanup batch delete failed",
				zap.Int("batch_start", from),
				zap.Int("batch_size", to-from),
				zap.Error(err))
			continue
		}
		cleaned += n
	}
	return cleaned
}
