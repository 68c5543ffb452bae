package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"metalise/internal/analytics"
	"metalise/internal/events"
	"metalise/internal/metrics"
	"metalise/internal/visitors"
)

// ReconcileResult compares the live unique set with the stored rollup for one day.
type ReconcileResult struct {
	Date   string
	Stored int64
	Live   int64
	Drift  int64
}

// forgetter is implemented by live sets that keep old days in process memory.
// Such sets start empty after a restart, so the job loads the day from visit_events
// before its first comparison.
type forgetter interface {
	Forget(before string)
}

// ReconcileJob checks that the live unique visitor set agrees with the recomputed
// daily rollup. It only reports: the rollup is authoritative and is never rewritten.
type ReconcileJob struct {
	dbManager cartridge.DBManager
	live      visitors.LiveUniqueSet
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	primedDay string
}

func NewReconcileJob(dbManager cartridge.DBManager, live visitors.LiveUniqueSet, logger *slog.Logger) *ReconcileJob {
	return &ReconcileJob{
		dbManager: dbManager,
		live:      live,
		logger:    logger,
		now:       time.Now,
	}
}

// WithClock overrides the time source used to pick the day.
func (j *ReconcileJob) WithClock(now func() time.Time) *ReconcileJob {
	j.now = now
	return j
}

// Reconcile compares today's values and publishes the drift metric.
func (j *ReconcileJob) Reconcile(ctx context.Context) (ReconcileResult, error) {
	day := j.now().UTC().Format(events.DateLayout)
	result := ReconcileResult{Date: day}

	db := j.dbManager.GetConnection()
	if db == nil {
		return result, gorm.ErrInvalidDB
	}
	db = db.WithContext(ctx)

	if err := j.primeLiveSet(ctx, db, day); err != nil {
		return result, err
	}

	stat, _, err := analytics.GetDailyStat(db, day)
	if err != nil {
		return result, err
	}
	result.Stored = stat.UniqueVisitors

	live, err := j.live.Count(ctx, day)
	if err != nil {
		return result, fmt.Errorf("failed to count live unique visitors: %w", err)
	}
	result.Live = live
	result.Drift = live - stat.UniqueVisitors

	metrics.SetLiveUniqueDrift(result.Drift)
	return result, nil
}

// primeLiveSet adds the day's stored fingerprints to an in-process live set once per day.
// Add is idempotent, so visits recorded meanwhile are not double counted.
func (j *ReconcileJob) primeLiveSet(ctx context.Context, db *gorm.DB, day string) error {
	if _, ok := j.live.(forgetter); !ok {
		return nil
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.primedDay == day {
		return nil
	}

	var fingerprints []string
	err := db.Model(&events.VisitEvent{}).
		Where("date = ?", day).
		Distinct().
		Pluck("visitor_fingerprint", &fingerprints).Error
	if err != nil {
		return fmt.Errorf("failed to load visitor fingerprints: %w", err)
	}

	for _, fingerprint := range fingerprints {
		if err := j.live.Add(ctx, day, fingerprint); err != nil {
			return fmt.Errorf("failed to prime live unique set: %w", err)
		}
	}

	j.primedDay = day
	j.logger.Debug("Primed live unique set", slog.String("date", day), slog.Int("visitors", len(fingerprints)))
	return nil
}

// Run implements the scheduler job signature.
func (j *ReconcileJob) Run() error {
	if j.live == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := j.Reconcile(ctx)
	if err != nil {
		return err
	}

	if result.Drift != 0 {
		j.logger.Warn("Live unique visitors drifted from daily stats",
			slog.String("date", result.Date),
			slog.Int64("stored", result.Stored),
			slog.Int64("live", result.Live))
	} else {
		j.logger.Debug("Live unique visitors in sync",
			slog.String("date", result.Date),
			slog.Int64("unique_visitors", result.Stored))
	}

	if f, ok := j.live.(forgetter); ok {
		cutoff := j.now().UTC().Add(-visitors.TTLLiveUniqueDaily).Format(events.DateLayout)
		f.Forget(cutoff)
	}

	return nil
}
