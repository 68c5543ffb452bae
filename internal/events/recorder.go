package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/karloscodes/cartridge"
	"gorm.io/gorm"

	"metalise/internal/metrics"
	"metalise/internal/visitors"
)

// Recorder writes visit and generation events together with their daily rollup.
// Recording is best-effort: failures are logged, counted and reported through
// TrackingResult, never panicked or retried.
type Recorder struct {
	dbManager cartridge.DBManager
	logger    *slog.Logger
	live      visitors.LiveUniqueSet
	now       func() time.Time
	locks     *dayLocks
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithLiveUniqueSet feeds every committed visit into the given incremental set.
func WithLiveUniqueSet(set visitors.LiveUniqueSet) RecorderOption {
	return func(r *Recorder) {
		r.live = set
	}
}

// WithClock overrides the time source. Used by tests and the seeder.
func WithClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		r.now = now
	}
}

// NewRecorder creates a recorder bound to the process-wide database manager.
func NewRecorder(dbManager cartridge.DBManager, logger *slog.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		dbManager: dbManager,
		logger:    logger,
		now:       time.Now,
		locks:     newDayLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Today returns the current calendar day (UTC) in DateLayout.
func (r *Recorder) Today() string {
	return r.now().UTC().Format(DateLayout)
}

// RecordVisit stores a visit and updates today's rollup: total_visits is incremented and
// unique_visitors is recomputed from the raw events, all in one transaction.
func (r *Recorder) RecordVisit(ctx context.Context, input VisitInput) (result TrackingResult) {
	defer r.recoverTracking(KindVisit, &result)

	now := r.now().UTC()
	day := now.Format(DateLayout)
	fingerprint := visitors.BuildVisitorFingerprint(input.IPAddress)

	event := &VisitEvent{
		Timestamp:          now,
		VisitorFingerprint: fingerprint,
		UserAgent:          input.UserAgent,
		Date:               day,
	}

	var uniqueCount int64
	err := r.write(ctx, day, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to insert visit event: %w", err)
		}
		if err := upsertDailyStatForVisit(tx, day, now); err != nil {
			return fmt.Errorf("failed to update daily stats: %w", err)
		}
		count, err := recomputeDailyUniqueVisitors(tx, day, now)
		if err != nil {
			return err
		}
		uniqueCount = count
		return nil
	})
	if err != nil {
		return r.dropped(KindVisit, err)
	}

	if r.live != nil {
		if err := r.live.Add(ctx, day, fingerprint); err != nil {
			r.logger.Warn("Failed to update live unique visitors", slog.Any("error", err))
		}
	}

	r.logger.Debug("Recorded visit",
		slog.String("date", day),
		slog.String("visitor", visitors.VisitorAlias(fingerprint)),
		slog.Int64("unique_visitors", uniqueCount))
	metrics.TrackedEvent(KindVisit, OutcomeRecorded)
	return TrackingResult{Recorded: true}
}

// RecordGeneration stores a generation attempt and increments the matching outcome counter
// and total_generations of today's rollup in one transaction.
func (r *Recorder) RecordGeneration(ctx context.Context, input GenerationInput) (result TrackingResult) {
	defer r.recoverTracking(KindGeneration, &result)

	now := r.now().UTC()
	day := now.Format(DateLayout)

	event := &GenerationEvent{
		Timestamp:             now,
		Success:               input.Success,
		IncludeText:           input.IncludeText,
		ErrorMessage:          TruncateErrorMessage(input.ErrorMessage),
		ProcessingTimeSeconds: normalizeProcessingSeconds(input.ProcessingSeconds),
		Date:                  day,
	}

	err := r.write(ctx, day, func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("failed to insert generation event: %w", err)
		}
		if err := upsertDailyStatForGeneration(tx, day, input.Success, now); err != nil {
			return fmt.Errorf("failed to update daily stats: %w", err)
		}
		return nil
	})
	if err != nil {
		return r.dropped(KindGeneration, err)
	}

	r.logger.Debug("Recorded generation",
		slog.String("date", day),
		slog.Bool("success", input.Success))
	metrics.TrackedEvent(KindGeneration, OutcomeRecorded)
	return TrackingResult{Recorded: true}
}

// write runs f in a transaction while holding the day's lock, so the rollup update for a
// date is atomic with respect to every other writer of that date.
func (r *Recorder) write(ctx context.Context, day string, f func(tx *gorm.DB) error) error {
	db := r.dbManager.GetConnection()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	unlock := r.locks.Lock(day)
	defer unlock()

	return db.WithContext(ctx).Transaction(f)
}

func (r *Recorder) dropped(kind string, err error) TrackingResult {
	r.logger.Error("Failed to record event",
		slog.String("kind", kind),
		slog.Any("error", err))
	metrics.TrackedEvent(kind, OutcomeDropped)
	return TrackingResult{Err: err}
}

func (r *Recorder) recoverTracking(kind string, result *TrackingResult) {
	if p := recover(); p != nil {
		*result = r.dropped(kind, fmt.Errorf("panic while recording %s: %v", kind, p))
	}
}
