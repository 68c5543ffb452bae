package analytics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"metalise/internal/events"
	"metalise/internal/metrics"
	"metalise/internal/pkg/async"
)

// GetDailyStat returns the rollup for date (YYYY-MM-DD). The boolean is false when the day
// has no rollup yet, which is not an error.
func GetDailyStat(db *gorm.DB, date string) (DailyStat, bool, error) {
	var stat DailyStat
	err := db.Where("date = ?", date).Take(&stat).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return DailyStat{}, false, nil
	}
	if err != nil {
		return DailyStat{}, false, fmt.Errorf("failed to load daily stat for %s: %w", date, err)
	}
	return stat, true, nil
}

// GetRecentDailyStats returns up to limit rollups, most recent first.
func GetRecentDailyStats(db *gorm.DB, limit int) ([]DailyStat, error) {
	var stats []DailyStat
	err := db.Order("date DESC").Limit(limit).Find(&stats).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load recent daily stats: %w", err)
	}
	return stats, nil
}

type visitTotals struct {
	Visits         int64
	UniqueVisitors int64
}

type generationTotals struct {
	Successful int64
	Failed     int64
}

func getVisitTotals(db *gorm.DB) (visitTotals, error) {
	var totals visitTotals
	if err := db.Model(&events.VisitEvent{}).Count(&totals.Visits).Error; err != nil {
		return totals, fmt.Errorf("failed to count visits: %w", err)
	}
	err := db.Model(&events.VisitEvent{}).
		Distinct("visitor_fingerprint").
		Count(&totals.UniqueVisitors).Error
	if err != nil {
		return totals, fmt.Errorf("failed to count unique visitors: %w", err)
	}
	return totals, nil
}

func getGenerationTotals(db *gorm.DB) (generationTotals, error) {
	var totals generationTotals
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0) AS successful,
			COALESCE(SUM(CASE WHEN success THEN 0 ELSE 1 END), 0) AS failed
		FROM generation_events
	`
	if err := db.Raw(query).Scan(&totals).Error; err != nil {
		return totals, fmt.Errorf("failed to count generations: %w", err)
	}
	return totals, nil
}

// GetSummary builds the analytics report as of now. Totals come from the raw events, today
// and the recent window from the daily rollups. The four reads run concurrently.
// Any read failure is returned wrapped in ErrStoreUnavailable.
func GetSummary(ctx context.Context, db *gorm.DB, logger *slog.Logger, now time.Time) (*Summary, error) {
	if db == nil {
		return nil, fmt.Errorf("%w: no database connection", ErrStoreUnavailable)
	}
	db = db.WithContext(ctx)
	today := now.UTC().Format(events.DateLayout)

	timed := func(name string, fn func() (any, error)) async.Task {
		return async.Task{
			Name: name,
			Execute: func() (any, error) {
				defer metrics.ObserveQuery(name, time.Now())
				data, err := fn()
				if err != nil {
					logger.Error("Error fetching analytics", slog.String("query", name), slog.Any("error", err))
				}
				return data, err
			},
		}
	}

	tasks := []async.Task{
		timed("visitTotals", func() (any, error) { return getVisitTotals(db) }),
		timed("generationTotals", func() (any, error) { return getGenerationTotals(db) }),
		timed("today", func() (any, error) {
			stat, _, err := GetDailyStat(db, today)
			return stat, err
		}),
		timed("recent", func() (any, error) { return GetRecentDailyStats(db, SummaryWindowDays) }),
	}

	pool := async.NewPool(len(tasks))
	results := pool.Execute(ctx, tasks)

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	for _, task := range tasks {
		result, ok := results[task.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %s did not complete", ErrStoreUnavailable, task.Name)
		}
		if result.Err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, task.Name, result.Err)
		}
	}

	visits := results["visitTotals"].Data.(visitTotals)
	generations := results["generationTotals"].Data.(generationTotals)
	todayStat := results["today"].Data.(DailyStat)
	recent := results["recent"].Data.([]DailyStat)

	summary := &Summary{
		Total: Totals{
			Visits:                visits.Visits,
			UniqueVisitors:        visits.UniqueVisitors,
			SuccessfulGenerations: generations.Successful,
			FailedGenerations:     generations.Failed,
			TotalGenerations:      generations.Successful + generations.Failed,
		},
		Today:     snapshotOf(todayStat),
		Last7Days: make([]DayEntry, 0, len(recent)),
	}
	for _, stat := range recent {
		summary.Last7Days = append(summary.Last7Days, entryOf(stat))
	}

	return summary, nil
}
