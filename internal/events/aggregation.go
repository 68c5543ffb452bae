package events

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

const upsertVisitQuery = `
	INSERT INTO ` + DailyStatsTableName + ` (date, unique_visitors, total_visits, generations_success, generations_failed, total_generations, created_at, updated_at)
	VALUES (?, 1, 1, 0, 0, 0, ?, ?)
	ON CONFLICT (date) DO UPDATE SET
		total_visits = ` + DailyStatsTableName + `.total_visits + 1,
		updated_at = ?
`

const upsertGenerationQuery = `
	INSERT INTO ` + DailyStatsTableName + ` (date, unique_visitors, total_visits, generations_success, generations_failed, total_generations, created_at, updated_at)
	VALUES (?, 0, 0, ?, ?, 1, ?, ?)
	ON CONFLICT (date) DO UPDATE SET
		generations_success = ` + DailyStatsTableName + `.generations_success + ?,
		generations_failed = ` + DailyStatsTableName + `.generations_failed + ?,
		total_generations = ` + DailyStatsTableName + `.total_generations + 1,
		updated_at = ?
`

// upsertDailyStatForVisit creates today's rollup with one visit or increments total_visits.
// A new row starts with unique_visitors = 1; recomputeDailyUniqueVisitors corrects it.
func upsertDailyStatForVisit(tx *gorm.DB, day string, now time.Time) error {
	return tx.Exec(upsertVisitQuery, day, now, now, now).Error
}

// recomputeDailyUniqueVisitors re-derives unique_visitors for the day from the raw visit
// events and writes the exact value back. It returns the recomputed count.
func recomputeDailyUniqueVisitors(tx *gorm.DB, day string, now time.Time) (int64, error) {
	var uniqueCount int64
	err := tx.Table(visitEventsTableName).
		Where("date = ?", day).
		Distinct("visitor_fingerprint").
		Count(&uniqueCount).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count distinct visitors: %w", err)
	}

	err = tx.Exec(`UPDATE `+DailyStatsTableName+` SET unique_visitors = ?, updated_at = ? WHERE date = ?`,
		uniqueCount, now, day).Error
	if err != nil {
		return 0, fmt.Errorf("failed to write unique visitors: %w", err)
	}
	return uniqueCount, nil
}

// upsertDailyStatForGeneration increments the outcome counter and total_generations
// in the same statement, so total_generations always equals success + failed.
func upsertDailyStatForGeneration(tx *gorm.DB, day string, success bool, now time.Time) error {
	successInc, failedInc := 0, 1
	if success {
		successInc, failedInc = 1, 0
	}
	return tx.Exec(upsertGenerationQuery, day, successInc, failedInc, now, now, successInc, failedInc, now).Error
}
