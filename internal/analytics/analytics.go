// Package analytics holds the daily rollup model and the read side of usage analytics:
// single-day lookups, the recent-days window, and the summary served to the dashboard.
//
// Rollups are written by the events package; everything here is read only.
package analytics

import (
	"errors"
	"time"

	"metalise/internal/events"
)

// ErrStoreUnavailable is returned when the analytics store cannot be read.
// Callers should surface it rather than render an empty report.
var ErrStoreUnavailable = errors.New("analytics store unavailable")

// SummaryWindowDays is the number of rollups returned in Summary.Last7Days.
const SummaryWindowDays = 7

// DailyStat is the rollup of one calendar day (UTC). A row exists once the day has at least
// one event and is never deleted.
type DailyStat struct {
	Date               string    `gorm:"primaryKey;type:text" json:"date"`
	UniqueVisitors     int64     `gorm:"not null;default:0" json:"unique_visitors"`
	TotalVisits        int64     `gorm:"not null;default:0" json:"total_visits"`
	GenerationsSuccess int64     `gorm:"not null;default:0" json:"generations_success"`
	GenerationsFailed  int64     `gorm:"not null;default:0" json:"generations_failed"`
	TotalGenerations   int64     `gorm:"not null;default:0" json:"total_generations"`
	CreatedAt          time.Time `json:"-"`
	UpdatedAt          time.Time `json:"-"`
}

func (DailyStat) TableName() string { return events.DailyStatsTableName }

// Totals aggregates every recorded event.
type Totals struct {
	Visits                int64 `json:"visits"`
	UniqueVisitors        int64 `json:"unique_visitors"`
	SuccessfulGenerations int64 `json:"successful_generations"`
	FailedGenerations     int64 `json:"failed_generations"`
	TotalGenerations      int64 `json:"total_generations"`
}

// DaySnapshot is today's rollup as reported by the summary.
type DaySnapshot struct {
	UniqueVisitors        int64 `json:"unique_visitors"`
	TotalVisits           int64 `json:"total_visits"`
	SuccessfulGenerations int64 `json:"successful_generations"`
	FailedGenerations     int64 `json:"failed_generations"`
	TotalGenerations      int64 `json:"total_generations"`
}

// DayEntry is one element of the recent-days window.
type DayEntry struct {
	Date                  string `json:"date"`
	UniqueVisitors        int64  `json:"unique_visitors"`
	TotalVisits           int64  `json:"total_visits"`
	SuccessfulGenerations int64  `json:"successful_generations"`
	FailedGenerations     int64  `json:"failed_generations"`
}

// Summary is the payload of the analytics endpoint.
type Summary struct {
	Total     Totals      `json:"total"`
	Today     DaySnapshot `json:"today"`
	Last7Days []DayEntry  `json:"last_7_days"`
}

func snapshotOf(stat DailyStat) DaySnapshot {
	return DaySnapshot{
		UniqueVisitors:        stat.UniqueVisitors,
		TotalVisits:           stat.TotalVisits,
		SuccessfulGenerations: stat.GenerationsSuccess,
		FailedGenerations:     stat.GenerationsFailed,
		TotalGenerations:      stat.TotalGenerations,
	}
}

func entryOf(stat DailyStat) DayEntry {
	return DayEntry{
		Date:                  stat.Date,
		UniqueVisitors:        stat.UniqueVisitors,
		TotalVisits:           stat.TotalVisits,
		SuccessfulGenerations: stat.GenerationsSuccess,
		FailedGenerations:     stat.GenerationsFailed,
	}
}
