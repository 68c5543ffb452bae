package events

import "time"

const (
	visitEventsTableName      = "visit_events"
	generationEventsTableName = "generation_events"
)

// DailyStatsTableName is the rollup table written by the recorder and read by analytics.
const DailyStatsTableName = "daily_stats"

// DateLayout is the calendar-day format used for the date columns. Lexical order of
// values in this layout is chronological order.
const DateLayout = "2006-01-02"

// MaxErrorMessageLength bounds the stored error message of a failed generation.
const MaxErrorMessageLength = 200

// VisitEvent is one tracked page or API visit. Rows are append-only.
type VisitEvent struct {
	ID                 uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp          time.Time `gorm:"not null"`
	VisitorFingerprint string    `gorm:"index:idx_visit_date_fingerprint,priority:2;size:64;not null"`
	UserAgent          string    `gorm:"type:text"`
	Date               string    `gorm:"index:idx_visit_date_fingerprint,priority:1;type:text;not null"`
}

func (VisitEvent) TableName() string { return visitEventsTableName }

// GenerationEvent is one image generation attempt, successful or not. Rows are append-only.
type GenerationEvent struct {
	ID                    uint      `gorm:"primaryKey;autoIncrement"`
	Timestamp             time.Time `gorm:"not null"`
	Success               bool      `gorm:"index;not null"`
	IncludeText           bool      `gorm:"not null"`
	ErrorMessage          *string   `gorm:"size:200"`
	ProcessingTimeSeconds *float64
	Date                  string `gorm:"index;type:text;not null"`
}

func (GenerationEvent) TableName() string { return generationEventsTableName }

// VisitInput is what the HTTP layer knows about a visit. Empty strings mean "not available".
type VisitInput struct {
	IPAddress string
	UserAgent string
}

// GenerationInput describes a completed generation attempt.
type GenerationInput struct {
	Success     bool
	IncludeText bool
	// ErrorMessage is truncated to MaxErrorMessageLength characters; empty means none.
	ErrorMessage string
	// ProcessingSeconds is the wall-clock duration of the attempt, nil when unknown.
	ProcessingSeconds *float64
}

// TrackingResult reports the outcome of a best-effort tracking write.
// Callers are free to ignore it: a failed write has already been logged and counted,
// and is never retried.
type TrackingResult struct {
	Recorded bool
	Err      error
}

// OK reports whether the event and its rollup update were committed.
func (r TrackingResult) OK() bool {
	return r.Recorded && r.Err == nil
}
