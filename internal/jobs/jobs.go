package jobs

import (
	"log/slog"

	"metalise/internal/database"
	"metalise/internal/visitors"
)

// Jobs is an alias for Scheduler
type Jobs = Scheduler

// NewJobs creates the job scheduler used by the application.
func NewJobs(dbManager *database.DBManager, live visitors.LiveUniqueSet, logger *slog.Logger) (*Jobs, error) {
	return NewScheduler(dbManager, live, logger)
}
