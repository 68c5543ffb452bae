package jobs

import (
	"log/slog"
)

type walCheckpointer interface {
	CheckpointWAL(mode string) error
}

// CheckpointJob folds the SQLite WAL back into the main database file.
type CheckpointJob struct {
	db     walCheckpointer
	logger *slog.Logger
}

func NewCheckpointJob(db walCheckpointer, logger *slog.Logger) *CheckpointJob {
	return &CheckpointJob{db: db, logger: logger}
}

func (j *CheckpointJob) Run() error {
	if err := j.db.CheckpointWAL("PASSIVE"); err != nil {
		return err
	}
	j.logger.Debug("WAL checkpoint completed")
	return nil
}
