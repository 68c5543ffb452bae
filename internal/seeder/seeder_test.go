package seeder_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metalise/internal/analytics"
	"metalise/internal/events"
	"metalise/internal/seeder"
	"metalise/internal/testsupport"
)

func TestSeederRun(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	db := dbManager.GetConnection()
	testsupport.CleanAllTables(db)

	today := time.Date(2025, time.May, 20, 0, 0, 0, 0, time.UTC)
	s := seeder.NewSeeder(dbManager, logger, 12).
		WithSeed(42).
		WithClock(testsupport.FixedClock(today.Add(15 * time.Hour)))

	stats, err := s.Run(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Days)
	assert.Zero(t, stats.Dropped)
	assert.Positive(t, stats.Visits)

	var visits, generations int64
	for offset := 0; offset < 3; offset++ {
		date := today.AddDate(0, 0, -offset).Format(events.DateLayout)
		stat := testsupport.LoadDailyStat(t, db, date)

		assert.Equal(t, stat.GenerationsSuccess+stat.GenerationsFailed, stat.TotalGenerations, date)
		assert.LessOrEqual(t, stat.UniqueVisitors, stat.TotalVisits, date)
		assert.Positive(t, stat.UniqueVisitors, date)

		visits += stat.TotalVisits
		generations += stat.TotalGenerations
	}
	assert.Equal(t, int64(stats.Visits), visits)
	assert.Equal(t, int64(stats.Generations), generations)

	var rollups int64
	require.NoError(t, db.Model(&analytics.DailyStat{}).Count(&rollups).Error)
	assert.Equal(t, int64(3), rollups)
}

func TestSeederRejectsInvalidDays(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)

	_, err := seeder.NewSeeder(dbManager, logger, 5).Run(context.Background(), 0)
	assert.Error(t, err)
}

func TestSeederStopsOnCancelledContext(t *testing.T) {
	dbManager, logger := testsupport.SetupTestDBManager(t)
	testsupport.CleanAllTables(dbManager.GetConnection())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := seeder.NewSeeder(dbManager, logger, 5).Run(ctx, 2)
	assert.ErrorIs(t, err, context.Canceled)
}
