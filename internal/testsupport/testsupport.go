package testsupport

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
	ctestsupport "github.com/karloscodes/cartridge/testsupport"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"metalise/internal"
	"metalise/internal/analytics"
	"metalise/internal/config"
	"metalise/internal/database"
	"metalise/internal/events"
	"metalise/internal/http"
)

func init() {
	if os.Getenv("METALISE_ENV") == "" {
		os.Setenv("METALISE_ENV", config.Test)
	}
}

// testDBCache caches test databases by test name to allow multiple calls
// within the same test to share the same database
var testDBCache = make(map[string]*gorm.DB)
var testDBCacheMu sync.Mutex

// TestDBManager wraps cartridge's TestDBManager with metalise's interface
type TestDBManager struct {
	*ctestsupport.TestDBManager
}

// NewTestDBManager creates a TestDBManager that implements cartridge.DBManager
func NewTestDBManager(db *gorm.DB) *TestDBManager {
	return &TestDBManager{
		TestDBManager: ctestsupport.NewTestDBManager(db),
	}
}

// Ensure TestDBManager implements cartridge.DBManager
var _ cartridge.DBManager = (*TestDBManager)(nil)

// SetupTestDB creates a test database with all metalise models migrated.
// Uses a named in-memory database with cache=shared to allow multiple connections
// to share the same database within a test. Caches the database by root test name
// so subtests share it.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	testName := t.Name()

	rootName := testName
	if idx := strings.Index(testName, "/"); idx > 0 {
		rootName = testName[:idx]
	}

	testDBCacheMu.Lock()
	if db, exists := testDBCache[rootName]; exists {
		testDBCacheMu.Unlock()
		return db
	}
	testDBCacheMu.Unlock()

	sanitizedName := strings.ReplaceAll(rootName, "/", "_")
	dsn := fmt.Sprintf("file:test_%s_%d?mode=memory&cache=shared", sanitizedName, time.Now().UnixNano())

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("testsupport: failed to open test database: %v", err)
	}

	db.Exec("PRAGMA journal_mode = WAL")

	if err := db.AutoMigrate(database.Models()...); err != nil {
		t.Fatalf("testsupport: failed to migrate models: %v", err)
	}

	testDBCacheMu.Lock()
	testDBCache[rootName] = db
	testDBCacheMu.Unlock()

	t.Cleanup(func() {
		testDBCacheMu.Lock()
		delete(testDBCache, rootName)
		testDBCacheMu.Unlock()
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	return db
}

// SetupTestDBManager creates a test DB manager using cartridge's testsupport
func SetupTestDBManager(t *testing.T) (*TestDBManager, *slog.Logger) {
	cfg := config.GetConfig()

	// SAFETY CHECK: Ensure we're in test environment
	if cfg.Environment != config.Test {
		t.Fatalf("CRITICAL: Tests must run in test environment! Current: %s. Set METALISE_ENV=test", cfg.Environment)
	}

	db := SetupTestDB(t)
	return NewTestDBManager(db), GetLogger()
}

// CleanAllTables clears all non-system tables in the database
func CleanAllTables(db *gorm.DB) {
	var tableNames []string
	db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%'").Scan(&tableNames)

	if len(tableNames) == 0 {
		return
	}

	db.Transaction(func(tx *gorm.DB) error {
		for _, table := range tableNames {
			tx.Exec("DELETE FROM " + table)
			tx.Exec("DELETE FROM sqlite_sequence WHERE name=?", table)
		}
		return nil
	})
}

// GetLogger returns a test logger
func GetLogger() *slog.Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError})
	return slog.New(handler)
}

// FixedClock returns a clock that always reports t.
func FixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// CreateDailyStat inserts a rollup row directly, bypassing the recorder.
func CreateDailyStat(t *testing.T, db *gorm.DB, stat analytics.DailyStat) analytics.DailyStat {
	t.Helper()
	if stat.TotalGenerations == 0 {
		stat.TotalGenerations = stat.GenerationsSuccess + stat.GenerationsFailed
	}
	now := time.Now().UTC()
	stat.CreatedAt, stat.UpdatedAt = now, now
	require.NoError(t, db.Create(&stat).Error)
	return stat
}

// SeedPriorDays creates one rollup per day for the n days before today, oldest first.
// Day i (1 = yesterday) gets i visits so entries can be told apart.
func SeedPriorDays(t *testing.T, db *gorm.DB, today time.Time, n int) []string {
	t.Helper()
	dates := make([]string, 0, n)
	for i := n; i >= 1; i-- {
		date := today.UTC().AddDate(0, 0, -i).Format(events.DateLayout)
		CreateDailyStat(t, db, analytics.DailyStat{
			Date:           date,
			UniqueVisitors: int64(i),
			TotalVisits:    int64(i),
		})
		dates = append(dates, date)
	}
	return dates
}

// LoadDailyStat fails the test when the rollup for date is missing.
func LoadDailyStat(t *testing.T, db *gorm.DB, date string) analytics.DailyStat {
	t.Helper()
	stat, found, err := analytics.GetDailyStat(db, date)
	require.NoError(t, err)
	require.Truef(t, found, "expected a daily stat for %s", date)
	return stat
}

// CreateMinimalTestApp creates a test Fiber app with all routes mounted against db.
// Middleware runs before every route.
func CreateMinimalTestApp(t *testing.T, db *gorm.DB, deps http.Dependencies, middleware ...fiber.Handler) *fiber.App {
	t.Helper()

	dbManager := NewTestDBManager(db)
	appConfig := config.GetConfig()
	appConfig.Environment = config.Test
	appConfig.PublicDirectory = "../../web/public"

	if deps.Recorder == nil {
		deps.Recorder = events.NewRecorder(dbManager, GetLogger())
	}

	cfg := cartridge.DefaultServerConfig()
	cfg.Config = appConfig
	cfg.Logger = GetLogger()
	cfg.DBManager = dbManager
	cfg.StaticDirectory = appConfig.PublicDirectory
	cfg.StaticPrefix = appConfig.PublicAssetsUrlPrefix
	cfg.TemplatesDirectory = appConfig.PublicDirectory
	// API clients such as the analytics dashboard fetch without Sec-Fetch-Site
	cfg.EnableSecFetchSite = false

	srv, err := cartridge.NewServer(cfg)
	require.NoError(t, err)

	for _, mw := range middleware {
		srv.App().Use(mw)
	}
	internal.MountRoutes(srv, deps)
	return srv.App()
}
