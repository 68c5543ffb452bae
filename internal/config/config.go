// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

// DefaultAnalyticsKey is the shared secret used when none is configured.
// Production refuses to start with it.
const DefaultAnalyticsKey = "metalise2025"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName     string   `mapstructure:"appname"`
	AppPort     string   `mapstructure:"appport"`
	Environment string   `mapstructure:"environment"`
	LogLevel    LogLevel `mapstructure:"loglevel"`
	PrivateKey  string   `mapstructure:"privatekey"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Image generation
	GeminiAPIKey             string `mapstructure:"geminiapikey"`
	PrimaryImageModel        string `mapstructure:"primaryimagemodel"`
	FallbackImageModel       string `mapstructure:"fallbackimagemodel"`
	GenerationTimeoutSeconds int    `mapstructure:"generationtimeoutseconds"`
	MaxUploadBytes           int64  `mapstructure:"maxuploadbytes"`

	// Analytics reporting. Either a plaintext secret or a bcrypt hash of it.
	AnalyticsKey string `mapstructure:"analyticskey"`

	// Optional Redis instance holding the live per-day unique visitor sets.
	RedisURL string `mapstructure:"redisurl"`

	// Job scheduling settings
	JobIntervalSeconds int `mapstructure:"jobintervalseconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "metalise")
		v.SetDefault("appport", "5000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", "88888888888888888888888888888888")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "web/public")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("primaryimagemodel", "nano-banana-pro-preview")
		v.SetDefault("fallbackimagemodel", "gemini-3-pro-image-preview")
		v.SetDefault("generationtimeoutseconds", 120)
		v.SetDefault("maxuploadbytes", 16*1024*1024)
		v.SetDefault("analyticskey", DefaultAnalyticsKey)
		v.SetDefault("redisurl", "")
		v.SetDefault("jobintervalseconds", 300)

		v.BindEnv("appname", "METALISE_APP_NAME")
		v.BindEnv("appport", "METALISE_APP_PORT")
		v.BindEnv("environment", "METALISE_ENV")
		v.BindEnv("loglevel", "METALISE_LOG_LEVEL")
		v.BindEnv("privatekey", "METALISE_PRIVATE_KEY")
		v.BindEnv("storagepath", "METALISE_STORAGE_PATH")
		v.BindEnv("publicdir", "METALISE_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "METALISE_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "METALISE_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "METALISE_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "METALISE_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "METALISE_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("dbtype", "METALISE_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "METALISE_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "METALISE_DB_MAX_IDLE_CONNS")
		v.BindEnv("geminiapikey", "GEMINI_API_KEY")
		v.BindEnv("primaryimagemodel", "METALISE_PRIMARY_IMAGE_MODEL")
		v.BindEnv("fallbackimagemodel", "METALISE_FALLBACK_IMAGE_MODEL")
		v.BindEnv("generationtimeoutseconds", "METALISE_GENERATION_TIMEOUT_SECONDS")
		v.BindEnv("maxuploadbytes", "METALISE_MAX_UPLOAD_BYTES")
		v.BindEnv("analyticskey", "ANALYTICS_KEY")
		v.BindEnv("redisurl", "METALISE_REDIS_URL")
		v.BindEnv("jobintervalseconds", "METALISE_JOB_INTERVAL_SECONDS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		// Set derived values
		cfg.DatabaseName = cfg.GetDatabasePath()
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if strings.TrimSpace(c.AnalyticsKey) == "" {
		return fmt.Errorf("analytics key must not be empty")
	}
	if c.IsProduction() && c.AnalyticsKey == DefaultAnalyticsKey {
		return fmt.Errorf("production requires a unique ANALYTICS_KEY (cannot use default)")
	}
	if c.IsProduction() && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required in production")
	}
	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("invalid max upload bytes: %d", c.MaxUploadBytes)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GenerationTimeout returns how long a single generation request may take.
func (c *Config) GenerationTimeout() time.Duration {
	return time.Duration(c.GenerationTimeoutSeconds) * time.Second
}

// JobInterval returns the period of the background reconciliation job.
func (c *Config) JobInterval() time.Duration {
	return time.Duration(c.JobIntervalSeconds) * time.Second
}

// ImageModels returns the models to try, in order. Empty entries and duplicates are dropped.
func (c *Config) ImageModels() []string {
	var models []string
	for _, m := range []string{c.PrimaryImageModel, c.FallbackImageModel} {
		m = strings.TrimSpace(m)
		if m == "" {
			continue
		}
		if len(models) > 0 && models[0] == m {
			continue
		}
		models = append(models, m)
	}
	return models
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows the summary queries to run concurrently)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
