package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the complete Conductor configuration
type Config struct {
	Coordinator CoordinatorConfig `mapstructure:"coordinator"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Threshold   ThresholdConfig   `mapstructure:"threshold"`
	Bus         BusConfig         `mapstructure:"bus"`
	Scaling     ScalingConfig     `mapstructure:"scaling"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Archive     ArchiveConfig     `mapstructure:"archive"`
	API         APIConfig         `mapstructure:"api"`
	Workers     []WorkerConfig    `mapstructure:"workers"`
}

// CoordinatorConfig controls task dispatch and retry behavior
type CoordinatorConfig struct {
	// MaxRetries is the total number of attempts a task gets before it is
	// terminally failed (default: 3)
	MaxRetries int `mapstructure:"max_retries"`
	// RetryDelay is the fixed delay before a failed task is re-enqueued (default: 30s)
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// TaskTimeout bounds a single Execute call, 0 = no timeout
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	// MaxConcurrent caps in-flight tasks per priority band ("low", "medium",
	// "high", "critical"). A missing or zero entry means unlimited.
	MaxConcurrent map[string]int `mapstructure:"max_concurrent"`
	// HistoryLimit is how many terminal tasks are kept in memory (default: 1000)
	HistoryLimit int `mapstructure:"history_limit"`
}

// SchedulerConfig controls the recurring scheduler
type SchedulerConfig struct {
	// TickInterval is how often templates are scanned (default: 60s)
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// Timezone is the IANA location recurrence times are interpreted in (default: "Local")
	Timezone string `mapstructure:"timezone"`
}

// RulesConfig controls the event rule engine
type RulesConfig struct {
	// TickInterval is how often unprocessed events are evaluated (default: 30s)
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// EventHistory is how many processed events are retained (default: 500)
	EventHistory int `mapstructure:"event_history"`
}

// ThresholdConfig controls the threshold monitor
type ThresholdConfig struct {
	// TickInterval is how often thresholds are evaluated (default: 5m)
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// EvaluationWindow is the span averaged per evaluation (default: 1h)
	EvaluationWindow time.Duration `mapstructure:"evaluation_window"`
	// Retention is how long data points are kept (default: 168h)
	Retention time.Duration `mapstructure:"retention"`
}

// BusConfig controls the inter-worker communication bus
type BusConfig struct {
	// HandoffTTL discards handoffs not accepted within this window (default: 5m)
	HandoffTTL time.Duration `mapstructure:"handoff_ttl"`
	// ShareTTL is how long shared data stays retrievable (default: 10m)
	ShareTTL time.Duration `mapstructure:"share_ttl"`
	// SweepInterval is how often expired handoffs and shares are pruned (default: 30s)
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	// HistoryLimit is how many recent messages are kept (default: 200)
	HistoryLimit int `mapstructure:"history_limit"`
}

// ScalingConfig controls the per-worker-type capacity advisor
type ScalingConfig struct {
	// TickInterval is how often load is sampled (default: 30s)
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// MinWorkers is the floor scale-down advice never goes below (default: 1)
	MinWorkers int `mapstructure:"min_workers"`
	// MaxWorkers caps scale-up advice per worker type (default: 8)
	MaxWorkers int `mapstructure:"max_workers"`
	// ScaleUpThreshold is the queued count above which scale-up is advised (default: 2)
	ScaleUpThreshold int `mapstructure:"scale_up_threshold"`
	// ScaleDownThreshold is the in-flight count at or below which an idle type
	// may scale down (default: 0)
	ScaleDownThreshold int `mapstructure:"scale_down_threshold"`
	// Cooldown is the minimum time between advice for one worker type (default: 5m)
	Cooldown time.Duration `mapstructure:"cooldown"`
}

// LoggingConfig controls structured logging
type LoggingConfig struct {
	// Enabled controls whether logs are written at all (default: true)
	Enabled bool `mapstructure:"enabled"`
	// Level is the minimum log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level"`
	// File is the log file path, empty = stderr (default: <config dir>/conductor.log)
	File string `mapstructure:"file"`
	// MaxSizeMB is the max log file size before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb"`
	// MaxBackups is the number of rotated files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups"`
	// MaxAgeDays prunes rotated files older than this, 0 = keep (default: 14)
	MaxAgeDays int `mapstructure:"max_age_days"`
	// Compress gzips rotated files (default: false)
	Compress bool `mapstructure:"compress"`
}

// ArchiveConfig controls where terminal tasks and workflow executions are written
type ArchiveConfig struct {
	// Driver selects the sink: "none", "log", "redis", "postgres" (default: "log")
	Driver   string         `mapstructure:"driver"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig configures the Redis archive sink
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	// KeyPrefix namespaces archive lists (default: "conductor")
	KeyPrefix string `mapstructure:"key_prefix"`
	// MaxEntries trims each list to this length (default: 10000)
	MaxEntries int64 `mapstructure:"max_entries"`
}

// PostgresConfig configures the Postgres archive sink
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
	// MaxConns caps the pool size, 0 = pgx default
	MaxConns int32 `mapstructure:"max_conns"`
}

// APIConfig controls the HTTP surface
type APIConfig struct {
	// Addr is the listen address for `conductor serve` and the target for
	// `conductor status` and `conductor watch` (default: "127.0.0.1:8420")
	Addr string `mapstructure:"addr"`
}

// WorkerConfig declares a worker started by `conductor serve`
type WorkerConfig struct {
	ID           string   `mapstructure:"id"`
	Type         string   `mapstructure:"type"`
	Capabilities []string `mapstructure:"capabilities"`
	// Backend is the CLI used to run prompts: "claude" or "codex" (default: "claude")
	Backend string `mapstructure:"backend"`
	// Command overrides the backend executable path
	Command string `mapstructure:"command"`
	// Model is passed to the backend when set
	Model string `mapstructure:"model"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Coordinator: CoordinatorConfig{
			MaxRetries:    3,
			RetryDelay:    30 * time.Second,
			TaskTimeout:   0,
			MaxConcurrent: map[string]int{},
			HistoryLimit:  1000,
		},
		Scheduler: SchedulerConfig{
			TickInterval: 60 * time.Second,
			Timezone:     "Local",
		},
		Rules: RulesConfig{
			TickInterval: 30 * time.Second,
			EventHistory: 500,
		},
		Threshold: ThresholdConfig{
			TickInterval:     5 * time.Minute,
			EvaluationWindow: time.Hour,
			Retention:        7 * 24 * time.Hour,
		},
		Bus: BusConfig{
			HandoffTTL:    5 * time.Minute,
			ShareTTL:      10 * time.Minute,
			SweepInterval: 30 * time.Second,
			HistoryLimit:  200,
		},
		Scaling: ScalingConfig{
			TickInterval:       30 * time.Second,
			MinWorkers:         1,
			MaxWorkers:         8,
			ScaleUpThreshold:   2,
			ScaleDownThreshold: 0,
			Cooldown:           5 * time.Minute,
		},
		Logging: LoggingConfig{
			Enabled:    true,
			Level:      "info",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   false,
		},
		Archive: ArchiveConfig{
			Driver: "log",
			Redis: RedisConfig{
				Addr:       "localhost:6379",
				KeyPrefix:  "conductor",
				MaxEntries: 10000,
			},
		},
		API: APIConfig{
			Addr: "127.0.0.1:8420",
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	defaults := Default()

	// Coordinator defaults
	viper.SetDefault("coordinator.max_retries", defaults.Coordinator.MaxRetries)
	viper.SetDefault("coordinator.retry_delay", defaults.Coordinator.RetryDelay)
	viper.SetDefault("coordinator.task_timeout", defaults.Coordinator.TaskTimeout)
	viper.SetDefault("coordinator.max_concurrent", defaults.Coordinator.MaxConcurrent)
	viper.SetDefault("coordinator.history_limit", defaults.Coordinator.HistoryLimit)

	// Scheduler defaults
	viper.SetDefault("scheduler.tick_interval", defaults.Scheduler.TickInterval)
	viper.SetDefault("scheduler.timezone", defaults.Scheduler.Timezone)

	// Rules defaults
	viper.SetDefault("rules.tick_interval", defaults.Rules.TickInterval)
	viper.SetDefault("rules.event_history", defaults.Rules.EventHistory)

	// Threshold defaults
	viper.SetDefault("threshold.tick_interval", defaults.Threshold.TickInterval)
	viper.SetDefault("threshold.evaluation_window", defaults.Threshold.EvaluationWindow)
	viper.SetDefault("threshold.retention", defaults.Threshold.Retention)

	// Bus defaults
	viper.SetDefault("bus.handoff_ttl", defaults.Bus.HandoffTTL)
	viper.SetDefault("bus.share_ttl", defaults.Bus.ShareTTL)
	viper.SetDefault("bus.sweep_interval", defaults.Bus.SweepInterval)
	viper.SetDefault("bus.history_limit", defaults.Bus.HistoryLimit)

	// Scaling defaults
	viper.SetDefault("scaling.tick_interval", defaults.Scaling.TickInterval)
	viper.SetDefault("scaling.min_workers", defaults.Scaling.MinWorkers)
	viper.SetDefault("scaling.max_workers", defaults.Scaling.MaxWorkers)
	viper.SetDefault("scaling.scale_up_threshold", defaults.Scaling.ScaleUpThreshold)
	viper.SetDefault("scaling.scale_down_threshold", defaults.Scaling.ScaleDownThreshold)
	viper.SetDefault("scaling.cooldown", defaults.Scaling.Cooldown)

	// Logging defaults
	viper.SetDefault("logging.enabled", defaults.Logging.Enabled)
	viper.SetDefault("logging.level", defaults.Logging.Level)
	viper.SetDefault("logging.file", defaults.Logging.File)
	viper.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	viper.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
	viper.SetDefault("logging.max_age_days", defaults.Logging.MaxAgeDays)
	viper.SetDefault("logging.compress", defaults.Logging.Compress)

	// Archive defaults
	viper.SetDefault("archive.driver", defaults.Archive.Driver)
	viper.SetDefault("archive.redis.addr", defaults.Archive.Redis.Addr)
	viper.SetDefault("archive.redis.password", defaults.Archive.Redis.Password)
	viper.SetDefault("archive.redis.db", defaults.Archive.Redis.DB)
	viper.SetDefault("archive.redis.key_prefix", defaults.Archive.Redis.KeyPrefix)
	viper.SetDefault("archive.redis.max_entries", defaults.Archive.Redis.MaxEntries)
	viper.SetDefault("archive.postgres.dsn", defaults.Archive.Postgres.DSN)
	viper.SetDefault("archive.postgres.max_conns", defaults.Archive.Postgres.MaxConns)

	// API defaults
	viper.SetDefault("api.addr", defaults.API.Addr)
}

// Load reads the configuration from viper into a Config struct
func Load() (*Config, error) {
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Validate the configuration
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// Location resolves the scheduler timezone, falling back to time.Local.
func (c *SchedulerConfig) Location() *time.Location {
	if c.Timezone == "" || strings.EqualFold(c.Timezone, "local") {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}

// ResolveLogFile returns the configured log path, or the default under the
// config directory when none is set.
func (c *LoggingConfig) ResolveLogFile() string {
	if c.File != "" {
		return c.File
	}
	return filepath.Join(ConfigDir(), "conductor.log")
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	// Check XDG_CONFIG_HOME first
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conductor")
	}
	// Fall back to ~/.config/conductor
	home, err := os.UserHomeDir()
	if err != nil {
		return ".conductor"
	}
	return filepath.Join(home, ".config", "conductor")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ValidArchiveDrivers returns the list of valid archive driver values
func ValidArchiveDrivers() []string {
	return []string{"none", "log", "redis", "postgres"}
}

// ValidPriorities returns the priority band names accepted in coordinator.max_concurrent
func ValidPriorities() []string {
	return []string{"low", "medium", "high", "critical"}
}

// ValidWorkerTypes returns the worker types accepted in workers[].type
func ValidWorkerTypes() []string {
	return []string{"strategy", "content", "engagement", "analytics", "crisis", "scheduling", "research"}
}

// ValidBackends returns the worker backends accepted in workers[].backend
func ValidBackends() []string {
	return []string{"claude", "codex"}
}
