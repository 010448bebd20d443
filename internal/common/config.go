package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Roles       RolesConfig     `toml:"roles"`
	Storage     StorageConfig   `toml:"storage"`
	Queue       QueueConfig     `toml:"queue"`
	Workers     WorkersConfig   `toml:"workers"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Fetcher     FetcherConfig   `toml:"fetcher"`
	Evidence    EvidenceConfig  `toml:"evidence"`
	Alerts      AlertsConfig    `toml:"alerts"`
	SMTP        SMTPConfig      `toml:"smtp"`
	Logging     LoggingConfig   `toml:"logging"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// RolesConfig selects which process roles this instance runs. All
// three default to on; production deployments disable what they
// don't host. The scheduler role is replica-safe via the store lock.
type RolesConfig struct {
	API       bool `toml:"api"`
	Scheduler bool `toml:"scheduler"`
	Workers   bool `toml:"workers"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration. One
// directory holds both the document store and the job queues.
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type QueueConfig struct {
	PollInterval       string `toml:"poll_interval"`       // e.g., "1s" - how often workers poll for jobs
	VisibilityTimeout  string `toml:"visibility_timeout"`  // e.g., "5m" - claimed-job redelivery window
	MaxAttempts        int    `toml:"max_attempts"`        // Attempts before a job is terminally failed
	BackoffInitial     string `toml:"backoff_initial"`     // First retry delay; doubles per attempt
	CompletedRetention string `toml:"completed_retention"` // How long completed jobs are kept
	CompletedMax       int    `toml:"completed_max"`       // Cap on retained completed jobs
	FailedRetention    string `toml:"failed_retention"`    // How long failed jobs are kept
	FailedMax          int    `toml:"failed_max"`          // Cap on retained failed jobs
}

// WorkersConfig sets per-queue worker counts.
type WorkersConfig struct {
	CrawlConcurrency    int `toml:"crawl_concurrency"`
	EvidenceConcurrency int `toml:"evidence_concurrency"`
	EmailConcurrency    int `toml:"email_concurrency"`
}

type SchedulerConfig struct {
	Schedule string `toml:"schedule"` // Cron expression for the crawl cadence
	LockTTL  string `toml:"lock_ttl"` // Leader lock lease; shorter than the cadence
}

type FetcherConfig struct {
	UserAgent      string `toml:"user_agent"`
	RequestTimeout string `toml:"request_timeout"` // e.g., "30s"
	MaxBodySize    int    `toml:"max_body_size"`   // Maximum response body size in bytes
	RequestDelay   string `toml:"request_delay"`   // Minimum delay between requests to one host
	DemoMode       bool   `toml:"demo_mode"`       // Route fixture-matched URLs to the in-process table
}

type EvidenceConfig struct {
	ParseTimeout string `toml:"parse_timeout"` // e.g., "2m" - budget for fetch + PDF parse
	MaxPerCrawl  int    `toml:"max_per_crawl"` // New evidence rows created per crawl pass
}

type AlertsConfig struct {
	Enabled          bool   `toml:"enabled"`
	DefaultRecipient string `toml:"default_recipient"` // Seeds the default owner user
	RateLimitMax     int    `toml:"rate_limit_max"`    // Critical alerts per company per window
	RateLimitWindow  string `toml:"rate_limit_window"` // e.g., "1h"
}

type SMTPConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	From     string `toml:"from"`
	FromName string `toml:"from_name"`
	UseTLS   bool   `toml:"use_tls"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Format     string   `toml:"format"`      // "json" or "text"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// NewDefaultConfig returns the configuration used when no file or
// environment override is present.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Roles: RolesConfig{
			API:       true,
			Scheduler: true,
			Workers:   true,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		Queue: QueueConfig{
			PollInterval:       "1s",
			VisibilityTimeout:  "5m",
			MaxAttempts:        3,
			BackoffInitial:     "5s",
			CompletedRetention: "1h",
			CompletedMax:       1000,
			FailedRetention:    "24h",
			FailedMax:          500,
		},
		Workers: WorkersConfig{
			CrawlConcurrency:    3,
			EvidenceConcurrency: 2,
			EmailConcurrency:    1,
		},
		Scheduler: SchedulerConfig{
			Schedule: "0 */6 * * *", // Every 6 hours
			LockTTL:  "60s",
		},
		Fetcher: FetcherConfig{
			UserAgent:      "fides/1.0 (+https://github.com/ternarybob/fides)",
			RequestTimeout: "30s",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			RequestDelay:   "1s",
			DemoMode:       false,
		},
		Evidence: EvidenceConfig{
			ParseTimeout: "2m",
			MaxPerCrawl:  3,
		},
		Alerts: AlertsConfig{
			Enabled:          true,
			DefaultRecipient: "alerts@localhost",
			RateLimitMax:     5,
			RateLimitWindow:  "1h",
		},
		SMTP: SMTPConfig{
			Port:     587,
			FromName: "Fides",
			UseTLS:   true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration by merging one or more TOML files
// over the defaults. Later files override earlier files; environment
// variables override everything.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		err = toml.Unmarshal(data, config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Environment configuration (highest priority: FIDES_ENV, fallback: GO_ENV)
	if env := os.Getenv("FIDES_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("FIDES_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("FIDES_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Role configuration
	if api := os.Getenv("FIDES_ROLES_API"); api != "" {
		if b, err := strconv.ParseBool(api); err == nil {
			config.Roles.API = b
		}
	}
	if sched := os.Getenv("FIDES_ROLES_SCHEDULER"); sched != "" {
		if b, err := strconv.ParseBool(sched); err == nil {
			config.Roles.Scheduler = b
		}
	}
	if workers := os.Getenv("FIDES_ROLES_WORKERS"); workers != "" {
		if b, err := strconv.ParseBool(workers); err == nil {
			config.Roles.Workers = b
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("FIDES_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// Queue configuration
	if pollInterval := os.Getenv("FIDES_QUEUE_POLL_INTERVAL"); pollInterval != "" {
		config.Queue.PollInterval = pollInterval
	}
	if visibilityTimeout := os.Getenv("FIDES_QUEUE_VISIBILITY_TIMEOUT"); visibilityTimeout != "" {
		config.Queue.VisibilityTimeout = visibilityTimeout
	}
	if maxAttempts := os.Getenv("FIDES_QUEUE_MAX_ATTEMPTS"); maxAttempts != "" {
		if ma, err := strconv.Atoi(maxAttempts); err == nil {
			config.Queue.MaxAttempts = ma
		}
	}
	if backoff := os.Getenv("FIDES_QUEUE_BACKOFF_INITIAL"); backoff != "" {
		config.Queue.BackoffInitial = backoff
	}

	// Worker configuration
	if crawl := os.Getenv("FIDES_WORKERS_CRAWL_CONCURRENCY"); crawl != "" {
		if c, err := strconv.Atoi(crawl); err == nil {
			config.Workers.CrawlConcurrency = c
		}
	}
	if evidence := os.Getenv("FIDES_WORKERS_EVIDENCE_CONCURRENCY"); evidence != "" {
		if c, err := strconv.Atoi(evidence); err == nil {
			config.Workers.EvidenceConcurrency = c
		}
	}
	if email := os.Getenv("FIDES_WORKERS_EMAIL_CONCURRENCY"); email != "" {
		if c, err := strconv.Atoi(email); err == nil {
			config.Workers.EmailConcurrency = c
		}
	}

	// Scheduler configuration. CRAWL_SCHEDULE is the documented knob
	// and wins over the prefixed form when both are set.
	if schedule := os.Getenv("FIDES_SCHEDULER_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if schedule := os.Getenv("CRAWL_SCHEDULE"); schedule != "" {
		config.Scheduler.Schedule = schedule
	}
	if lockTTL := os.Getenv("FIDES_SCHEDULER_LOCK_TTL"); lockTTL != "" {
		config.Scheduler.LockTTL = lockTTL
	}

	// Fetcher configuration. DEMO_MODE is the documented knob.
	if userAgent := os.Getenv("FIDES_FETCHER_USER_AGENT"); userAgent != "" {
		config.Fetcher.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("FIDES_FETCHER_REQUEST_TIMEOUT"); requestTimeout != "" {
		config.Fetcher.RequestTimeout = requestTimeout
	}
	if maxBodySize := os.Getenv("FIDES_FETCHER_MAX_BODY_SIZE"); maxBodySize != "" {
		if mbs, err := strconv.Atoi(maxBodySize); err == nil {
			config.Fetcher.MaxBodySize = mbs
		}
	}
	if requestDelay := os.Getenv("FIDES_FETCHER_REQUEST_DELAY"); requestDelay != "" {
		config.Fetcher.RequestDelay = requestDelay
	}
	if demoMode := os.Getenv("FIDES_FETCHER_DEMO_MODE"); demoMode != "" {
		if dm, err := strconv.ParseBool(demoMode); err == nil {
			config.Fetcher.DemoMode = dm
		}
	}
	if demoMode := os.Getenv("DEMO_MODE"); demoMode != "" {
		if dm, err := strconv.ParseBool(demoMode); err == nil {
			config.Fetcher.DemoMode = dm
		}
	}

	// Evidence configuration
	if parseTimeout := os.Getenv("FIDES_EVIDENCE_PARSE_TIMEOUT"); parseTimeout != "" {
		config.Evidence.ParseTimeout = parseTimeout
	}
	if maxPerCrawl := os.Getenv("FIDES_EVIDENCE_MAX_PER_CRAWL"); maxPerCrawl != "" {
		if mpc, err := strconv.Atoi(maxPerCrawl); err == nil {
			config.Evidence.MaxPerCrawl = mpc
		}
	}

	// Alert configuration
	if enabled := os.Getenv("FIDES_ALERTS_ENABLED"); enabled != "" {
		if b, err := strconv.ParseBool(enabled); err == nil {
			config.Alerts.Enabled = b
		}
	}
	if recipient := os.Getenv("FIDES_ALERTS_DEFAULT_RECIPIENT"); recipient != "" {
		config.Alerts.DefaultRecipient = recipient
	}
	if max := os.Getenv("FIDES_ALERTS_RATE_LIMIT_MAX"); max != "" {
		if m, err := strconv.Atoi(max); err == nil {
			config.Alerts.RateLimitMax = m
		}
	}
	if window := os.Getenv("FIDES_ALERTS_RATE_LIMIT_WINDOW"); window != "" {
		config.Alerts.RateLimitWindow = window
	}

	// SMTP configuration
	if host := os.Getenv("FIDES_SMTP_HOST"); host != "" {
		config.SMTP.Host = host
	}
	if port := os.Getenv("FIDES_SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.SMTP.Port = p
		}
	}
	if username := os.Getenv("FIDES_SMTP_USERNAME"); username != "" {
		config.SMTP.Username = username
	}
	if password := os.Getenv("FIDES_SMTP_PASSWORD"); password != "" {
		config.SMTP.Password = password
	}
	if from := os.Getenv("FIDES_SMTP_FROM"); from != "" {
		config.SMTP.From = from
	}

	// Logging configuration
	if level := os.Getenv("FIDES_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if format := os.Getenv("FIDES_LOG_FORMAT"); format != "" {
		config.Logging.Format = format
	}
	if output := os.Getenv("FIDES_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			trimmed := strings.TrimSpace(o)
			if trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag values. Flags have the
// highest priority of all configuration sources.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// ValidateSchedule validates a standard 5-field cron expression and
// rejects cadences tighter than five minutes.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	_, err := parser.Parse(schedule)
	if err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	parts := strings.Fields(schedule)
	if len(parts) < 5 {
		return fmt.Errorf("invalid cron format: expected 5 fields")
	}

	minuteField := parts[0]
	if minuteField == "*" {
		return fmt.Errorf("schedule must have minimum 5-minute interval (every minute is not allowed)")
	}
	if strings.HasPrefix(minuteField, "*/") {
		intervalStr := strings.TrimPrefix(minuteField, "*/")
		interval, err := strconv.Atoi(intervalStr)
		if err == nil && interval < 5 {
			return fmt.Errorf("schedule interval must be at least 5 minutes, got %d", interval)
		}
	}

	return nil
}

// ParseDurationOr parses a duration string, falling back when the
// string is empty or malformed.
func ParseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}
