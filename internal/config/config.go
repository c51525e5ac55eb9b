// Package config defines the environment-driven configuration for the API
// server and the daily runner. Values load from process env with an optional
// .env file for local development.
package config

import (
	"time"
)

// AppConfig holds application-level settings.
type AppConfig struct {
	Env      string `envconfig:"APP_ENV" default:"development" validate:"oneof=development staging production test"`
	Port     int    `envconfig:"PORT" default:"8080" validate:"min=1,max=65535"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL              string        `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns         int32         `envconfig:"DATABASE_MAX_CONNS" default:"10" validate:"min=1"`
	ConnectTimeout   time.Duration `envconfig:"DATABASE_CONNECT_TIMEOUT" default:"5s"`
	StatementTimeout time.Duration `envconfig:"DATABASE_STATEMENT_TIMEOUT" default:"30s"`
}

// ScorerConfig holds settings for the remote risk scoring service.
type ScorerConfig struct {
	BaseURL        string        `envconfig:"SCORER_BASE_URL" validate:"required,url"`
	APIKey         string        `envconfig:"SCORER_API_KEY" validate:"required"`
	Timeout        time.Duration `envconfig:"SCORER_TIMEOUT" default:"10s"`
	MaxAttempts    int           `envconfig:"SCORER_MAX_ATTEMPTS" default:"3" validate:"min=1,max=10"`
	RetryBaseDelay time.Duration `envconfig:"SCORER_RETRY_BASE_DELAY" default:"120ms"`
}

// WindowsConfig holds the feature derivation window lengths in days. The
// defaults match what the scoring model was trained against; override only
// for experimentation environments.
type WindowsConfig struct {
	RecentDays   int `envconfig:"FEATURE_RECENT_DAYS" default:"7" validate:"min=1"`
	TrendDays    int `envconfig:"FEATURE_TREND_DAYS" default:"14" validate:"min=2"`
	BaselineDays int `envconfig:"FEATURE_BASELINE_DAYS" default:"30" validate:"min=7"`
	VarDays      int `envconfig:"FEATURE_VAR_DAYS" default:"7" validate:"min=2"`
}

// JobsConfig holds settings for the scheduled daily batch run.
type JobsConfig struct {
	// SecretHash is the bcrypt hash of the shared secret the scheduler
	// presents on POST /api/jobs/daily-risk. Empty disables the job routes.
	SecretHash  string `envconfig:"JOB_SECRET_HASH"`
	Concurrency int    `envconfig:"JOB_CONCURRENCY" default:"8" validate:"min=1,max=64"`
}

// AWSConfig holds settings for the optional push-notification queue and the
// daily runner's metric namespace.
type AWSConfig struct {
	Region          string `envconfig:"AWS_REGION" default:"us-east-1"`
	PushQueueURL    string `envconfig:"PUSH_QUEUE_URL"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"Cardiometrix/DailyRisk"`
}

// Config is the root configuration structure.
type Config struct {
	App      AppConfig
	Database DatabaseConfig
	Scorer   ScorerConfig
	Windows  WindowsConfig
	Jobs     JobsConfig
	AWS      AWSConfig
}

// IsProduction reports whether the app runs in the production environment.
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
