package config

import (
	"errors"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://cm:cm@localhost:5432/cardiometrix")
	t.Setenv("SCORER_BASE_URL", "https://scorer.internal.example.com")
	t.Setenv("SCORER_API_KEY", "test-key")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.App.Env != "development" {
		t.Errorf("App.Env = %q, want development", cfg.App.Env)
	}
	if cfg.App.Port != 8080 {
		t.Errorf("App.Port = %d, want 8080", cfg.App.Port)
	}
	if cfg.Scorer.MaxAttempts != 3 {
		t.Errorf("Scorer.MaxAttempts = %d, want 3", cfg.Scorer.MaxAttempts)
	}
	if cfg.Scorer.RetryBaseDelay != 120*time.Millisecond {
		t.Errorf("Scorer.RetryBaseDelay = %v, want 120ms", cfg.Scorer.RetryBaseDelay)
	}
	if cfg.Windows.RecentDays != 7 || cfg.Windows.TrendDays != 14 ||
		cfg.Windows.BaselineDays != 30 || cfg.Windows.VarDays != 7 {
		t.Errorf("unexpected window defaults: %+v", cfg.Windows)
	}
	if cfg.Jobs.Concurrency != 8 {
		t.Errorf("Jobs.Concurrency = %d, want 8", cfg.Jobs.Concurrency)
	}
	if cfg.IsProduction() {
		t.Error("IsProduction must be false for development")
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SCORER_BASE_URL", "")
	t.Setenv("SCORER_API_KEY", "")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected validation error with required vars unset")
	}
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Type != ErrValidation {
		t.Fatalf("error = %v, want ConfigError of type validation", err)
	}
}

func TestLoadConfigRejectsBadEnum(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("APP_ENV", "sandbox")

	_, err := LoadConfig()
	if err == nil {
		t.Fatal("expected validation error for unknown APP_ENV")
	}
}
