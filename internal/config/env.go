// Package config handles environment-based configuration loading.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings.
type EnvConfig struct {
	// Directories
	DataDir string

	// Network
	ListenAddress string
	Port          int

	// API
	APIToken        string
	APIMaxBodyBytes int

	// Retention
	RetentionSchedule string
	RetentionMaxAge   time.Duration
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.DataDir = envStr("MURASAKI_STATS_DATA_DIR", "/var/lib/murasaki-stats")

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("MURASAKI_STATS_LISTEN_ADDRESS", "127.0.0.1"))
	cfg.Port = envInt("MURASAKI_STATS_PORT", 7640, &errs)

	// --- API (empty token means auth disabled) ---
	cfg.APIToken = envStr("MURASAKI_STATS_TOKEN", "")
	cfg.APIMaxBodyBytes = envInt("MURASAKI_STATS_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Retention (empty schedule means no scheduled sweeps) ---
	cfg.RetentionSchedule = envStr("MURASAKI_STATS_RETENTION_SCHEDULE", "")
	cfg.RetentionMaxAge = envDuration("MURASAKI_STATS_RETENTION_MAX_AGE", 90*24*time.Hour, &errs)

	// --- Validation ---
	if cfg.DataDir == "" {
		errs = append(errs, "MURASAKI_STATS_DATA_DIR must not be empty")
	}
	if cfg.ListenAddress == "" {
		errs = append(errs, "MURASAKI_STATS_LISTEN_ADDRESS must not be empty")
	}
	validatePort("MURASAKI_STATS_PORT", cfg.Port, &errs)
	validatePositive("MURASAKI_STATS_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)
	if cfg.RetentionSchedule != "" {
		if _, err := cron.ParseStandard(cfg.RetentionSchedule); err != nil {
			errs = append(errs, fmt.Sprintf("MURASAKI_STATS_RETENTION_SCHEDULE: invalid cron expression %q: %v", cfg.RetentionSchedule, err))
		}
	}
	if cfg.RetentionMaxAge <= 0 {
		errs = append(errs, "MURASAKI_STATS_RETENTION_MAX_AGE must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
