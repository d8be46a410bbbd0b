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
	// Network
	ListenAddress string
	Port          int

	// Storage
	StateDir string // directory holding autoguard.db
	PageRoot string // root of generated static pages
	RedisURL string

	// GeoIP database files; any may be absent (fields degrade to unknown).
	GeoIPCityDB         string
	GeoIPASNDB          string
	GeoIPAnonDB         string
	GeoIPReloadSchedule string

	// Blacklist
	BlacklistRebuildSchedule string

	// Log pipeline
	LogBatchSize     int
	LogPollTimeout   time.Duration
	LogStatsInterval time.Duration

	// Job runner
	JobPollTimeout     time.Duration
	JobMaxConcurrent   int
	JobMaxAttempts     int
	JobRetryBase       time.Duration
	JobRetryMax        time.Duration
	JobRetryJitter     float64
	JobMoverInterval   time.Duration
	JobMetricsInterval time.Duration

	// Decision engine
	DecisionTimeout time.Duration
	SafeThreshold   int

	// Gateway
	InlinePages     bool // stream page files instead of X-Accel-Redirect
	APIMaxBodyBytes int

	// Auth (must be defined; empty means admin API disabled)
	AdminToken string
}

// DBFilename is the primary-store SQLite file under StateDir.
const DBFilename = "autoguard.db"

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// Returns an error if any required variable is missing or any value is invalid.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Network ---
	cfg.ListenAddress = strings.TrimSpace(envStr("AUTOGUARD_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.Port = envInt("AUTOGUARD_PORT", 8080, &errs)

	// --- Storage ---
	cfg.StateDir = envStr("AUTOGUARD_STATE_DIR", "/var/lib/autoguard")
	cfg.PageRoot = envStr("AUTOGUARD_PAGE_ROOT", "/var/lib/autoguard/pages")
	cfg.RedisURL = envStr("AUTOGUARD_REDIS_URL", "redis://127.0.0.1:6379/0")

	// --- GeoIP ---
	cfg.GeoIPCityDB = envStr("AUTOGUARD_GEOIP_CITY_DB", "/var/lib/autoguard/geoip/GeoLite2-City.mmdb")
	cfg.GeoIPASNDB = envStr("AUTOGUARD_GEOIP_ASN_DB", "/var/lib/autoguard/geoip/GeoLite2-ASN.mmdb")
	cfg.GeoIPAnonDB = envStr("AUTOGUARD_GEOIP_ANON_DB", "")
	cfg.GeoIPReloadSchedule = envStr("AUTOGUARD_GEOIP_RELOAD_SCHEDULE", "0 5 * * *")

	// --- Blacklist ---
	cfg.BlacklistRebuildSchedule = envStr("AUTOGUARD_BLACKLIST_REBUILD_SCHEDULE", "*/30 * * * *")

	// --- Log pipeline ---
	cfg.LogBatchSize = envInt("AUTOGUARD_LOG_BATCH_SIZE", 100, &errs)
	cfg.LogPollTimeout = envDuration("AUTOGUARD_LOG_POLL_TIMEOUT", 5*time.Second, &errs)
	cfg.LogStatsInterval = envDuration("AUTOGUARD_LOG_STATS_INTERVAL", 10*time.Second, &errs)

	// --- Job runner ---
	cfg.JobPollTimeout = envDuration("AUTOGUARD_JOB_POLL_TIMEOUT", 5*time.Second, &errs)
	cfg.JobMaxConcurrent = envInt("AUTOGUARD_JOB_MAX_CONCURRENT", 2, &errs)
	cfg.JobMaxAttempts = envInt("AUTOGUARD_JOB_MAX_ATTEMPTS", 3, &errs)
	cfg.JobRetryBase = envDuration("AUTOGUARD_JOB_RETRY_BASE", 2*time.Second, &errs)
	cfg.JobRetryMax = envDuration("AUTOGUARD_JOB_RETRY_MAX", 60*time.Second, &errs)
	cfg.JobRetryJitter = envFloat("AUTOGUARD_JOB_RETRY_JITTER", 0.2, &errs)
	cfg.JobMoverInterval = envDuration("AUTOGUARD_JOB_MOVER_INTERVAL", time.Second, &errs)
	cfg.JobMetricsInterval = envDuration("AUTOGUARD_JOB_METRICS_INTERVAL", 10*time.Second, &errs)

	// --- Decision engine ---
	cfg.DecisionTimeout = envDuration("AUTOGUARD_DECISION_TIMEOUT", 200*time.Millisecond, &errs)
	cfg.SafeThreshold = envInt("AUTOGUARD_SAFE_THRESHOLD", 60, &errs)

	// --- Gateway ---
	cfg.InlinePages = envBool("AUTOGUARD_INLINE_PAGES", false, &errs)
	cfg.APIMaxBodyBytes = envInt("AUTOGUARD_API_MAX_BODY_BYTES", 1<<20, &errs)

	// --- Auth (must be defined; empty means admin API disabled) ---
	adminToken, hasAdminToken := os.LookupEnv("AUTOGUARD_ADMIN_TOKEN")
	cfg.AdminToken = adminToken

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "AUTOGUARD_LISTEN_ADDRESS must not be empty")
	}
	validatePort("AUTOGUARD_PORT", cfg.Port, &errs)
	if cfg.RedisURL == "" {
		errs = append(errs, "AUTOGUARD_REDIS_URL must not be empty")
	}
	if !hasAdminToken {
		errs = append(errs, "AUTOGUARD_ADMIN_TOKEN must be defined (can be empty)")
	} else if IsWeakToken(cfg.AdminToken) {
		errs = append(errs, "AUTOGUARD_ADMIN_TOKEN is too weak; use a longer random token")
	}

	if _, err := cron.ParseStandard(cfg.GeoIPReloadSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("AUTOGUARD_GEOIP_RELOAD_SCHEDULE: invalid cron expression %q: %v", cfg.GeoIPReloadSchedule, err))
	}
	if _, err := cron.ParseStandard(cfg.BlacklistRebuildSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("AUTOGUARD_BLACKLIST_REBUILD_SCHEDULE: invalid cron expression %q: %v", cfg.BlacklistRebuildSchedule, err))
	}

	validatePositive("AUTOGUARD_LOG_BATCH_SIZE", cfg.LogBatchSize, &errs)
	validatePositiveDuration("AUTOGUARD_LOG_POLL_TIMEOUT", cfg.LogPollTimeout, &errs)
	validatePositiveDuration("AUTOGUARD_LOG_STATS_INTERVAL", cfg.LogStatsInterval, &errs)

	validatePositiveDuration("AUTOGUARD_JOB_POLL_TIMEOUT", cfg.JobPollTimeout, &errs)
	validatePositive("AUTOGUARD_JOB_MAX_CONCURRENT", cfg.JobMaxConcurrent, &errs)
	validatePositive("AUTOGUARD_JOB_MAX_ATTEMPTS", cfg.JobMaxAttempts, &errs)
	validatePositiveDuration("AUTOGUARD_JOB_RETRY_BASE", cfg.JobRetryBase, &errs)
	validatePositiveDuration("AUTOGUARD_JOB_RETRY_MAX", cfg.JobRetryMax, &errs)
	if cfg.JobRetryJitter < 0 || cfg.JobRetryJitter >= 1 {
		errs = append(errs, fmt.Sprintf("AUTOGUARD_JOB_RETRY_JITTER: must be in [0, 1), got %v", cfg.JobRetryJitter))
	}
	if cfg.JobRetryMax < cfg.JobRetryBase {
		errs = append(errs, "AUTOGUARD_JOB_RETRY_MAX must be greater than or equal to AUTOGUARD_JOB_RETRY_BASE")
	}
	validatePositiveDuration("AUTOGUARD_JOB_MOVER_INTERVAL", cfg.JobMoverInterval, &errs)
	validatePositiveDuration("AUTOGUARD_JOB_METRICS_INTERVAL", cfg.JobMetricsInterval, &errs)

	validatePositiveDuration("AUTOGUARD_DECISION_TIMEOUT", cfg.DecisionTimeout, &errs)
	if cfg.SafeThreshold < 0 || cfg.SafeThreshold > 100 {
		errs = append(errs, fmt.Sprintf("AUTOGUARD_SAFE_THRESHOLD: must be 0-100, got %d", cfg.SafeThreshold))
	}
	validatePositive("AUTOGUARD_API_MAX_BODY_BYTES", cfg.APIMaxBodyBytes, &errs)

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

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid float %q", key, v))
		return defaultVal
	}
	return f
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
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

func validatePositiveDuration(name string, value time.Duration, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %v", name, value))
	}
}
