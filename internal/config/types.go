package config

import (
	"fmt"
	"strings"
	"time"
)

// Env is the process's fixed startup configuration, read once from the
// environment named in the external interface: PORT, NODE_ENV,
// DATABASE_PATH, REDIS_URL, REDIS_KEY_PREFIX, RECAPTCHA_SECRET_KEY,
// CRON_TIMEZONE, FRONTEND_URL.
type Env struct {
	Port               int
	NodeEnv            string
	DatabasePath       string
	RedisURL           string
	RedisKeyPrefix     string
	RecaptchaSecretKey string
	CronTimezone       string
	FrontendOrigins    []string
	// AlertWebhookURL, if set, is where warn/error log lines above the
	// configured rate get mirrored (see pkg/logx.AlertSink / internal/alert).
	// Not part of the external interface's named variable list; an ambient
	// operational addition, silently disabled when unset.
	AlertWebhookURL string
}

// Runtime holds the operational knobs that may be hot-reloaded from an
// optional YAML/JSON file without a process restart: rate-limit
// thresholds, health-monitor escalation thresholds, and executor
// defaults. Unlike Env, these are safe to tune live because nothing here
// changes a resource's identity (DB path, listen port). RuntimeManager
// pushes every field here to its live subscribers — internal/ratelimit,
// internal/health, and internal/crawl all hold their working copy behind a
// mutex and swap it in on each update.
type Runtime struct {
	RateLimit RateLimitRuntime `json:"rate_limit"`
	Health    HealthRuntime    `json:"health"`
	Executor  ExecutorRuntime  `json:"executor"`
}

type RateLimitRuntime struct {
	GlobalPerSecond     int `json:"global_per_second"`
	PerWebhookPerMinute int `json:"per_webhook_per_minute"`
}

// HealthRuntime mirrors every threshold the health monitor's three
// schedules (daily/weekly/hourly) escalate against. Duration fields are
// strings so the override file stays human-editable ("336h", "72h"); use
// the Parse* accessors to get typed values, which also double as the
// validation run at reload time (see validateDurations).
type HealthRuntime struct {
	DailyAgeThreshold         string  `json:"daily_age_threshold"`
	DailyDegradedAge          string  `json:"daily_degraded_age"`
	DailyDegradedEfficiency   float64 `json:"daily_degraded_efficiency"`
	DailyCriticalEfficiency   float64 `json:"daily_critical_efficiency"`
	WeeklyEfficiencyThreshold float64 `json:"weekly_efficiency_threshold"`
	WeeklyWarnTotal           int     `json:"weekly_warn_total"`
	HourlyEmergencyEfficiency float64 `json:"hourly_emergency_efficiency"`
	HourlyEmergencyTotal      int     `json:"hourly_emergency_total"`
	HourlyOldInactiveMin      int     `json:"hourly_old_inactive_min"`
	HourlyStaleAge            string  `json:"hourly_stale_age"`
}

func (h HealthRuntime) ParseDailyAgeThreshold() (time.Duration, error) {
	return parseDurationOrDefault("health.daily_age_threshold", h.DailyAgeThreshold, 14*24*time.Hour)
}

func (h HealthRuntime) ParseDailyDegradedAge() (time.Duration, error) {
	return parseDurationOrDefault("health.daily_degraded_age", h.DailyDegradedAge, 7*24*time.Hour)
}

func (h HealthRuntime) ParseHourlyStaleAge() (time.Duration, error) {
	return parseDurationOrDefault("health.hourly_stale_age", h.HourlyStaleAge, 3*24*time.Hour)
}

type ExecutorRuntime struct {
	Concurrency int    `json:"concurrency"`
	Timeout     string `json:"timeout"`
	RetryCount  int    `json:"retry_count"`
	RetryDelay  string `json:"retry_delay"`
	BatchSize   int    `json:"batch_size"`
}

func (e ExecutorRuntime) ParseTimeout() (time.Duration, error) {
	return parseDurationOrDefault("executor.timeout", e.Timeout, 30*time.Second)
}

func (e ExecutorRuntime) ParseRetryDelay() (time.Duration, error) {
	return parseDurationOrDefault("executor.retry_delay", e.RetryDelay, time.Second)
}

// DefaultRuntime mirrors the constants named in 4.C/4.E/4.H: rate limit
// 30/60, health daily 70/50 with 14d/7d age cutoffs, weekly 80/2000,
// hourly 30/100 with a 50-row/3d stale backlog valve, executor 10/30s/3/1s/20.
func DefaultRuntime() Runtime {
	return Runtime{
		RateLimit: RateLimitRuntime{GlobalPerSecond: 30, PerWebhookPerMinute: 60},
		Health: HealthRuntime{
			DailyAgeThreshold:         "336h",
			DailyDegradedAge:          "168h",
			DailyDegradedEfficiency:   70,
			DailyCriticalEfficiency:   50,
			WeeklyEfficiencyThreshold: 80,
			WeeklyWarnTotal:           2000,
			HourlyEmergencyEfficiency: 30,
			HourlyEmergencyTotal:      100,
			HourlyOldInactiveMin:      50,
			HourlyStaleAge:            "72h",
		},
		Executor: ExecutorRuntime{Concurrency: 10, Timeout: "30s", RetryCount: 3, RetryDelay: "1s", BatchSize: 20},
	}
}

// parseDurationField parses raw as a non-negative Go duration string,
// naming path in any error so a bad runtime-config file points back at the
// field that broke.
func parseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// parseDurationOrDefault is parseDurationField with a fallback for the
// zero-value case, so an omitted field in a partial override file keeps
// the compiled-in default rather than becoming a zero timeout.
func parseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := parseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// validateDurations rejects a Runtime whose duration-string fields don't
// parse, before it is committed or published to subscribers.
func validateDurations(cfg Runtime) error {
	if _, err := cfg.Health.ParseDailyAgeThreshold(); err != nil {
		return err
	}
	if _, err := cfg.Health.ParseDailyDegradedAge(); err != nil {
		return err
	}
	if _, err := cfg.Health.ParseHourlyStaleAge(); err != nil {
		return err
	}
	if _, err := cfg.Executor.ParseTimeout(); err != nil {
		return err
	}
	if _, err := cfg.Executor.ParseRetryDelay(); err != nil {
		return err
	}
	return nil
}
