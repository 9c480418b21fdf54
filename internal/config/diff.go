package config

import (
	"hash/fnv"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// hashBytes returns a stable 64-bit hash of bytes. Empty input returns 0.
func hashBytes(b []byte) uint64 {
	if len(b) == 0 {
		return 0
	}
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// SummarizeRuntimeChange returns the section names that changed between two
// Runtime snapshots plus safe structured log fields, for use when the
// hot-reload watcher publishes a new config.
func SummarizeRuntimeChange(oldCfg, newCfg Runtime) ([]string, []logx.Field) {
	var changed []string
	var attrs []logx.Field

	if oldCfg.RateLimit != newCfg.RateLimit {
		changed = append(changed, "rate_limit")
		attrs = append(attrs,
			logx.Int("rate_limit.global_per_second", newCfg.RateLimit.GlobalPerSecond),
			logx.Int("rate_limit.per_webhook_per_minute", newCfg.RateLimit.PerWebhookPerMinute),
		)
	}
	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs,
			logx.Float64("health.daily_degraded_efficiency", newCfg.Health.DailyDegradedEfficiency),
			logx.Float64("health.daily_critical_efficiency", newCfg.Health.DailyCriticalEfficiency),
			logx.String("health.daily_age_threshold", newCfg.Health.DailyAgeThreshold),
			logx.String("health.daily_degraded_age", newCfg.Health.DailyDegradedAge),
			logx.Float64("health.weekly_efficiency_threshold", newCfg.Health.WeeklyEfficiencyThreshold),
			logx.Int("health.weekly_warn_total", newCfg.Health.WeeklyWarnTotal),
			logx.Float64("health.hourly_emergency_efficiency", newCfg.Health.HourlyEmergencyEfficiency),
			logx.Int("health.hourly_emergency_total", newCfg.Health.HourlyEmergencyTotal),
			logx.Int("health.hourly_old_inactive_min", newCfg.Health.HourlyOldInactiveMin),
			logx.String("health.hourly_stale_age", newCfg.Health.HourlyStaleAge),
		)
	}
	if oldCfg.Executor != newCfg.Executor {
		changed = append(changed, "executor")
		attrs = append(attrs,
			logx.Int("executor.concurrency", newCfg.Executor.Concurrency),
			logx.String("executor.timeout", newCfg.Executor.Timeout),
			logx.Int("executor.retry_count", newCfg.Executor.RetryCount),
			logx.String("executor.retry_delay", newCfg.Executor.RetryDelay),
			logx.Int("executor.batch_size", newCfg.Executor.BatchSize),
		)
	}

	return changed, attrs
}
