package health

import (
	"context"
	"sync"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/scheduler"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// Config is every threshold the three schedules escalate against, live
// tunable from the operator-facing runtime config's health section. The
// Diagnosis buckets below are not part of Config: they're a fixed
// self-diagnostics mapping, not an ops knob.
type Config struct {
	DailyAgeThreshold         time.Duration
	DailyDegradedAge          time.Duration
	DailyDegradedEfficiency   float64
	DailyCriticalEfficiency   float64
	WeeklyEfficiencyThreshold float64
	WeeklyWarnTotal           int
	HourlyEmergencyEfficiency float64
	HourlyEmergencyTotal      int
	HourlyOldInactiveMin      int
	HourlyStaleAge            time.Duration
}

// DefaultConfig mirrors the fixed defaults: daily 70%/50% with 14d/7d age
// cutoffs, weekly 80%/2000, hourly 30%/100 with a 50-row/3d stale valve.
func DefaultConfig() Config {
	return Config{
		DailyAgeThreshold:         14 * 24 * time.Hour,
		DailyDegradedAge:          7 * 24 * time.Hour,
		DailyDegradedEfficiency:   70.0,
		DailyCriticalEfficiency:   50.0,
		WeeklyEfficiencyThreshold: 80.0,
		WeeklyWarnTotal:           2000,
		HourlyEmergencyEfficiency: 30.0,
		HourlyEmergencyTotal:      100,
		HourlyOldInactiveMin:      50,
		HourlyStaleAge:            3 * 24 * time.Hour,
	}
}

// Diagnosis is the self-diagnostics mapping of active-ratio to a coarse
// status label.
func Diagnosis(efficiency float64) string {
	switch {
	case efficiency >= 90:
		return "excellent"
	case efficiency >= 80:
		return "good"
	case efficiency >= 60:
		return "fair"
	case efficiency >= 40:
		return "poor"
	default:
		return "critical"
	}
}

// Monitor drives adaptive endpoint cleanup off repository stats. Its
// escalation thresholds live behind a mutex so a runtime config reload can
// retune the next scheduled run without restarting the process.
type Monitor struct {
	repo store.Repository
	log  logx.Logger

	mu  sync.RWMutex
	cfg Config
}

func New(repo store.Repository, log logx.Logger, cfg Config) *Monitor {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Monitor{repo: repo, log: log, cfg: cfg}
}

// SetConfig swaps in new thresholds for future scheduled runs.
func (m *Monitor) SetConfig(cfg Config) {
	m.mu.Lock()
	m.cfg = cfg
	m.mu.Unlock()
}

func (m *Monitor) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Register arms the three schedules on sched. The daily and weekly ticks
// fire in the timezone the scheduler was configured with; the scheduler
// itself resolves the location.
func (m *Monitor) Register(sched *scheduler.Service) error {
	if err := sched.AddCron("health:daily-cleanup", "0 0 * * *", 0, scheduler.JobOptions{}, m.DailyCleanup); err != nil {
		return err
	}
	if err := sched.AddCron("health:weekly-optimization", "0 2 * * *", 0, scheduler.JobOptions{}, m.WeeklyOptimization); err != nil {
		return err
	}
	if err := sched.AddCron("health:realtime-monitor", "0 * * * *", 0, scheduler.JobOptions{}, m.RealTimeMonitor); err != nil {
		return err
	}
	return nil
}

// DailyCleanup always removes inactive endpoints older than 14 days, and
// escalates as efficiency degrades.
func (m *Monitor) DailyCleanup(ctx context.Context) error {
	cfg := m.config()
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return err
	}
	eff := stats.Efficiency()
	m.log.Info("daily cleanup starting", logx.Float64("efficiency", eff), logx.String("diagnosis", Diagnosis(eff)))

	switch {
	case eff < cfg.DailyCriticalEfficiency:
		n, err := m.repo.DeleteAllInactive(ctx)
		m.logCleanup("daily", "critical efficiency, deleted all inactive", n, err)
	case eff < cfg.DailyDegradedEfficiency:
		n, err := m.repo.CleanupOlderInactive(ctx, cfg.DailyDegradedAge)
		m.logCleanup("daily", "degraded efficiency, deleted inactive older than degraded-age cutoff", n, err)
	default:
		n, err := m.repo.CleanupOlderInactive(ctx, cfg.DailyAgeThreshold)
		m.logCleanup("daily", "deleted inactive older than age cutoff", n, err)
	}
	return nil
}

// WeeklyOptimization does a heavier sweep when efficiency has drifted low.
func (m *Monitor) WeeklyOptimization(ctx context.Context) error {
	cfg := m.config()
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return err
	}
	eff := stats.Efficiency()
	if stats.Total > cfg.WeeklyWarnTotal {
		m.log.Warn("endpoint table growing large", logx.Int("total", stats.Total))
	}
	if eff < cfg.WeeklyEfficiencyThreshold && stats.Inactive > 0 {
		n, err := m.repo.DeleteAllInactive(ctx)
		m.logCleanup("weekly", "low efficiency, deleted all inactive", n, err)
	}
	return nil
}

// RealTimeMonitor is the hourly emergency valve for a sharply degrading
// active ratio or a growing backlog of stale rows.
func (m *Monitor) RealTimeMonitor(ctx context.Context) error {
	cfg := m.config()
	stats, err := m.repo.Stats(ctx)
	if err != nil {
		return err
	}
	eff := stats.Efficiency()

	switch {
	case eff < cfg.HourlyEmergencyEfficiency && stats.Total > cfg.HourlyEmergencyTotal:
		n, err := m.repo.DeleteAllInactive(ctx)
		m.logCleanup("realtime", "emergency: efficiency critical at scale", n, err)
	case stats.OldInactive > cfg.HourlyOldInactiveMin:
		n, err := m.repo.CleanupOlderInactive(ctx, cfg.HourlyStaleAge)
		m.logCleanup("realtime", "old-inactive backlog, deleted older than stale-age cutoff", n, err)
	}
	return nil
}

func (m *Monitor) logCleanup(schedule, reason string, n int, err error) {
	if err != nil {
		m.log.Error("health cleanup failed", logx.String("schedule", schedule), logx.String("reason", reason), logx.Err(err))
		return
	}
	m.log.Info("health cleanup complete", logx.String("schedule", schedule), logx.String("reason", reason), logx.Int("deleted", n))
}
