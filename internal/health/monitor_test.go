package health

import (
	"context"
	"testing"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

type fakeRepo struct {
	stats             store.Stats
	deletedAll        int
	cleanupCalls      []time.Duration
	deleteAllErr      error
	cleanupErr        error
}

func (f *fakeRepo) Stats(ctx context.Context) (store.Stats, error) { return f.stats, nil }
func (f *fakeRepo) DeleteAllInactive(ctx context.Context) (int, error) {
	if f.deleteAllErr != nil {
		return 0, f.deleteAllErr
	}
	f.deletedAll++
	return f.stats.Inactive, nil
}
func (f *fakeRepo) CleanupOlderInactive(ctx context.Context, age time.Duration) (int, error) {
	f.cleanupCalls = append(f.cleanupCalls, age)
	if f.cleanupErr != nil {
		return 0, f.cleanupErr
	}
	return 1, nil
}
func (f *fakeRepo) CreateOrReactivate(ctx context.Context, url string) (store.Endpoint, error) {
	return store.Endpoint{}, nil
}
func (f *fakeRepo) FindActive(ctx context.Context) ([]store.Endpoint, error) { return nil, nil }
func (f *fakeRepo) FindByID(ctx context.Context, id int64) (store.Endpoint, error) {
	return store.Endpoint{}, store.ErrNotFound
}
func (f *fakeRepo) FindByURL(ctx context.Context, url string) (store.Endpoint, error) {
	return store.Endpoint{}, store.ErrNotFound
}
func (f *fakeRepo) Deactivate(ctx context.Context, id int64) error { return nil }
func (f *fakeRepo) DeletePermanent(ctx context.Context, ids []int64) (int, error) {
	return 0, nil
}
func (f *fakeRepo) BulkCreate(ctx context.Context, urls []string) (store.BulkResult, error) {
	return store.BulkResult{}, nil
}
func (f *fakeRepo) ActiveCount(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeRepo) Close() error                                 { return nil }

func TestDailyCleanupEscalatesByEfficiency(t *testing.T) {
	cfg := DefaultConfig()
	cases := []struct {
		name       string
		efficiency store.Stats
		wantAge    time.Duration
		wantAllDel bool
	}{
		{"healthy", store.Stats{Total: 100, Active: 90, Inactive: 10}, cfg.DailyAgeThreshold, false},
		{"degraded", store.Stats{Total: 100, Active: 60, Inactive: 40}, cfg.DailyDegradedAge, false},
		{"critical", store.Stats{Total: 100, Active: 20, Inactive: 80}, 0, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			repo := &fakeRepo{stats: c.efficiency}
			m := New(repo, logx.Logger{}, DefaultConfig())
			if err := m.DailyCleanup(context.Background()); err != nil {
				t.Fatalf("DailyCleanup: %v", err)
			}
			if c.wantAllDel {
				if repo.deletedAll != 1 {
					t.Fatalf("expected DeleteAllInactive called once, got %d", repo.deletedAll)
				}
				return
			}
			if len(repo.cleanupCalls) != 1 || repo.cleanupCalls[0] != c.wantAge {
				t.Fatalf("expected cleanup with age %v, got %v", c.wantAge, repo.cleanupCalls)
			}
		})
	}
}

func TestWeeklyOptimizationSkipsWhenNothingInactive(t *testing.T) {
	repo := &fakeRepo{stats: store.Stats{Total: 10, Active: 2, Inactive: 0}}
	m := New(repo, logx.Logger{}, DefaultConfig())
	if err := m.WeeklyOptimization(context.Background()); err != nil {
		t.Fatalf("WeeklyOptimization: %v", err)
	}
	if repo.deletedAll != 0 {
		t.Fatalf("expected no deletion with zero inactive rows")
	}
}

func TestRealTimeMonitorEmergencyPath(t *testing.T) {
	repo := &fakeRepo{stats: store.Stats{Total: 200, Active: 10, Inactive: 190}}
	m := New(repo, logx.Logger{}, DefaultConfig())
	if err := m.RealTimeMonitor(context.Background()); err != nil {
		t.Fatalf("RealTimeMonitor: %v", err)
	}
	if repo.deletedAll != 1 {
		t.Fatalf("expected emergency DeleteAllInactive")
	}
}

func TestSetConfigRetunesFutureRuns(t *testing.T) {
	repo := &fakeRepo{stats: store.Stats{Total: 100, Active: 90, Inactive: 10}}
	m := New(repo, logx.Logger{}, DefaultConfig())

	strict := DefaultConfig()
	strict.DailyDegradedEfficiency = 95
	strict.DailyCriticalEfficiency = 91
	m.SetConfig(strict)

	if err := m.DailyCleanup(context.Background()); err != nil {
		t.Fatalf("DailyCleanup: %v", err)
	}
	if repo.deletedAll != 1 {
		t.Fatalf("expected retuned thresholds to route 90%% efficiency into the critical branch")
	}
}

func TestDiagnosisBuckets(t *testing.T) {
	cases := map[float64]string{95: "excellent", 85: "good", 65: "fair", 45: "poor", 10: "critical"}
	for eff, want := range cases {
		if got := Diagnosis(eff); got != want {
			t.Fatalf("Diagnosis(%f) = %q, want %q", eff, got, want)
		}
	}
}
