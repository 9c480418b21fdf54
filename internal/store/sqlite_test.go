package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

func openTestRepo(t *testing.T) Repository {
	t.Helper()
	dir := t.TempDir()
	repo, err := Open(Config{Path: filepath.Join(dir, "test.db")}, logx.Logger{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCreateOrReactivateInsertsThenReturnsSameRow(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	e1, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	if err != nil {
		t.Fatalf("CreateOrReactivate: %v", err)
	}
	if !e1.Active {
		t.Fatalf("expected new row to be active")
	}

	e2, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok/")
	if err != nil {
		t.Fatalf("CreateOrReactivate (again): %v", err)
	}
	if e1.ID != e2.ID {
		t.Fatalf("expected canonicalized duplicate to resolve to same row, got %d vs %d", e1.ID, e2.ID)
	}
}

func TestCreateOrReactivateConcurrentCallsProduceOneActiveRow(t *testing.T) {
	repo := openTestRepo(t)
	ctx := context.Background()
	const callers = 10

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: CreateOrReactivate: %v", i, err)
		}
	}

	n, err := repo.ActiveCount(ctx)
	if err != nil {
		t.Fatalf("ActiveCount: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one active row from %d concurrent calls, got %d", callers, n)
	}
}

func TestCreateOrReactivateFlipsInactiveRow(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	e, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	if err != nil {
		t.Fatalf("CreateOrReactivate: %v", err)
	}
	if err := repo.Deactivate(ctx, e.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	reactivated, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	if err != nil {
		t.Fatalf("CreateOrReactivate (reactivate): %v", err)
	}
	if reactivated.ID != e.ID {
		t.Fatalf("expected reactivation to reuse row id %d, got %d", e.ID, reactivated.ID)
	}
	if !reactivated.Active {
		t.Fatalf("expected reactivated row to be active")
	}
}

func TestDeactivateThenFindActiveExcludesIt(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	e, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	if err != nil {
		t.Fatalf("CreateOrReactivate: %v", err)
	}
	if err := repo.Deactivate(ctx, e.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	active, err := repo.FindActive(ctx)
	if err != nil {
		t.Fatalf("FindActive: %v", err)
	}
	for _, a := range active {
		if a.ID == e.ID {
			t.Fatalf("deactivated endpoint %d still present in FindActive", e.ID)
		}
	}
}

func TestDeactivateUnknownIDReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if err := repo.Deactivate(ctx, 999); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStatsAggregatesCounts(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	a, _ := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	b, _ := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/2/tok")
	_, _ = repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/3/tok")
	_ = repo.Deactivate(ctx, a.ID)
	_ = repo.Deactivate(ctx, b.ID)

	stats, err := repo.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 || stats.Active != 1 || stats.Inactive != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats.Efficiency() < 33.0 || stats.Efficiency() > 34.0 {
		t.Fatalf("unexpected efficiency: %f", stats.Efficiency())
	}
}

func TestEmptyRepositoryEfficiencyIsHundred(t *testing.T) {
	s := Stats{}
	if s.Efficiency() != 100 {
		t.Fatalf("expected 100, got %f", s.Efficiency())
	}
}

func TestBulkCreateDedupsAndClassifies(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	existing, _ := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	_ = repo.Deactivate(ctx, existing.ID)

	result, err := repo.BulkCreate(ctx, []string{
		"https://discord.com/api/webhooks/1/tok",  // reactivated
		"https://discord.com/api/webhooks/2/tok",  // created
		"https://discord.com/api/webhooks/2/tok/", // duplicate within batch (canonicalizes same)
	})
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}
	if result.Created != 1 || result.Reactivated != 1 || result.Duplicates != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestDeletePermanentChunksAndCounts(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	var ids []int64
	for i := 0; i < 5; i++ {
		e, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/"+string(rune('a'+i))+"/tok")
		if err != nil {
			t.Fatalf("CreateOrReactivate: %v", err)
		}
		ids = append(ids, e.ID)
	}

	n, err := repo.DeletePermanent(ctx, ids)
	if err != nil {
		t.Fatalf("DeletePermanent: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 deleted, got %d", n)
	}
	active, _ := repo.FindActive(ctx)
	if len(active) != 0 {
		t.Fatalf("expected no active rows left, got %d", len(active))
	}
}

func TestCleanupOlderInactiveOnlyRemovesStaleInactive(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	e, err := repo.CreateOrReactivate(ctx, "https://discord.com/api/webhooks/1/tok")
	if err != nil {
		t.Fatalf("CreateOrReactivate: %v", err)
	}
	if err := repo.Deactivate(ctx, e.ID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}

	n, err := repo.CleanupOlderInactive(ctx, 14*24*time.Hour)
	if err != nil {
		t.Fatalf("CleanupOlderInactive: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected a freshly deactivated row to survive a 14 day cutoff, got %d deleted", n)
	}

	n, err = repo.CleanupOlderInactive(ctx, 0)
	if err != nil {
		t.Fatalf("CleanupOlderInactive: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected a 0-duration cutoff to delete the row, got %d", n)
	}
}
