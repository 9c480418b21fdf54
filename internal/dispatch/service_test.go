package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/delivery"
	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/notice"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

type fakeRepo struct {
	mu         sync.Mutex
	endpoints  map[int64]store.Endpoint
	deactivate func(id int64) error
}

func newFakeRepo(endpoints ...store.Endpoint) *fakeRepo {
	m := make(map[int64]store.Endpoint, len(endpoints))
	for _, e := range endpoints {
		m[e.ID] = e
	}
	return &fakeRepo{endpoints: m}
}

func (f *fakeRepo) FindActive(ctx context.Context) ([]store.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Endpoint
	for _, e := range f.endpoints {
		if e.Active {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeRepo) Deactivate(ctx context.Context, id int64) error {
	if f.deactivate != nil {
		if err := f.deactivate(id); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	e := f.endpoints[id]
	e.Active = false
	f.endpoints[id] = e
	return nil
}

func (f *fakeRepo) CreateOrReactivate(ctx context.Context, url string) (store.Endpoint, error) {
	return store.Endpoint{}, nil
}
func (f *fakeRepo) FindByID(ctx context.Context, id int64) (store.Endpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.endpoints[id]
	if !ok {
		return store.Endpoint{}, store.ErrNotFound
	}
	return e, nil
}
func (f *fakeRepo) FindByURL(ctx context.Context, url string) (store.Endpoint, error) {
	return store.Endpoint{}, store.ErrNotFound
}
func (f *fakeRepo) DeletePermanent(ctx context.Context, ids []int64) (int, error) { return 0, nil }
func (f *fakeRepo) CleanupOlderInactive(ctx context.Context, age time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeRepo) DeleteAllInactive(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeRepo) Stats(ctx context.Context) (store.Stats, error)     { return store.Stats{}, nil }
func (f *fakeRepo) BulkCreate(ctx context.Context, urls []string) (store.BulkResult, error) {
	return store.BulkResult{}, nil
}
func (f *fakeRepo) ActiveCount(ctx context.Context) (int, error) { return 0, nil }
func (f *fakeRepo) Close() error                                 { return nil }

type fakeSender struct {
	resultFor func(endpointURL string) delivery.Result
	calls     []string
	mu        sync.Mutex
}

func (f *fakeSender) Send(ctx context.Context, endpointURL string, embed delivery.Embed) delivery.Result {
	f.mu.Lock()
	f.calls = append(f.calls, endpointURL)
	f.mu.Unlock()
	return f.resultFor(endpointURL)
}

type noopLimiter struct{}

func (noopLimiter) Acquire(ctx context.Context, endpointID int64) {}
func (noopLimiter) Record(ctx context.Context, endpointID int64)  {}

func TestDispatchDeactivatesOnPermanentFailure(t *testing.T) {
	repo := newFakeRepo(store.Endpoint{ID: 1, URL: "https://a", Active: true})
	sender := &fakeSender{resultFor: func(string) delivery.Result {
		return delivery.Result{Success: false, Category: delivery.NotFound, ShouldDelete: true}
	}}

	coord := New(repo, executor.New(logx.Logger{}), sender, noopLimiter{}, logx.Logger{})
	results, err := coord.Dispatch(context.Background(), []notice.Notice{{Num: 1}}, executor.Options{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(results) != 1 || len(results[0].Deactivated) != 1 || results[0].Deactivated[0] != 1 {
		t.Fatalf("expected endpoint 1 deactivated, got %+v", results[0])
	}
	ep, err := repo.FindByID(context.Background(), 1)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if ep.Active {
		t.Fatalf("expected endpoint deactivated in repo")
	}
}

func TestDispatchKeepsEndpointActiveOnTransientFailure(t *testing.T) {
	repo := newFakeRepo(store.Endpoint{ID: 1, URL: "https://a", Active: true})
	sender := &fakeSender{resultFor: func(string) delivery.Result {
		return delivery.Result{Success: false, Category: delivery.RateLimited, ShouldDelete: false}
	}}

	coord := New(repo, executor.New(logx.Logger{}), sender, noopLimiter{}, logx.Logger{})
	coord.retryDelay = time.Millisecond
	results, err := coord.Dispatch(context.Background(), []notice.Notice{{Num: 1}}, executor.Options{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(results[0].Deactivated) != 0 || results[0].TemporaryFailures != 1 {
		t.Fatalf("expected transient failure, no deactivation, got %+v", results[0])
	}
	ep, _ := repo.FindByID(context.Background(), 1)
	if !ep.Active {
		t.Fatalf("expected endpoint to remain active")
	}
	if got := len(sender.calls); got != coord.retries+1 {
		t.Fatalf("expected %d attempts (1 + %d retries), got %d", coord.retries+1, coord.retries, got)
	}
}

func TestDispatchRetriesTransientFailureUntilSuccess(t *testing.T) {
	repo := newFakeRepo(store.Endpoint{ID: 1, URL: "https://a", Active: true})
	var attempts int
	sender := &fakeSender{resultFor: func(string) delivery.Result {
		attempts++
		if attempts < 2 {
			return delivery.Result{Success: false, Category: delivery.NetworkError, ShouldDelete: false}
		}
		return delivery.Result{Success: true}
	}}

	coord := New(repo, executor.New(logx.Logger{}), sender, noopLimiter{}, logx.Logger{})
	coord.retryDelay = time.Millisecond
	results, err := coord.Dispatch(context.Background(), []notice.Notice{{Num: 1}}, executor.Options{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if results[0].SuccessCount != 1 || results[0].TemporaryFailures != 0 {
		t.Fatalf("expected the retried send to succeed, got %+v", results[0])
	}
	if attempts != 2 {
		t.Fatalf("expected exactly 2 attempts, got %d", attempts)
	}
}

func TestDispatchStopsRetryingOnPermanentFailure(t *testing.T) {
	repo := newFakeRepo(store.Endpoint{ID: 1, URL: "https://a", Active: true})
	sender := &fakeSender{resultFor: func(string) delivery.Result {
		return delivery.Result{Success: false, Category: delivery.NotFound, ShouldDelete: true}
	}}

	coord := New(repo, executor.New(logx.Logger{}), sender, noopLimiter{}, logx.Logger{})
	coord.retryDelay = time.Millisecond
	results, err := coord.Dispatch(context.Background(), []notice.Notice{{Num: 1}}, executor.Options{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if len(sender.calls) != 1 {
		t.Fatalf("expected a permanent failure to skip retries, got %d calls", len(sender.calls))
	}
	if len(results[0].Deactivated) != 1 {
		t.Fatalf("expected endpoint deactivated, got %+v", results[0])
	}
}

func TestDispatchWithZeroActiveEndpointsRecordsNoFailure(t *testing.T) {
	repo := newFakeRepo()
	sender := &fakeSender{resultFor: func(string) delivery.Result { return delivery.Result{Success: true} }}

	coord := New(repo, executor.New(logx.Logger{}), sender, noopLimiter{}, logx.Logger{})
	results, err := coord.Dispatch(context.Background(), []notice.Notice{{Num: 1}}, executor.Options{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if results[0].TotalEndpoints != 0 || results[0].SuccessCount != 0 || results[0].FailedCount != 0 {
		t.Fatalf("expected a no-op dispatch, got %+v", results[0])
	}
}
