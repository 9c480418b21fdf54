package executor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

func TestExecuteBatchOrderAndConcurrency(t *testing.T) {
	svc := New(logx.Logger{})

	var inflight, maxInflight int32
	jobs := make([]Job, 20)
	for i := range jobs {
		i := i
		jobs[i] = Job{Name: sprintName(i), Run: func(ctx context.Context) error {
			n := atomic.AddInt32(&inflight, 1)
			for {
				m := atomic.LoadInt32(&maxInflight)
				if n <= m || atomic.CompareAndSwapInt32(&maxInflight, m, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			atomic.AddInt32(&inflight, -1)
			return nil
		}}
	}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{Concurrency: 4})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if result.Total != 20 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	for i, r := range result.Results {
		if r.Name != sprintName(i) {
			t.Fatalf("results out of submission order at %d: got %q", i, r.Name)
		}
	}
	if got := atomic.LoadInt32(&maxInflight); got > 4 {
		t.Fatalf("concurrency ceiling violated: saw %d in flight", got)
	}
}

func TestExecuteBatchRetriesThenSucceeds(t *testing.T) {
	svc := New(logx.Logger{})
	var calls int32

	jobs := []Job{{Name: "flaky", Run: func(ctx context.Context) error {
		if atomic.AddInt32(&calls, 1) < 3 {
			return errors.New("not yet")
		}
		return nil
	}}}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{RetryCount: 3, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if !result.Results[0].Success {
		t.Fatalf("expected eventual success, got %+v", result.Results[0])
	}
	if result.Results[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", result.Results[0].Attempts)
	}
}

func TestExecuteBatchExhaustsRetries(t *testing.T) {
	svc := New(logx.Logger{})
	boom := errors.New("boom")
	jobs := []Job{{Name: "always-fails", Run: func(ctx context.Context) error { return boom }}}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{RetryCount: 2, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %+v", result)
	}
	if result.Results[0].Attempts != 3 {
		t.Fatalf("expected 3 attempts (1+retryCount), got %d", result.Results[0].Attempts)
	}
	if result.Results[0].Error != boom.Error() {
		t.Fatalf("unexpected error string: %q", result.Results[0].Error)
	}
}

func TestExecuteBatchNoRetryStopsImmediately(t *testing.T) {
	svc := New(logx.Logger{})
	var calls int32
	jobs := []Job{{Name: "permanent", Run: func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return NoRetry(errors.New("bad input"))
	}}}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{RetryCount: 5, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if result.Results[0].Attempts != 1 {
		t.Fatalf("expected NoRetry to stop after 1 attempt, got %d", result.Results[0].Attempts)
	}
	if atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("expected job run once, got %d", calls)
	}
}

func TestExecuteBatchTimeout(t *testing.T) {
	svc := New(logx.Logger{})
	jobs := []Job{{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{Timeout: 10 * time.Millisecond, RetryCount: 0})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if result.Results[0].Success {
		t.Fatalf("expected timeout failure")
	}
}

func TestExecuteBatchSizeSlicing(t *testing.T) {
	svc := New(logx.Logger{})
	jobs := make([]Job, 9)
	for i := range jobs {
		i := i
		jobs[i] = Job{Name: sprintName(i), Run: func(ctx context.Context) error {
			return nil
		}}
	}

	result, err := svc.ExecuteBatch(context.Background(), jobs, Options{Concurrency: 2, BatchSize: 3})
	if err != nil {
		t.Fatalf("ExecuteBatch: %v", err)
	}
	if result.Total != 9 {
		t.Fatalf("expected 9 results, got %d", result.Total)
	}
}

func TestSubmitBatchAndAwait(t *testing.T) {
	svc := New(logx.Logger{})
	jobs := []Job{{Name: "job", Run: func(ctx context.Context) error { return nil }}}

	id, err := svc.SubmitBatch(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	result, err := svc.Await(context.Background(), id)
	if err != nil {
		t.Fatalf("Await: %v", err)
	}
	if result.Total != 1 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if _, err := svc.Await(context.Background(), id); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob after reap, got %v", err)
	}
}

func TestShutdownRejectsNewWorkButDrainsInFlight(t *testing.T) {
	svc := New(logx.Logger{})
	release := make(chan struct{})
	jobs := []Job{{Name: "in-flight", Run: func(ctx context.Context) error {
		<-release
		return nil
	}}}

	id, err := svc.SubmitBatch(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	shutdownDone := make(chan error, 1)
	go func() { shutdownDone <- svc.Shutdown(context.Background()) }()
	for !svc.Snapshot().ShuttingDown {
		time.Sleep(time.Millisecond)
	}

	if _, err := svc.SubmitBatch(context.Background(), jobs, Options{}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}
	if _, err := svc.ExecuteBatch(context.Background(), jobs, Options{}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown, got %v", err)
	}

	close(release)
	select {
	case err := <-shutdownDone:
		if err != nil {
			t.Fatalf("Shutdown: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not drain in-flight batch")
	}

	if _, err := svc.Await(context.Background(), id); err != nil && !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("unexpected Await error: %v", err)
	}
}

func TestForceShutdownClearsInFlightWithoutWaiting(t *testing.T) {
	svc := New(logx.Logger{})
	release := make(chan struct{})
	jobs := []Job{{Name: "stuck", Run: func(ctx context.Context) error {
		<-release
		return nil
	}}}
	defer close(release)

	id, err := svc.SubmitBatch(context.Background(), jobs, Options{})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	svc.ForceShutdown()

	if _, err := svc.Await(context.Background(), id); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob after force clear, got %v", err)
	}
	if _, err := svc.SubmitBatch(context.Background(), jobs, Options{}); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("expected ErrShuttingDown after force shutdown, got %v", err)
	}
}

func sprintName(i int) string {
	const digits = "0123456789"
	if i == 0 {
		return "job-0"
	}
	buf := make([]byte, 0, 8)
	for i > 0 {
		buf = append([]byte{digits[i%10]}, buf...)
		i /= 10
	}
	return "job-" + string(buf)
}
