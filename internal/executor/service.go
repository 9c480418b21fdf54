package executor

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// Service runs batches of jobs under a concurrency ceiling with per-job
// timeout and retry. The zero value is not usable; construct with New.
type Service struct {
	log logx.Logger

	mu           sync.Mutex
	shuttingDown bool

	fmu    sync.Mutex
	future map[string]*future
	wg     sync.WaitGroup
}

type future struct {
	done   chan struct{}
	result BatchResult
	err    error
}

func New(log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{log: log, future: make(map[string]*future)}
}

func (s *Service) isShuttingDown() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shuttingDown
}

// Shutdown closes the gate against new batches and waits for in-flight
// futures submitted via SubmitBatch to finish, bounded by ctx.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ForceShutdown closes the gate against new batches and clears the
// in-flight future table immediately, without awaiting anything. Callers of
// Await/AwaitAll for a cleared job id receive ErrUnknownJob. Intended for
// use when Shutdown's ceiling has already been exceeded.
func (s *Service) ForceShutdown() {
	s.mu.Lock()
	s.shuttingDown = true
	s.mu.Unlock()

	s.fmu.Lock()
	s.future = make(map[string]*future)
	s.fmu.Unlock()
}

// Snapshot reports whether the executor is draining and how many batches
// are currently in flight.
func (s *Service) Snapshot() Snapshot {
	s.mu.Lock()
	down := s.shuttingDown
	s.mu.Unlock()

	s.fmu.Lock()
	n := len(s.future)
	s.fmu.Unlock()

	return Snapshot{ShuttingDown: down, InFlight: n}
}

// ExecuteBatch runs jobs to completion and returns their results in
// submission order. It blocks until the whole batch (including retries) is
// done or ctx is cancelled.
func (s *Service) ExecuteBatch(ctx context.Context, jobs []Job, opts Options) (BatchResult, error) {
	if s.isShuttingDown() {
		return BatchResult{}, ErrShuttingDown
	}
	opts = opts.withDefaults()

	results := make([]JobResult, len(jobs))

	sliceSize := len(jobs)
	if opts.BatchSize > 0 && opts.BatchSize < sliceSize {
		sliceSize = opts.BatchSize
	}
	if sliceSize == 0 {
		sliceSize = len(jobs)
	}

	for sliceStart := 0; sliceStart < len(jobs); sliceStart += sliceSize {
		sliceEnd := sliceStart + sliceSize
		if sliceEnd > len(jobs) {
			sliceEnd = len(jobs)
		}
		for chunkStart := sliceStart; chunkStart < sliceEnd; chunkStart += opts.Concurrency {
			chunkEnd := chunkStart + opts.Concurrency
			if chunkEnd > sliceEnd {
				chunkEnd = sliceEnd
			}
			var wg sync.WaitGroup
			for i := chunkStart; i < chunkEnd; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					defer func() {
						if r := recover(); r != nil {
							results[i] = JobResult{Name: jobs[i].Name, Success: false, Error: "panic in job", Attempts: 1}
							s.log.Error("panic in executor job", logx.String("job", jobs[i].Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
						}
					}()
					results[i] = s.runJob(ctx, jobs[i], opts)
				}(i)
			}
			wg.Wait()
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	return BatchResult{Results: results, Total: len(results), Failed: failed}, nil
}

// runJob attempts a job up to opts.RetryCount+1 times, racing each attempt
// against opts.Timeout. Failing a job never aborts the batch.
func (s *Service) runJob(ctx context.Context, j Job, opts Options) JobResult {
	start := time.Now()
	attempts := 1 + opts.RetryCount
	var lastErr error
	made := 0

	for attempt := 1; attempt <= attempts; attempt++ {
		made = attempt
		attemptCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		lastErr = j.Run(attemptCtx)
		cancel()

		if lastErr == nil {
			return JobResult{Name: j.Name, Success: true, Attempts: attempt, Duration: time.Since(start)}
		}
		if IsNoRetry(lastErr) || attempt == attempts {
			break
		}

		s.log.Debug("job attempt failed, retrying", logx.String("job", j.Name), logx.Int("attempt", attempt), logx.Err(lastErr))
		select {
		case <-time.After(opts.RetryDelay):
		case <-ctx.Done():
			lastErr = ctx.Err()
			attempt = attempts
		}
	}

	return JobResult{
		Name:     j.Name,
		Success:  false,
		Error:    lastErr.Error(),
		Attempts: made,
		Duration: time.Since(start),
	}
}

// SubmitBatch registers a non-blocking future for a batch and returns its
// job id immediately. The batch runs on a detached context so it survives
// the caller's own request lifetime; Shutdown still waits for it to drain.
func (s *Service) SubmitBatch(ctx context.Context, jobs []Job, opts Options) (string, error) {
	if s.isShuttingDown() {
		return "", ErrShuttingDown
	}
	id := uuid.NewString()
	f := &future{done: make(chan struct{})}

	s.fmu.Lock()
	s.future[id] = f
	s.fmu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				f.err = context.Canceled
				close(f.done)
				s.log.Error("panic in submitted batch", logx.String("job_id", id), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			}
		}()

		result, err := s.ExecuteBatch(context.WithoutCancel(ctx), jobs, opts)
		f.result, f.err = result, err
		close(f.done)

		s.log.Info("batch complete",
			logx.String("job_id", id),
			logx.Int("total", result.Total),
			logx.Int("succeeded", result.Succeeded()),
			logx.Int("failed", result.Failed),
		)

		s.fmu.Lock()
		delete(s.future, id)
		s.fmu.Unlock()
	}()

	return id, nil
}

// Await blocks until the batch identified by jobID completes, or ctx is
// cancelled. Once a batch's result has been reaped by a prior Await it can
// no longer be awaited again.
func (s *Service) Await(ctx context.Context, jobID string) (BatchResult, error) {
	s.fmu.Lock()
	f, ok := s.future[jobID]
	s.fmu.Unlock()
	if !ok {
		return BatchResult{}, ErrUnknownJob
	}
	select {
	case <-f.done:
		s.fmu.Lock()
		delete(s.future, jobID)
		s.fmu.Unlock()
		return f.result, f.err
	case <-ctx.Done():
		return BatchResult{}, ctx.Err()
	}
}

// AwaitAll blocks until every currently tracked in-flight batch completes.
func (s *Service) AwaitAll(ctx context.Context) []BatchResult {
	s.fmu.Lock()
	futures := make([]*future, 0, len(s.future))
	for _, f := range s.future {
		futures = append(futures, f)
	}
	s.fmu.Unlock()

	results := make([]BatchResult, 0, len(futures))
	for _, f := range futures {
		select {
		case <-f.done:
			results = append(results, f.result)
		case <-ctx.Done():
			return results
		}
	}
	return results
}
