package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/vientofactory/lawcast-backend/internal/delivery"
	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/notice"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// transientRetries and transientRetryDelay bound the per-endpoint retry loop
// for non-permanent delivery failures (RATE_LIMITED/NETWORK_ERROR/
// UNKNOWN_ERROR): up to 3 retries, 1s apart, before the send is recorded as a
// temporary failure.
const (
	transientRetries    = 3
	transientRetryDelay = time.Second
)

// Sender is the subset of *delivery.Client the coordinator depends on.
type Sender interface {
	Send(ctx context.Context, endpointURL string, embed delivery.Embed) delivery.Result
}

// Limiter is the subset of *ratelimit.Limiter the coordinator depends on.
type Limiter interface {
	Acquire(ctx context.Context, endpointID int64)
	Record(ctx context.Context, endpointID int64)
}

// Coordinator is the Dispatch Coordinator. One notice batch runs one
// executor job per notice; within a job, sends to that notice's active
// endpoints are sequential to respect the per-endpoint rate limit without
// contention. Parallelism comes from running multiple notices concurrently.
type Coordinator struct {
	repo     store.Repository
	exec     *executor.Service
	delivery Sender
	limiter  Limiter
	log      logx.Logger

	failed *failedSet

	retries    int
	retryDelay time.Duration
}

func New(repo store.Repository, exec *executor.Service, client Sender, limiter Limiter, log logx.Logger) *Coordinator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Coordinator{
		repo: repo, exec: exec, delivery: client, limiter: limiter, log: log, failed: newFailedSet(),
		retries: transientRetries, retryDelay: transientRetryDelay,
	}
}

// Dispatch runs one notice per executor job and returns per-notice
// aggregates in submission order. A non-nil error means the executor
// itself refused the batch (e.g. shutting down); individual delivery
// failures never surface as an error here.
func (c *Coordinator) Dispatch(ctx context.Context, notices []notice.Notice, opts executor.Options) ([]Result, error) {
	results := make([]Result, len(notices))
	jobs := make([]executor.Job, len(notices))
	for i, n := range notices {
		i, n := i, n
		jobs[i] = executor.Job{
			Name: fmt.Sprintf("notice-%d", n.Num),
			Run: func(ctx context.Context) error {
				results[i] = c.dispatchOne(ctx, n)
				return nil
			},
		}
	}

	if _, err := c.exec.ExecuteBatch(ctx, jobs, opts); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *Coordinator) dispatchOne(ctx context.Context, n notice.Notice) Result {
	endpoints, err := c.repo.FindActive(ctx)
	if err != nil {
		c.log.Error("dispatch: could not load active endpoints", logx.Int64("notice_num", n.Num), logx.Err(err))
		return Result{Notice: n}
	}

	embed := delivery.Embed{
		Title:       n.Subject,
		URL:         n.Link,
		Description: n.Committee,
		Fields: map[string]string{
			"proposer_category": n.ProposerCategory,
		},
	}

	result := Result{Notice: n, TotalEndpoints: len(endpoints)}
	for _, ep := range endpoints {
		if c.failed.isMarked(ep.ID) {
			continue
		}

		outcome := c.sendWithRetry(ctx, ep, embed)

		if outcome.Success {
			c.limiter.Record(ctx, ep.ID)
			result.SuccessCount++
			continue
		}

		if !outcome.ShouldDelete {
			result.TemporaryFailures++
			result.FailedCount++
			continue
		}

		result.FailedCount++
		result.Deactivated = append(result.Deactivated, ep.ID)
		c.failed.mark(ep.ID)
		if err := c.repo.Deactivate(ctx, ep.ID); err != nil {
			c.log.Warn("dispatch: deactivate failed, endpoint stays active", logx.Int64("endpoint_id", ep.ID), logx.Err(err))
		}
		c.failed.clear(ep.ID)
	}
	return result
}

// sendWithRetry sends embed to ep, retrying c.retries times with
// c.retryDelay between attempts as long as the outcome is a non-permanent
// failure. A permanent outcome (ShouldDelete) or a success returns
// immediately.
func (c *Coordinator) sendWithRetry(ctx context.Context, ep store.Endpoint, embed delivery.Embed) delivery.Result {
	var outcome delivery.Result
	for attempt := 1; ; attempt++ {
		c.limiter.Acquire(ctx, ep.ID)
		outcome = c.delivery.Send(ctx, ep.URL, embed)

		if outcome.Success || outcome.ShouldDelete || attempt > c.retries {
			return outcome
		}

		c.log.Debug("dispatch: transient send failure, retrying",
			logx.Int64("endpoint_id", ep.ID), logx.String("category", string(outcome.Category)), logx.Int("attempt", attempt))
		select {
		case <-time.After(c.retryDelay):
		case <-ctx.Done():
			return outcome
		}
	}
}
