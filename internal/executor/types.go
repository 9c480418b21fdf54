package executor

import (
	"context"
	"time"
)

// Options controls one call to ExecuteBatch or SubmitBatch.
type Options struct {
	// Concurrency bounds how many jobs run at once within a slice. Default 10.
	Concurrency int
	// Timeout bounds a single attempt of a single job. Default 30s.
	Timeout time.Duration
	// RetryCount is the number of retries after the first attempt. Zero
	// means a single attempt; negative values are treated as zero.
	RetryCount int
	// RetryDelay is slept between attempts. Default 1s.
	RetryDelay time.Duration
	// BatchSize, if set, slices jobs into contiguous chunks processed one
	// after another; the concurrency rule applies within each chunk.
	BatchSize int
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 10
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.RetryCount < 0 {
		o.RetryCount = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	return o
}

// Job is one unit of work submitted to the executor. Name is used only for
// logging and JobResult identification.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// JobResult is the outcome of one job, in submission order.
type JobResult struct {
	Name     string
	Success  bool
	Error    string
	Attempts int
	Duration time.Duration
}

// BatchResult is the aggregate outcome of one ExecuteBatch/SubmitBatch call.
type BatchResult struct {
	Results []JobResult
	Total   int
	Failed  int
}

func (b BatchResult) Succeeded() int { return b.Total - b.Failed }

// Snapshot is a point-in-time view of executor state for status endpoints.
type Snapshot struct {
	ShuttingDown bool
	InFlight     int
}
