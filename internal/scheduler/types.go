package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// Config controls the scheduler service.
type Config struct {
	Enabled        bool
	Workers        int
	DefaultTimeout time.Duration
	HistorySize    int
	Timezone       string // IANA TZ, e.g. "Asia/Seoul"
}

type OverlapPolicy int

const (
	// OverlapSkipIfRunning drops a scheduled firing while the previous run of
	// the same job is still executing. This is the default: it is what makes
	// a job non-reentrant.
	OverlapSkipIfRunning OverlapPolicy = iota
	OverlapAllow
)

type JobOptions struct {
	Overlap  OverlapPolicy
	RetryMax int
}

func (o JobOptions) withDefaults() JobOptions {
	if o.Overlap != OverlapAllow {
		o.Overlap = OverlapSkipIfRunning
	}
	if o.RetryMax < 0 {
		o.RetryMax = 0
	}
	return o
}

type runState struct {
	mu      sync.Mutex
	running bool
}

// HistoryItem records the outcome of one job run.
type HistoryItem struct {
	Name     string
	Started  time.Time
	Duration time.Duration
	Skipped  bool
	Error    string
}

type job struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     JobOptions
	state   *runState
}

type jobDef struct {
	name    string
	spec    string
	timeout time.Duration
	run     func(ctx context.Context) error
	opt     JobOptions
	state   *runState
	entryID cron.EntryID
}

// Service is a cron-driven job runner with a bounded worker pool.
type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []jobDef

	queue    chan job
	stopCh   chan struct{}
	stopDone chan struct{}
	workerWG sync.WaitGroup
	runCtx   context.Context
	cancel   context.CancelFunc

	hmu     sync.Mutex
	history []HistoryItem
}

// JobInfo is a point-in-time view of a registered job.
type JobInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
}

// Snapshot is the observable state of the scheduler, used by the /stats and
// /batch/status HTTP surfaces.
type Snapshot struct {
	Enabled  bool
	Timezone string
	Workers  int
	QueueLen int
	QueueCap int
	Jobs     []JobInfo
	History  []HistoryItem
}
