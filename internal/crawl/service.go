package crawl

import (
	"context"
	"sync"

	"github.com/vientofactory/lawcast-backend/internal/cache"
	"github.com/vientofactory/lawcast-backend/internal/dispatch"
	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/notice"
	"github.com/vientofactory/lawcast-backend/internal/scheduler"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// TickSpec is the cron expression for the crawl tick: every 10 minutes.
const TickSpec = "@every 10m"

// Dispatcher is the subset of *dispatch.Coordinator the crawl scheduler
// depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, notices []notice.Notice, opts executor.Options) ([]dispatch.Result, error)
}

// Service is the Crawl Scheduler. Non-reentrancy is provided by the
// scheduler package's default overlap-skip policy, not by a hand-rolled
// latch here.
type Service struct {
	crawler notice.Crawler
	cache   cache.Cache
	coord   Dispatcher
	log     logx.Logger

	mu           sync.RWMutex
	dispatchOpts executor.Options
}

func New(crawler notice.Crawler, c cache.Cache, coord Dispatcher, log logx.Logger, opts executor.Options) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{crawler: crawler, cache: c, coord: coord, log: log, dispatchOpts: opts}
}

// SetDispatchOptions swaps in new executor options for future ticks' calls
// to Dispatch. A tick already past its Dispatch call is unaffected.
func (s *Service) SetDispatchOptions(opts executor.Options) {
	s.mu.Lock()
	s.dispatchOpts = opts
	s.mu.Unlock()
}

func (s *Service) dispatchOptions() executor.Options {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dispatchOpts
}

// Register arms the crawl tick on sched.
func (s *Service) Register(sched *scheduler.Service) error {
	return sched.AddCron("crawl:tick", TickSpec, 0, scheduler.JobOptions{Overlap: scheduler.OverlapSkipIfRunning}, s.Tick)
}

// InitializeCache performs one crawl and seeds the recency cache before any
// tick is armed. If the crawl fails, the cache stays uninitialized and the
// first successful tick will seed it instead (see Tick) rather than
// blocking forever.
func (s *Service) InitializeCache(ctx context.Context) error {
	crawled, err := s.crawler.Crawl(ctx)
	if err != nil {
		s.log.Error("initial crawl failed, cache stays cold until a tick self-heals it", logx.Err(err))
		return nil
	}
	if err := s.cache.Initialize(ctx, crawled); err != nil {
		return err
	}
	s.log.Info("cache initialized", logx.Int("count", len(crawled)))
	return nil
}

// Tick crawls, diffs against the cache, and dispatches any new notices.
// cache.Update always runs after a dispatch attempt (even one that
// errored) so the next tick never re-fires on the same notices.
func (s *Service) Tick(ctx context.Context) error {
	meta, err := s.cache.Meta(ctx)
	if err != nil {
		return err
	}

	crawled, err := s.crawler.Crawl(ctx)
	if err != nil {
		s.log.Warn("crawl tick: fetch failed, skipping", logx.Err(err))
		return nil
	}
	if len(crawled) == 0 {
		s.log.Warn("crawl tick: upstream returned no data")
		return nil
	}

	if !meta.IsInitialized {
		if err := s.cache.Initialize(ctx, crawled); err != nil {
			return err
		}
		s.log.Info("cache self-healed from tick", logx.Int("count", len(crawled)))
		return nil
	}

	newNotices, err := s.cache.FindNew(ctx, crawled)
	if err != nil {
		s.log.Warn("crawl tick: findNew degraded to full crawl", logx.Err(err))
		newNotices = crawled
	}

	var dispatchErr error
	if len(newNotices) > 0 {
		results, err := s.coord.Dispatch(ctx, newNotices, s.dispatchOptions())
		if err != nil {
			dispatchErr = err
			s.log.Error("crawl tick: dispatch failed", logx.Err(err))
		} else {
			for _, r := range results {
				s.log.Info("notice dispatched",
					logx.Int64("notice_num", r.Notice.Num),
					logx.Int("endpoints", r.TotalEndpoints),
					logx.Int("succeeded", r.SuccessCount),
					logx.Int("failed", r.FailedCount),
					logx.Int("deactivated", len(r.Deactivated)),
				)
			}
		}
	}

	if err := s.cache.Update(ctx, crawled); err != nil {
		return err
	}
	return dispatchErr
}
