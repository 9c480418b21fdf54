package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

func New(cfg Config, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg: cfg,
		log: log,
		// SecondOptional lets health-monitor schedules use plain 5-field cron
		// while still allowing an explicit seconds field if ever needed.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
	}
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start arms the cron engine and worker pool. No job fires before Start is
// called, matching the lifecycle controller's requirement that ticks never
// fire ahead of a warm cache.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopCh != nil {
		return
	}
	s.stopCh = make(chan struct{})
	s.runCtx, s.cancel = context.WithCancel(ctx)

	workers := s.cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	s.queue = make(chan job, 64)

	loc := s.loadLocationLocked()
	s.loc = loc
	s.c = cron.New(cron.WithParser(s.parser), cron.WithLocation(loc))
	for i := range s.defs {
		_ = s.addCronLocked(&s.defs[i])
	}

	runCtx, stopCh, queue := s.runCtx, s.stopCh, s.queue
	s.workerWG.Add(workers)
	for i := 0; i < workers; i++ {
		idx := i
		go func() {
			defer s.workerWG.Done()
			defer func() {
				if r := recover(); r != nil {
					s.log.Error("panic in scheduler worker", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				}
			}()
			s.worker(runCtx, stopCh, queue)
		}()
	}
	s.c.Start()
	s.log.Info("scheduler started", logx.Int("workers", workers), logx.String("tz", loc.String()), logx.Int("jobs", len(s.defs)))
}

func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopCh == nil {
		s.mu.Unlock()
		return nil
	}
	stopCh := s.stopCh
	cancel := s.cancel
	c := s.c
	s.c = nil
	s.cancel = nil
	s.mu.Unlock()

	close(stopCh)
	if cancel != nil {
		cancel()
	}
	if c != nil {
		<-c.Stop().Done()
	}

	done := make(chan struct{})
	go func() {
		s.workerWG.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.mu.Lock()
		s.stopCh, s.runCtx, s.queue = nil, nil, nil
		s.mu.Unlock()
		return ctx.Err()
	}
	s.mu.Lock()
	s.stopCh, s.runCtx, s.queue = nil, nil, nil
	s.mu.Unlock()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to Local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) resolveTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return s.cfg.DefaultTimeout
}

func (s *Service) addCronLocked(d *jobDef) error {
	eid, err := s.c.AddFunc(d.spec, func() {
		if d.opt.Overlap == OverlapSkipIfRunning {
			d.state.mu.Lock()
			running := d.state.running
			d.state.mu.Unlock()
			if running {
				s.log.Debug("job skipped, previous run still in flight", logx.String("job", d.name))
				s.recordHistory(HistoryItem{Name: d.name, Started: time.Now(), Skipped: true})
				return
			}
		}
		s.enqueue(job{name: d.name, timeout: d.timeout, run: d.run, opt: d.opt, state: d.state})
	})
	if err == nil {
		d.entryID = eid
	}
	return err
}

// AddCron registers a job on a cron spec (5-field, 6-field with seconds, or a
// descriptor like "@every 10m").
func (s *Service) AddCron(name, spec string, timeout time.Duration, opt JobOptions, run func(ctx context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if strings.TrimSpace(name) == "" {
		return errors.New("scheduler: job name required")
	}
	s.removeLocked(name)
	d := jobDef{
		name:    name,
		spec:    spec,
		timeout: s.resolveTimeout(timeout),
		run:     run,
		opt:     opt.withDefaults(),
		state:   &runState{},
	}
	s.defs = append(s.defs, d)
	if s.c == nil {
		return nil
	}
	idx := len(s.defs) - 1
	if err := s.addCronLocked(&s.defs[idx]); err != nil {
		return fmt.Errorf("scheduler: register %q: %w", name, err)
	}
	return nil
}

// AddInterval is AddCron sugar for a fixed period. The cron library rounds
// periods under one second up to one second.
func (s *Service) AddInterval(name string, every time.Duration, timeout time.Duration, opt JobOptions, run func(ctx context.Context) error) error {
	return s.AddCron(name, fmt.Sprintf("@every %s", every.String()), timeout, opt, run)
}

// Remove unregisters a job by name. Safe to call whether or not the
// scheduler is currently started.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(name)
}

func (s *Service) removeLocked(name string) bool {
	removed := false
	if s.c != nil {
		for i := range s.defs {
			if s.defs[i].name == name && s.defs[i].entryID != 0 {
				s.c.Remove(s.defs[i].entryID)
				removed = true
			}
		}
	}
	n := 0
	for _, d := range s.defs {
		if d.name == name {
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

func (s *Service) recordHistory(item HistoryItem) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, item)
	max := s.cfg.HistorySize
	if max <= 0 {
		max = 200
	}
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
}
