package scheduler

import (
	"context"
	"time"

	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

func (s *Service) enqueue(j job) {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()
	if q == nil {
		return
	}
	select {
	case q <- j:
	default:
		s.log.Warn("scheduler queue full, dropping job", logx.String("job", j.name))
	}
}

func (s *Service) worker(ctx context.Context, stopCh <-chan struct{}, queue <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case j := <-queue:
			s.execOne(ctx, j)
		}
	}
}

func (s *Service) execOne(ctx context.Context, j job) {
	start := time.Now()
	if j.state != nil {
		j.state.mu.Lock()
		j.state.running = true
		j.state.mu.Unlock()
		defer func() {
			j.state.mu.Lock()
			j.state.running = false
			j.state.mu.Unlock()
		}()
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if j.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	var err error
	attempts := 1 + j.opt.RetryMax
	for attempt := 1; attempt <= attempts; attempt++ {
		err = j.run(runCtx)
		if err == nil || attempt == attempts {
			break
		}
		s.log.Debug("job attempt failed, retrying", logx.String("job", j.name), logx.Int("attempt", attempt), logx.Err(err))
		time.Sleep(time.Second)
	}

	item := HistoryItem{Name: j.name, Started: start, Duration: time.Since(start)}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("scheduled job failed", logx.String("job", j.name), logx.Duration("dur", item.Duration), logx.Err(err))
	} else {
		s.log.Debug("scheduled job ok", logx.String("job", j.name), logx.Duration("dur", item.Duration))
	}
	s.recordHistory(item)
}
