package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/scheduler"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// ShutdownCeiling bounds how long Shutdown waits for in-flight executor
// batches to drain before returning, regardless of caller-supplied context.
const ShutdownCeiling = 25 * time.Second

// Step is one named unit of the startup sequence. Steps run strictly in
// order; a failing step aborts the remaining ones.
type Step struct {
	Name string
	Run  func(ctx context.Context) error
}

// Closer releases a resource acquired during startup (a DB handle, a cache
// connection). Errors are logged, never fatal to shutdown.
type Closer struct {
	Name  string
	Close func() error
}

// Controller is the Lifecycle Controller: it runs startup steps in order
// (repository open, cache warm, executor ready, schedulers armed — no tick
// fires until the cache reports initialized), supervises long-running
// background goroutines via the embedded Supervisor, and drives an orderly
// shutdown bounded by ShutdownCeiling.
type Controller struct {
	sup *Supervisor
	log logx.Logger
}

func NewController(ctx context.Context, log logx.Logger) *Controller {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Controller{
		// This is a single-process service: an unrecovered failure in a
		// supervised goroutine (the HTTP listener dying, the runtime-config
		// watcher exhausting its restarts) should trigger the same orderly
		// shutdown drain as a SIGTERM, not run the process on in a half-dead
		// state.
		sup: NewSupervisor(ctx, WithLogger(log), WithCancelOnError(true)),
		log: log,
	}
}

// Context is cancelled once Shutdown begins, or once a supervised goroutine
// fails fatally (see Err).
func (c *Controller) Context() context.Context { return c.sup.Context() }

// Err reports the first fatal error observed from a supervised goroutine, if
// Context has been cancelled for that reason rather than by Shutdown.
func (c *Controller) Err() error { return c.sup.Err() }

// Snapshot reports per-goroutine stats for every task started via Supervise
// or SuperviseRestart, for /batch/status.
func (c *Controller) Snapshot() SupervisorSnapshot { return c.sup.Snapshot() }

// Startup runs steps in order, stopping at the first failure.
func (c *Controller) Startup(ctx context.Context, steps ...Step) error {
	for _, s := range steps {
		c.log.Info("startup step", logx.String("step", s.Name))
		if err := s.Run(ctx); err != nil {
			return fmt.Errorf("startup: %s: %w", s.Name, err)
		}
	}
	// No-op unless running under systemd with NotifyAccess set.
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		c.log.Debug("sd_notify ready failed", logx.Err(err))
	}
	return nil
}

// Supervise starts a long-running background goroutine (the HTTP server,
// the runtime-config apply loop) under the controller's
// supervisor, with panic recovery.
func (c *Controller) Supervise(name string, fn func(ctx context.Context) error) {
	c.sup.Go(name, fn)
}

// SuperviseRestart starts a long-running background task that self-heals on
// panic or unexpected exit via exponential backoff, rather than tearing the
// whole process down. The runtime-config watcher's own fsnotify loop already
// retries transient watch errors internally and never returns one; this
// layer only guards against an unrecovered panic escaping it.
func (c *Controller) SuperviseRestart(name string, fn func(ctx context.Context) error, opts ...RestartOption) {
	c.sup.GoRestart(name, fn, opts...)
}

// Shutdown drains the executor's in-flight batches and stops the scheduler,
// both bounded by ShutdownCeiling, then releases resources via closers in
// order. If the ceiling is exceeded, ForceShutdown clears the executor's
// in-flight table immediately rather than waiting further.
func (c *Controller) Shutdown(ctx context.Context, exec *executor.Service, sched *scheduler.Service, closers ...Closer) error {
	if _, err := daemon.SdNotify(false, daemon.SdNotifyStopping); err != nil {
		c.log.Debug("sd_notify stopping failed", logx.Err(err))
	}

	deadline := time.Now().Add(ShutdownCeiling)
	shutdownCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	var errs []error

	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("scheduler stop: %w", err))
		}
	}

	if exec != nil {
		if err := exec.Shutdown(shutdownCtx); err != nil {
			c.log.Warn("shutdown ceiling exceeded, forcing executor drain", logx.Err(err))
			exec.ForceShutdown()
			errs = append(errs, fmt.Errorf("executor shutdown: %w", err))
		}
	}

	c.sup.Cancel()
	if err := c.sup.Wait(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("supervisor wait: %w", err))
	}

	for _, cl := range closers {
		if err := cl.Close(); err != nil {
			c.log.Warn("resource close failed", logx.String("resource", cl.Name), logx.Err(err))
		}
	}

	return errors.Join(errs...)
}
