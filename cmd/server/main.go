// Command server runs the lawcast-backend notification-dispatch service:
// it crawls the upstream legislative-notice index on a schedule, fans new
// notices out to registered Discord-compatible webhooks, and serves the
// JSON HTTP surface subscribers use to register and inspect the pipeline.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vientofactory/lawcast-backend/internal/alert"
	"github.com/vientofactory/lawcast-backend/internal/api"
	"github.com/vientofactory/lawcast-backend/internal/cache"
	"github.com/vientofactory/lawcast-backend/internal/config"
	"github.com/vientofactory/lawcast-backend/internal/crawl"
	"github.com/vientofactory/lawcast-backend/internal/crawler"
	"github.com/vientofactory/lawcast-backend/internal/delivery"
	"github.com/vientofactory/lawcast-backend/internal/dispatch"
	"github.com/vientofactory/lawcast-backend/internal/executor"
	"github.com/vientofactory/lawcast-backend/internal/health"
	"github.com/vientofactory/lawcast-backend/internal/lifecycle"
	"github.com/vientofactory/lawcast-backend/internal/ratelimit"
	"github.com/vientofactory/lawcast-backend/internal/scheduler"
	"github.com/vientofactory/lawcast-backend/internal/store"
	"github.com/vientofactory/lawcast-backend/internal/verify"
	"github.com/vientofactory/lawcast-backend/pkg/logx"
)

// noticeIndexURL is the upstream legislative-notice index the crawler
// scrapes. Fixed per the external interface: the spec names no override
// variable for it.
const noticeIndexURL = "https://www.assembly.go.kr/portal/bill/billList.do"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	env, err := config.LoadEnv()
	if err != nil {
		return fmt.Errorf("load env: %w", err)
	}

	runtimeCfg := config.NewRuntimeManager(os.Getenv("RUNTIME_CONFIG_PATH"), logx.NewConsole("info"))
	rt, err := runtimeCfg.Load()
	if err != nil {
		return fmt.Errorf("load runtime config: %w", err)
	}

	var sink logx.AlertSink
	deliveryClient := delivery.New(logx.Nop())
	if env.AlertWebhookURL != "" {
		sink = alert.NewDiscordSink(env.AlertWebhookURL, deliveryClient)
	}
	logSvc, log := logx.New(logx.Config{
		Level:   levelForEnv(env.NodeEnv),
		Console: true,
		Alert:   logx.AlertConfig{Enabled: env.AlertWebhookURL != "", MinLevel: "warn", RatePerSec: 1},
	}, sink)
	defer logSvc.Close()
	deliveryClient = delivery.New(log)

	controller := lifecycle.NewController(ctx, log)

	var (
		db          *sql.DB
		repo        store.Repository
		cacheSvc    cache.Cache
		limiter     *ratelimit.Limiter
		execSvc     *executor.Service
		sched       *scheduler.Service
		coordinator *dispatch.Coordinator
		crawlSvc    *crawl.Service
		healthMon   *health.Monitor
	)

	startupErr := controller.Startup(ctx,
		lifecycle.Step{Name: "open database", Run: func(ctx context.Context) error {
			sqlDB, err := store.OpenDB(store.Config{Path: env.DatabasePath, BusyTimeout: 5 * time.Second})
			if err != nil {
				return err
			}
			db = sqlDB
			r, err := store.NewRepository(db, log)
			if err != nil {
				return err
			}
			repo = r
			return nil
		}},
		lifecycle.Step{Name: "warm cache", Run: func(ctx context.Context) error {
			c, err := cache.New(db, log)
			if err != nil {
				return err
			}
			cacheSvc = c
			return nil
		}},
		lifecycle.Step{Name: "ready rate limiter", Run: func(ctx context.Context) error {
			l, err := ratelimit.New(db, log, ratelimit.Limits{
				GlobalPerSecond:     rt.RateLimit.GlobalPerSecond,
				PerWebhookPerMinute: rt.RateLimit.PerWebhookPerMinute,
			})
			if err != nil {
				return err
			}
			limiter = l
			return nil
		}},
		lifecycle.Step{Name: "ready executor", Run: func(ctx context.Context) error {
			execSvc = executor.New(log)
			return nil
		}},
		lifecycle.Step{Name: "wire dispatch coordinator", Run: func(ctx context.Context) error {
			coordinator = dispatch.New(repo, execSvc, deliveryClient, limiter, log)
			return nil
		}},
		lifecycle.Step{Name: "prime notice cache", Run: func(ctx context.Context) error {
			dispatchOpts, err := executorOptionsFromRuntime(rt.Executor)
			if err != nil {
				return err
			}
			crawlerImpl := crawler.New(noticeIndexURL, log)
			crawlSvc = crawl.New(crawlerImpl, cacheSvc, coordinator, log, dispatchOpts)
			return crawlSvc.InitializeCache(ctx)
		}},
		lifecycle.Step{Name: "arm schedulers", Run: func(ctx context.Context) error {
			sched = scheduler.New(scheduler.Config{
				Enabled:  true,
				Workers:  rt.Executor.Concurrency,
				Timezone: env.CronTimezone,
			}, log)
			healthCfg, err := healthConfigFromRuntime(rt.Health)
			if err != nil {
				return err
			}
			healthMon = health.New(repo, log, healthCfg)
			if err := crawlSvc.Register(sched); err != nil {
				return err
			}
			if err := healthMon.Register(sched); err != nil {
				return err
			}
			sched.Start(ctx)
			return nil
		}},
	)
	if startupErr != nil {
		return startupErr
	}

	verifier := verify.NewRecaptchaOracle(env.RecaptchaSecretKey, log)
	handler := api.NewHandler(repo, cacheSvc, verifier, deliveryClient, execSvc, sched, controller, log)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(corsMiddleware(env.FrontendOrigins))
	api.RegisterRoutes(r, handler)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", env.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	controller.Supervise("http-server", func(ctx context.Context) error {
		log.Info("http server listening", logx.Int("port", env.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	controller.SuperviseRestart("runtime-config-watch", func(ctx context.Context) error {
		return runtimeCfg.Watch(ctx)
	}, lifecycle.WithRestartBackoff(500*time.Millisecond, 10*time.Second), lifecycle.WithPublishFirstError(true))

	controller.Supervise("runtime-config-apply", func(ctx context.Context) error {
		return applyRuntimeUpdates(ctx, runtimeCfg, limiter, healthMon, crawlSvc, log)
	})

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case <-controller.Context().Done():
		log.Warn("supervised goroutine failed, shutting down", logx.Err(controller.Err()))
	}

	return controller.Shutdown(context.Background(), execSvc, sched,
		lifecycle.Closer{Name: "http server", Close: func() error {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		}},
		lifecycle.Closer{Name: "database", Close: func() error {
			if db == nil {
				return nil
			}
			return db.Close()
		}},
	)
}

// executorOptionsFromRuntime translates a runtime-config executor section
// into the executor package's own options type. The runtime manager already
// validated the duration strings before committing or publishing e, so a
// parse error here would only surface a bug in that validation.
func executorOptionsFromRuntime(e config.ExecutorRuntime) (executor.Options, error) {
	timeout, err := e.ParseTimeout()
	if err != nil {
		return executor.Options{}, err
	}
	retryDelay, err := e.ParseRetryDelay()
	if err != nil {
		return executor.Options{}, err
	}
	return executor.Options{
		Concurrency: e.Concurrency,
		Timeout:     timeout,
		RetryCount:  e.RetryCount,
		RetryDelay:  retryDelay,
		BatchSize:   e.BatchSize,
	}, nil
}

// healthConfigFromRuntime translates a runtime-config health section into
// the health package's own config type.
func healthConfigFromRuntime(h config.HealthRuntime) (health.Config, error) {
	dailyAge, err := h.ParseDailyAgeThreshold()
	if err != nil {
		return health.Config{}, err
	}
	degradedAge, err := h.ParseDailyDegradedAge()
	if err != nil {
		return health.Config{}, err
	}
	staleAge, err := h.ParseHourlyStaleAge()
	if err != nil {
		return health.Config{}, err
	}
	return health.Config{
		DailyAgeThreshold:         dailyAge,
		DailyDegradedAge:          degradedAge,
		DailyDegradedEfficiency:   h.DailyDegradedEfficiency,
		DailyCriticalEfficiency:   h.DailyCriticalEfficiency,
		WeeklyEfficiencyThreshold: h.WeeklyEfficiencyThreshold,
		WeeklyWarnTotal:           h.WeeklyWarnTotal,
		HourlyEmergencyEfficiency: h.HourlyEmergencyEfficiency,
		HourlyEmergencyTotal:      h.HourlyEmergencyTotal,
		HourlyOldInactiveMin:      h.HourlyOldInactiveMin,
		HourlyStaleAge:            staleAge,
	}, nil
}

// applyRuntimeUpdates subscribes to the runtime config's live updates and
// fans each change out to the rate limiter, health monitor, and crawl
// scheduler, which is how 4.C/4.E/4.H's constants are actually served live
// rather than only at process startup. It returns when ctx is cancelled.
func applyRuntimeUpdates(ctx context.Context, mgr *config.RuntimeManager, limiter *ratelimit.Limiter, healthMon *health.Monitor, crawlSvc *crawl.Service, log logx.Logger) error {
	ch := mgr.Subscribe(1)
	defer mgr.Unsubscribe(ch)

	prev := mgr.Get()
	for {
		select {
		case <-ctx.Done():
			return nil
		case cfg, ok := <-ch:
			if !ok {
				return nil
			}
			changed, attrs := config.SummarizeRuntimeChange(prev, cfg)
			prev = cfg
			if len(changed) == 0 {
				continue
			}

			limiter.SetLimits(ratelimit.Limits{
				GlobalPerSecond:     cfg.RateLimit.GlobalPerSecond,
				PerWebhookPerMinute: cfg.RateLimit.PerWebhookPerMinute,
			})
			if healthCfg, err := healthConfigFromRuntime(cfg.Health); err != nil {
				log.Warn("runtime config: health section rejected, keeping previous thresholds", logx.Err(err))
			} else {
				healthMon.SetConfig(healthCfg)
			}
			if dispatchOpts, err := executorOptionsFromRuntime(cfg.Executor); err != nil {
				log.Warn("runtime config: executor section rejected, keeping previous options", logx.Err(err))
			} else {
				crawlSvc.SetDispatchOptions(dispatchOpts)
			}

			fields := append([]logx.Field{logx.Any("changed", changed)}, attrs...)
			log.Info("runtime config applied", fields...)
		}
	}
}

func levelForEnv(nodeEnv string) string {
	if nodeEnv == "production" {
		return "info"
	}
	return "debug"
}

func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			origin := req.Header.Get("Origin")
			if origin != "" && (len(allowed) == 0 || allowed[origin]) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
			if req.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}
