package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/app"
	jobmetrics "github.com/serviceline/serviceline/internal/jobs"
	"github.com/serviceline/serviceline/internal/performance"
	"github.com/serviceline/serviceline/internal/platform/cache"
	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
	"github.com/serviceline/serviceline/internal/targets"
	"github.com/serviceline/serviceline/internal/uploads"
	"github.com/serviceline/serviceline/internal/users"
	"github.com/serviceline/serviceline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	queue, err := jobs.NewClient(cache.QueueOpt(cfg.RedisAddr))
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.Warn("queue close", slog.Any("error", err))
		}
	}()

	dashboardCache := performance.NewCache(redisClient, cfg.CacheTTL, cfg.CacheStaleAfter, logger)
	auditLogger := shared.NewAuditLogger(pool)
	recordsRepo := records.NewRepository(pool)
	targetsService := targets.NewService(targets.NewRepository(pool), recordsRepo, dashboardCache, auditLogger, logger)

	handlers := &jobs.Jobs{
		Uploads: uploads.NewService(uploads.NewRepository(pool), queue, dashboardCache, auditLogger, logger, uploads.Options{
			Dir:      cfg.UploadDir,
			MaxBytes: cfg.UploadMaxBytes,
		}),
		Rematcher: performance.NewService(recordsRepo, targetsService, dashboardCache),
		Reconciler: advisors.NewService(
			recordsRepo,
			users.NewService(users.NewRepository(pool)),
			advisors.NewRepository(pool),
			dashboardCache,
			auditLogger,
			logger,
		),
		Logger:  logger,
		Metrics: jobmetrics.NewMetrics(nil),
	}

	backfillTask, err := jobs.NewAdvisorBackfillTask(true)
	if err != nil {
		logger.Error("build backfill task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   cache.QueueOpt(cfg.RedisAddr),
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers:    handlers.Handlers(),
		Cron: []jobs.CronRegistration{
			{Spec: cfg.BackfillCron, Task: backfillTask, Options: []asynq.Option{asynq.MaxRetry(2)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting worker", slog.String("backfill_cron", cfg.BackfillCron))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
