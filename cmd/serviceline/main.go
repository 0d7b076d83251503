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

	"github.com/serviceline/serviceline/internal/advisors"
	"github.com/serviceline/serviceline/internal/app"
	"github.com/serviceline/serviceline/internal/audit"
	"github.com/serviceline/serviceline/internal/auth"
	"github.com/serviceline/serviceline/internal/observability"
	"github.com/serviceline/serviceline/internal/performance"
	"github.com/serviceline/serviceline/internal/platform/cache"
	"github.com/serviceline/serviceline/internal/platform/db"
	"github.com/serviceline/serviceline/internal/rbac"
	"github.com/serviceline/serviceline/internal/records"
	"github.com/serviceline/serviceline/internal/shared"
	"github.com/serviceline/serviceline/internal/targets"
	"github.com/serviceline/serviceline/internal/uploads"
	"github.com/serviceline/serviceline/internal/users"
	"github.com/serviceline/serviceline/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		os.Exit(1)
	}
	for _, name := range applied {
		logger.Info("migration applied", slog.String("name", name))
	}

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

	inspector := asynq.NewInspector(cache.QueueOpt(cfg.RedisAddr))
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	dashboardCache := performance.NewCache(redisClient, cfg.CacheTTL, cfg.CacheStaleAfter, logger).WithObserver(metrics.CacheLookup)
	if err := dashboardCache.ListenForInvalidation(ctx, ""); err != nil {
		logger.Warn("cache invalidation listener", slog.Any("error", err))
	}

	tokens := auth.NewTokens(cfg.JWTSecret, cfg.JWTTTL)
	auditLogger := shared.NewAuditLogger(pool)
	rbacMiddleware := rbac.Middleware{Logger: logger}

	authService := auth.NewService(auth.NewRepository(pool), tokens)
	usersRepo := users.NewRepository(pool)
	usersService := users.NewService(usersRepo)
	recordsRepo := records.NewRepository(pool)

	targetsService := targets.NewService(targets.NewRepository(pool), recordsRepo, dashboardCache, auditLogger, logger)
	dashboardService := performance.NewService(recordsRepo, targetsService, dashboardCache)
	uploadsService := uploads.NewService(uploads.NewRepository(pool), queue, dashboardCache, auditLogger, logger, uploads.Options{
		Dir:      cfg.UploadDir,
		MaxBytes: cfg.UploadMaxBytes,
	})
	advisorsService := advisors.NewService(recordsRepo, usersService, advisors.NewRepository(pool), dashboardCache, auditLogger, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:         logger,
		Config:         cfg,
		Tokens:         tokens,
		RBACMiddleware: rbacMiddleware,
		Metrics:        metrics,
		Health: []app.HealthCheck{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		},
		AuthHandler:      auth.NewHandler(logger, authService),
		UsersHandler:     users.NewHandler(logger, usersService, rbacMiddleware),
		RecordsHandler:   records.NewHandler(logger, recordsRepo),
		DashboardHandler: performance.NewHandler(logger, dashboardService),
		TargetsHandler:   targets.NewHandler(logger, targetsService, rbacMiddleware),
		UploadsHandler:   uploads.NewHandler(logger, uploadsService, rbacMiddleware, cfg.UploadMaxBytes),
		AdvisorsHandler:  advisors.NewHandler(logger, advisorsService, rbacMiddleware),
		AuditHandler:     audit.NewHandler(logger, audit.NewService(audit.NewRepository(pool)), rbacMiddleware),
		JobHandler:       jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
