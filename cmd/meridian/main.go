package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/directory"
	"github.com/meridian-erp/meridian-erp/internal/hierarchy"
	"github.com/meridian-erp/meridian-erp/internal/identity"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/permissions"
	"github.com/meridian-erp/meridian-erp/internal/platform/cache"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = redisClient.Close() }()

	metrics := observability.NewMetrics()
	sessions := shared.NewSessionManager(redisClient, "meridian_session", cfg.SessionTTL, cfg.IsProduction())
	audit := shared.NewAuditLogger(pool)

	identityRepo := identity.NewRepository(pool)
	identityService := identity.NewService(identityRepo)

	permCache := permissions.NewCache(redisClient, cfg.PermCacheTTL)
	permRepo := permissions.NewRepository(pool)
	permService := permissions.NewService(permRepo, identityService, permCache, audit, metrics, logger)
	permMiddleware := permissions.Middleware{Service: permService, Logger: logger}

	hierarchyRepo := hierarchy.NewRepository(pool)
	hierarchyService := hierarchy.NewService(hierarchyRepo, identityService, audit, metrics, logger)

	directoryService := directory.NewService(directory.NewRepository(pool))

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		SessionManager:     sessions,
		SessionHandler:     identity.NewHandler(logger, identityService),
		PermissionsHandler: permissions.NewHandler(logger, permService, permMiddleware),
		HierarchyHandler:   hierarchy.NewHandler(logger, hierarchyService, permMiddleware),
		DirectoryHandler:   directory.NewHandler(logger, directoryService, permMiddleware),
		Metrics:            metrics,
	})

	if err := app.RunServer(ctx, cfg, logger, router); err != nil {
		logger.Error("server exited", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("server stopped")
}
