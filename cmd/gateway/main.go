package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/api/client"
	httptransport "github.com/spec-kit/freight-session/internal/api/http"
	"github.com/spec-kit/freight-session/internal/api/http/handlers"
	"github.com/spec-kit/freight-session/internal/config"
	"github.com/spec-kit/freight-session/internal/events"
	"github.com/spec-kit/freight-session/internal/observability"
	"github.com/spec-kit/freight-session/internal/persistence"
	"github.com/spec-kit/freight-session/internal/service"
	"github.com/spec-kit/freight-session/internal/session"
	"github.com/spec-kit/freight-session/internal/worker"
)

// durableStore is a storage scope that can also answer readiness probes.
type durableStore interface {
	session.Storage
	handlers.Pinger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	durable, closeStore := openDurableStore(ctx, cfg, logger)
	defer closeStore()

	apiClient := client.New(cfg.API.BaseURL, cfg.API.Timeout())
	metrics := observability.NewMetrics()

	dispatcher := events.NewInMemoryDispatcher()
	service.NewSessionEventService(dispatcher, logger, metrics).RegisterHandlers()

	sessions := session.NewManager(cfg.Session, session.Dependencies{
		Durable:    durable,
		Ephemeral:  persistence.NewMemoryStore(),
		Remote:     apiClient,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	defer sessions.Close()

	authService := service.NewAuthService(service.AuthDependencies{
		API:      apiClient,
		Sessions: sessions,
	})

	sweeper := worker.NewSweeper(sessions, cfg.Session.SweepInterval(), logger)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthHandler := handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, map[string]handlers.Pinger{
		"durable": durable,
		"api":     apiClient,
	}, metrics)

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  healthHandler,
		Session: handlers.NewSessionHandler(authService),
		Proxy:   handlers.NewProxyHandler(sessions, apiClient.BaseURL(), logger),
	})

	go func() {
		logger.Info("session gateway listening",
			zap.String("addr", cfg.App.Addr()),
			zap.String("durable_backend", cfg.Session.DurableBackend),
			zap.String("api", apiClient.BaseURL()),
		)
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	_ = app.Shutdown()
}

// openDurableStore selects the backend that keeps remembered sessions.
func openDurableStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (durableStore, func()) {
	switch cfg.Session.DurableBackend {
	case config.BackendPostgres:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return persistence.NewPostgresStore(pg.PoolHandle()), pg.Close
	case config.BackendMemory:
		logger.Warn("durable scope is in-memory; remembered sessions will not survive a restart")
		return persistence.NewMemoryStore(), func() {}
	default:
		redis := persistence.NewRedis(cfg.Redis, logger)
		return persistence.NewRedisStore(redis), redis.Close
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
