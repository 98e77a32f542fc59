package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"employee_directory/internal/broker"
	"employee_directory/internal/config"
	"employee_directory/internal/handler"
	"employee_directory/internal/metrics"
	"employee_directory/internal/middleware"
	"employee_directory/internal/repository"
	"employee_directory/internal/service"
	"employee_directory/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	appLogger := logger.New(cfg.Log.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPool, err := newPool(ctx, cfg.Database)
	if err != nil {
		appLogger.Fatal("Failed to connect to database", "error", err)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(ctx); err != nil {
		appLogger.Fatal("Failed to ping database", "error", err)
	}
	appLogger.Info("Database connection established")

	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, dbPool, appLogger); err != nil {
			appLogger.Fatal("Failed to run migrations", "error", err)
		}
	}

	// Without Redis the node runs alone: in-process fan-out and no rate limits.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
	}

	var relay broker.Broker
	if rdb != nil {
		relay = broker.NewRedis(rdb, appLogger)
	} else {
		relay = broker.NewLocal(appLogger)
	}
	defer relay.Close()

	m := metrics.New()
	repos := repository.NewRepositories(dbPool, rdb, appLogger)
	services := service.NewServices(repos, cfg, m, appLogger)

	authMiddleware := middleware.NewAuthMiddleware(services.Auth, appLogger)
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(services.RateLimit, appLogger)

	handlers := handler.NewHandlers(services, relay, dbPool, cfg, m, appLogger)
	router := handler.NewRouter(handlers, authMiddleware, rateLimitMiddleware, cfg, m, appLogger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		appLogger.Info("Starting server", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return handlers.WebSocket.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		appLogger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		appLogger.Error("Server stopped with error", "error", err)
	}
	appLogger.Info("Server exited")
}

func newPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = int32(cfg.MaxConnections)
	poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	return pgxpool.NewWithConfig(ctx, poolCfg)
}
