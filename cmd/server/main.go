// Package main is the entry point for the marketplace API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"marketplace/internal/app"
	"marketplace/internal/config"
	"marketplace/internal/domain/auth"
	"marketplace/internal/infrastructure/broadcast"
	v1 "marketplace/internal/infrastructure/http/v1"
	"marketplace/internal/infrastructure/http/v1/handlers"
	"marketplace/internal/infrastructure/http/v1/middleware"
	"marketplace/internal/infrastructure/payment"
	"marketplace/internal/infrastructure/storage/memory"
	"marketplace/internal/infrastructure/storage/postgres"
	"marketplace/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "marketplace-api",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Infow("starting marketplace server", "storage", cfg.Storage)

	checks := map[string]handlers.Pinger{}
	var (
		stores      app.Stores
		idempotency middleware.IdempotencyStore
	)

	// --- Storage ---
	switch cfg.Storage {
	case config.StoragePostgres:
		pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL, int32(cfg.DBMaxConns)))
		if err != nil {
			log.Fatalw("failed to connect to database", "error", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(ctx, pool); err != nil {
			log.Fatalw("failed to apply migrations", "error", err)
		}

		txm := postgres.NewTxManager(pool)
		stores, err = app.PostgresStores(txm)
		if err != nil {
			log.Fatalw("failed to wire stores", "error", err)
		}
		if cfg.IdempotencyEnabled {
			idempotency = postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)
		}
		checks["database"] = txm
		log.Info("database connection established")

	case config.StorageMemory:
		stores = app.MemoryStores(memory.New())
		log.Warn("using in-memory storage; data is lost on exit")
	}

	// --- Integrations ---
	gateway, err := payment.NewRedirectGateway(cfg.PaymentGatewayURL, cfg.PaymentReturnURL)
	if err != nil {
		log.Fatalw("invalid payment gateway config", "error", err)
	}
	integrations := app.Integrations{
		Gateway:        gateway,
		RefundProvider: payment.ManualRefunds{},
		PaymentTTL:     cfg.PaymentContextTTL,
	}

	if cfg.RedisAddr != "" {
		rdb, err := broadcast.NewClient(ctx, cfg.RedisAddr)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer rdb.Close()

		broadcaster := broadcast.NewRedisBroadcaster(rdb, cfg.RedisChannelPrefix, 0)
		defer broadcaster.Close()

		integrations.Broadcaster = broadcaster
		integrations.Deduper = broadcast.NewRedisDeduper(rdb, cfg.RedisChannelPrefix, 0)
		checks["redis"] = redisPing(rdb)
		log.Infow("redis connected", "addr", cfg.RedisAddr)
	}

	services := app.NewServices(stores, integrations)

	// The worker owns these loops for PostgreSQL; memory state lives only here.
	jobsDone := make(chan struct{})
	if cfg.Storage == config.StorageMemory {
		go func() {
			defer close(jobsDone)
			app.RunJobs(ctx, log,
				app.Job{Name: "payment-reaper", Interval: cfg.ReaperInterval, Run: func(ctx context.Context) (int, error) {
					return services.Orders.ReapExpiredPayments(ctx, 100)
				}},
				app.Job{Name: "refund-queue", Interval: cfg.RefundInterval, Run: func(ctx context.Context) (int, error) {
					return services.Orders.ProcessRefunds(ctx, 50)
				}},
			)
		}()
	} else {
		close(jobsDone)
	}

	// --- JWT Service ---
	jwtService, err := auth.NewJWTService(auth.DefaultJWTConfig(cfg.JWTSecret))
	if err != nil {
		log.Fatalw("failed to create jwt service", "error", err)
	}

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Services:     services,
		Logger:       log,
		JWTValidator: jwtService,
		Idempotency:  idempotency,
		HealthChecks: checks,
		Debug:        cfg.IsDevelopment(),
	})

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}
	// jobs publish stock notifications; the broadcaster closes after them
	<-jobsDone

	log.Info("server stopped")
}

func redisPing(rdb *redis.Client) handlers.Pinger {
	return handlers.PingFunc(func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
}
