// Package main is the entry point for the marketplace background worker.
// It drains the outbox to Kafka, expires unpaid orders, submits queued
// refunds and prunes idempotency keys.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"marketplace/internal/app"
	"marketplace/internal/config"
	"marketplace/internal/core/outbox"
	"marketplace/internal/infrastructure/messaging"
	"marketplace/internal/infrastructure/payment"
	"marketplace/internal/infrastructure/storage/postgres"
	"marketplace/pkg/logger"
)

const (
	reaperBatch = 100
	refundBatch = 50
	outboxBatch = 100

	// Published outbox rows are kept this long for inspection.
	outboxRetention = 7 * 24 * time.Hour
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage != config.StoragePostgres {
		fmt.Println("worker requires STORAGE=postgres")
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
		Service:     "marketplace-worker",
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.SetDefault(log)
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting marketplace worker")

	pool, err := postgres.NewPool(ctx, postgres.DefaultPoolConfig(cfg.DatabaseURL, int32(cfg.DBMaxConns)))
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	txm := postgres.NewTxManager(pool)
	stores, err := app.PostgresStores(txm)
	if err != nil {
		log.Fatalw("failed to wire stores", "error", err)
	}

	gateway, err := payment.NewRedirectGateway(cfg.PaymentGatewayURL, cfg.PaymentReturnURL)
	if err != nil {
		log.Fatalw("invalid payment gateway config", "error", err)
	}
	services := app.NewServices(stores, app.Integrations{
		Gateway:        gateway,
		RefundProvider: payment.ManualRefunds{},
		PaymentTTL:     cfg.PaymentContextTTL,
	})

	// --- Outbox delivery ---
	var handler outbox.Handler = messaging.LogHandler{Log: logger.Info}
	if len(cfg.KafkaBrokers) > 0 {
		kh := messaging.NewKafkaHandler(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic))
		defer func() {
			if err := kh.Close(); err != nil {
				log.Warnw("kafka writer close failed", "error", err)
			}
		}()
		handler = kh
		log.Infow("outbox relay publishing to kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	} else {
		log.Warn("KAFKA_BROKERS not set; outbox events are only logged")
	}
	relay := postgres.NewOutboxRelay(txm, outboxBatch, handler)
	idempotency := postgres.NewIdempotencyStore(txm, cfg.IdempotencyTTL)

	app.RunJobs(ctx, log,
		app.Job{Name: "outbox-relay", Interval: cfg.OutboxInterval, Run: relay.ProcessBatch},
		app.Job{Name: "outbox-maintenance", Interval: time.Hour, Run: func(ctx context.Context) (int, error) {
			moved, err := relay.MoveToDLQ(ctx)
			if err != nil {
				return 0, err
			}
			purged, err := relay.PurgePublished(ctx, time.Now().Add(-outboxRetention))
			return int(moved + purged), err
		}},
		app.Job{Name: "payment-reaper", Interval: cfg.ReaperInterval, Run: func(ctx context.Context) (int, error) {
			return services.Orders.ReapExpiredPayments(ctx, reaperBatch)
		}},
		app.Job{Name: "refund-queue", Interval: cfg.RefundInterval, Run: func(ctx context.Context) (int, error) {
			return services.Orders.ProcessRefunds(ctx, refundBatch)
		}},
		app.Job{Name: "idempotency-cleanup", Interval: time.Hour, Run: func(ctx context.Context) (int, error) {
			n, err := idempotency.CleanupExpired(ctx)
			return int(n), err
		}},
	)

	log.Info("worker stopped")
}
