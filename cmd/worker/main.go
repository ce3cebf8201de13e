package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/opsbridge/relay/common/id"
	"github.com/opsbridge/relay/common/logger"
	"github.com/opsbridge/relay/core/config"
	"github.com/opsbridge/relay/core/db"
	"github.com/opsbridge/relay/internal/chat"
	"github.com/opsbridge/relay/internal/notify"
	"github.com/opsbridge/relay/internal/queue"
	"github.com/opsbridge/relay/internal/secrets"
	"github.com/opsbridge/relay/internal/service"
	"github.com/opsbridge/relay/internal/signature"
	"github.com/opsbridge/relay/internal/snow"
	"github.com/opsbridge/relay/internal/store"
	"github.com/opsbridge/relay/internal/worker"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeWorker)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	fmt.Printf("%s\n", banner)
	logger.Setup(cfg)

	slog.InfoContext(ctx, "relay worker starting",
		"env", cfg.Env,
		"consumer_group", cfg.Queue.Group,
		"consumer_name", cfg.Queue.Consumer)

	// Use a different node ID than the server
	if err := id.Init(2); err != nil {
		slog.ErrorContext(ctx, "failed to initialize id generator", "error", err)
		os.Exit(1)
	}

	redisOpts, err := redis.ParseURL(cfg.Queue.RedisURL)
	if err != nil {
		slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(redisOpts)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer redisClient.Close()
	slog.InfoContext(ctx, "redis connected", "stream", cfg.Queue.Stream)

	consumer, err := queue.NewRedisConsumer(redisClient, queue.ConsumerConfig{
		Stream:       cfg.Queue.Stream,
		Group:        cfg.Queue.Group,
		Consumer:     cfg.Queue.Consumer,
		DLQStream:    cfg.Queue.DLQStream,
		BatchSize:    10,
		Block:        5 * time.Second,
		MaxAttempts:  cfg.Queue.MaxAttempts,
		RequeueDelay: cfg.Queue.RequeueDelay,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create consumer", "error", err)
		os.Exit(1)
	}

	var audit *store.AuditStore
	if cfg.AuditEnabled() {
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()

		audit, err = store.NewAuditStore(ctx, database)
		if err != nil {
			slog.ErrorContext(ctx, "failed to initialize audit store", "error", err)
			os.Exit(1)
		}
		slog.InfoContext(ctx, "audit log enabled")
	}

	provider := secrets.NewCached(
		secrets.NewEnvProvider(cfg.Secrets.BundleEnv),
		cfg.Secrets.CacheTTL,
	)

	httpClient := &http.Client{Timeout: cfg.HTTP.Timeout}

	// The worker always delivers directly; queued mode only applies to
	// the webhook server's Accept path.
	forward := service.NewForwardService(
		provider,
		queue.NewRedisProducer(redisClient, cfg.Queue.Stream, nil),
		notify.NewNormalizer(),
		notify.NewDeliverer(httpClient, signature.Sign),
		audit,
		config.ForwardModeDirect,
		nil,
	)

	processor := worker.NewProcessor(
		provider,
		func(b secrets.Bundle) worker.TicketClient {
			return snow.NewClient(b.SNInstance, b.SNUser, b.SNPass, httpClient)
		},
		chat.NewResponder(httpClient),
		forward,
		audit,
		30*time.Second,
		nil,
	)

	w := worker.New(consumer, processor, worker.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
	})

	reclaimer := worker.NewReclaimer(redisClient, worker.ReclaimerConfig{
		Stream:    cfg.Queue.Stream,
		Group:     cfg.Queue.Group,
		Consumer:  cfg.Queue.Consumer + "-reclaimer",
		MinIdle:   5 * time.Minute,
		Interval:  1 * time.Minute,
		BatchSize: 10,
	}, consumer, w.ProcessMessage)

	errCh := make(chan error, 2)
	go func() {
		errCh <- w.Run(ctx)
	}()
	go func() {
		reclaimer.Run(ctx)
		errCh <- nil
	}()

	slog.InfoContext(ctx, "worker initialized and running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.InfoContext(ctx, "shutting down worker...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop reclaimer first (quick)
	reclaimer.Stop()

	// Stop worker (may be processing)
	w.Stop()

	select {
	case <-shutdownCtx.Done():
		slog.WarnContext(ctx, "shutdown timeout exceeded")
	case err := <-errCh:
		if err != nil {
			slog.ErrorContext(ctx, "worker error during shutdown", "error", err)
		}
	}

	slog.InfoContext(ctx, "worker shutdown complete")
}

const banner = `
██████╗ ███████╗██╗      █████╗ ██╗   ██╗
██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
██████╔╝█████╗  ██║     ███████║ ╚████╔╝
██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
██║  ██║███████╗███████╗██║  ██║   ██║
╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`
