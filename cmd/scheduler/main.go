// Package main provides the scheduler: it promotes delayed retries, fires
// publishes whose scheduled time has arrived, and relays outbox rows whose
// queue submission was lost.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"
	"github.com/robfig/cron/v3"

	"github.com/agencydesk/contentflow/internal/config"
	"github.com/agencydesk/contentflow/internal/dispatcher"
	"github.com/agencydesk/contentflow/internal/logger"
	"github.com/agencydesk/contentflow/internal/queue"
	"github.com/agencydesk/contentflow/internal/repository"
	"github.com/agencydesk/contentflow/internal/workflow"
)

const (
	signalBufferSize = 1
	exitCode         = 1
)

// allowAllModules stands in for the platform's feature-flag service.
type allowAllModules struct{}

func (allowAllModules) HasModule(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func setupSignalHandling() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, signalBufferSize)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("shutdown signal received, stopping scheduler")
		cancel()
	}()

	return ctx, cancel
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat, "scheduler")
	slog.SetDefault(loggerInstance)

	dbPool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer dbPool.Close()

	redisClient, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress: []string{cfg.RedisAddr},
	})
	if err != nil {
		slog.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}
	defer redisClient.Close()

	contentRepo := repository.NewContentRepositoryImpl(dbPool)
	channelRepo := repository.NewChannelRepositoryImpl(dbPool)
	commentRepo := repository.NewCommentRepositoryImpl(dbPool)
	auditRepo := repository.NewAuditRepositoryImpl(dbPool)
	notificationRepo := repository.NewNotificationRepositoryImpl(dbPool)
	outboxRepo := repository.NewOutboxRepositoryImpl(dbPool)
	transactionMgr := repository.NewTransactionManagerImpl(dbPool)

	jobQueue := queue.NewRedisQueue(redisClient)
	jobDispatcher := dispatcher.NewDispatcher(outboxRepo, auditRepo, jobQueue, loggerInstance)

	workflowSvc := workflow.NewServiceImpl(
		contentRepo, channelRepo, commentRepo, auditRepo, notificationRepo,
		transactionMgr, jobDispatcher, allowAllModules{}, loggerInstance,
	)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	c := cron.New()

	if _, err := c.AddFunc(cfg.DelayedMoveSpec, func() {
		moved, err := jobQueue.MoveDue(ctx, time.Now())
		if err != nil {
			slog.Error("failed to promote delayed jobs", slog.String("error", err.Error()))

			return
		}

		if moved > 0 {
			slog.Info("promoted delayed jobs", slog.Int("count", moved))
		}
	}); err != nil {
		slog.Error("invalid delayed move spec", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	if _, err := c.AddFunc(cfg.DuePublishSpec, func() {
		dispatched, err := workflowSvc.EnqueueDuePublishes(ctx, time.Now(), cfg.DuePublishLimit)
		if err != nil {
			slog.Error("failed to enqueue due publishes", slog.String("error", err.Error()))

			return
		}

		if dispatched > 0 {
			slog.Info("dispatched due publishes", slog.Int("count", dispatched))
		}
	}); err != nil {
		slog.Error("invalid due publish spec", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	if _, err := c.AddFunc(cfg.OutboxRelaySpec, func() {
		relayed, err := jobDispatcher.Relay(ctx, cfg.RelayAge, cfg.RelayBatchSize)
		if err != nil {
			slog.Error("failed to relay outbox rows", slog.String("error", err.Error()))

			return
		}

		if relayed > 0 {
			slog.Info("relayed unsubmitted outbox rows", slog.Int("count", relayed))
		}
	}); err != nil {
		slog.Error("invalid relay spec", slog.String("error", err.Error()))
		os.Exit(exitCode)
	}

	slog.Info("scheduler started",
		slog.String("due_publish", cfg.DuePublishSpec),
		slog.String("delayed_move", cfg.DelayedMoveSpec),
		slog.String("outbox_relay", cfg.OutboxRelaySpec),
	)

	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()

	slog.Info("scheduler stopped")
}
