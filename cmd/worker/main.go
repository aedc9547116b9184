// Package main provides the background workers that execute outbox jobs
// against the external networks.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/rueidis"

	"github.com/agencydesk/contentflow/internal/config"
	"github.com/agencydesk/contentflow/internal/dispatcher"
	"github.com/agencydesk/contentflow/internal/logger"
	"github.com/agencydesk/contentflow/internal/model"
	"github.com/agencydesk/contentflow/internal/network"
	"github.com/agencydesk/contentflow/internal/queue"
	"github.com/agencydesk/contentflow/internal/repository"
	"github.com/agencydesk/contentflow/internal/worker"
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
		slog.Info("shutdown signal received, stopping workers")
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

	loggerInstance := logger.Setup(cfg.LogLevel, cfg.LogFormat, "worker")
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
	networkClient := network.NewLogClient(loggerInstance)

	// The workflow service doubles as the publish completer: a successful
	// publish job reports back through it to flip scheduled -> published.
	workflowSvc := workflow.NewServiceImpl(
		contentRepo, channelRepo, commentRepo, auditRepo, notificationRepo,
		transactionMgr, jobDispatcher, allowAllModules{}, loggerInstance,
	)

	handlers := worker.NewHandlers(outboxRepo, channelRepo, workflowSvc, networkClient, jobQueue, loggerInstance)

	ctx, cancel := setupSignalHandling()
	defer cancel()

	jobTypes := []model.JobType{
		model.JobTypePublish,
		model.JobTypeDeleteRemote,
		model.JobTypeSyncComments,
	}

	var wg sync.WaitGroup

	// One consumer per queue: bounded concurrency of one in-flight job per
	// job type in this process.
	for _, jobType := range jobTypes {
		consumer := worker.NewConsumer(redisClient, handlers, jobType, cfg.WorkerName, loggerInstance)
		consumer.EnsureGroup(ctx)

		wg.Add(1)

		go func() {
			defer wg.Done()
			consumer.Run(ctx)
		}()
	}

	slog.Info("workers started", slog.String("consumer", cfg.WorkerName))
	wg.Wait()
}
