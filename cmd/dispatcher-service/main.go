package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/insightq/analysis-jobs/internal/analysis"
	"github.com/insightq/analysis-jobs/internal/config"
	"github.com/insightq/analysis-jobs/internal/dispatch"
	"github.com/insightq/analysis-jobs/internal/queue"
	"github.com/insightq/analysis-jobs/internal/status"
	"github.com/insightq/analysis-jobs/internal/store"
	"github.com/insightq/analysis-jobs/shared/logger"
	"github.com/insightq/analysis-jobs/shared/postgresql"
	"github.com/insightq/analysis-jobs/shared/rabbitmq"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables or flags")
	}

	defaultConfigPath := os.Getenv("DISPATCHER_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/dispatcher-service/config.yaml"
	}
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateDispatcherConfig(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	secrets, err := config.LoadSecrets()
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}

	appLogger := logger.New(&logger.Config{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		EnableSource: cfg.Logging.EnableCaller,
		TimeFormat:   time.RFC3339,
	})

	appLogger.Info("Starting dispatcher service",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
		slog.String("environment", cfg.App.Environment),
	)

	dbClient, err := postgresql.NewClient(&postgresql.Config{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        secrets.DBPassword,
		Database:        cfg.Database.Database,
		SSLMode:         cfg.Database.SSLMode,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
		MigrationsPath:  cfg.Database.MigrationsPath,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer dbClient.Close()

	if err := dbClient.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	rabbitClient, err := rabbitmq.NewClient(&rabbitmq.Config{
		Host:          cfg.RabbitMQ.Host,
		Port:          cfg.RabbitMQ.Port,
		User:          cfg.RabbitMQ.User,
		Password:      secrets.QueuePassword,
		VHost:         cfg.RabbitMQ.VHost,
		RetryAttempts: cfg.RabbitMQ.RetryAttempts,
		RetryInterval: cfg.RabbitMQ.RetryInterval,
		Heartbeat:     cfg.RabbitMQ.Heartbeat,
	}, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize RabbitMQ: %w", err)
	}
	defer rabbitClient.Close()

	jobStore := store.NewPostgresStore(dbClient.GetDB(), appLogger.Logger)

	taskQueue, err := queue.NewAMQPQueue(rabbitClient, cfg.RabbitMQ.TaskExchange, cfg.RabbitMQ.PrefetchCount, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize task queue: %w", err)
	}

	publisher, err := status.NewAMQPPublisher(rabbitClient, cfg.RabbitMQ.StatusExchange, appLogger.Logger)
	if err != nil {
		return fmt.Errorf("failed to initialize status publisher: %w", err)
	}

	workerClient := analysis.NewClient(cfg.Worker.BaseURL, cfg.Worker.RequestTimeout)

	breaker := dispatch.NewBreaker(dispatch.BreakerConfig{
		Threshold: cfg.Dispatch.BreakerThreshold,
		Cooldown:  cfg.Dispatch.BreakerCooldown,
	}, appLogger.Logger)

	processor := dispatch.NewProcessor(jobStore, taskQueue, workerClient, breaker, publisher, dispatch.ProcessorConfig{
		MaxAttempts:    cfg.Dispatch.MaxAttempts,
		BackoffBase:    cfg.Dispatch.BackoffBase,
		BackoffCap:     cfg.Dispatch.BackoffCap,
		OpenRetryDelay: cfg.Dispatch.OpenRetryDelay,
	}, appLogger.Logger)

	dispatcher := dispatch.NewDispatcher(processor, taskQueue, dispatch.Config{
		Concurrency: cfg.Dispatch.Concurrency,
		DequeueWait: cfg.Dispatch.DequeueWait,
	}, appLogger.Logger)

	sweeper := dispatch.NewSweeper(jobStore, taskQueue, dispatch.SweeperConfig{
		Interval: cfg.Dispatch.SweepInterval,
		After:    cfg.Dispatch.SweepAfter,
	}, appLogger.Logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dispatcher.Start(ctx)
	sweeper.Start(ctx)

	appLogger.Info("Dispatcher service is running",
		slog.Int("concurrency", cfg.Dispatch.Concurrency),
		slog.String("worker_base_url", cfg.Worker.BaseURL),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down dispatcher...")

	done := make(chan struct{})
	go func() {
		sweeper.Stop()
		dispatcher.Stop()
		close(done)
	}()

	select {
	case <-done:
		appLogger.Info("Dispatcher shutdown complete")
	case <-time.After(cfg.Dispatch.ShutdownTimeout):
		appLogger.Warn("Dispatcher shutdown timed out, exiting anyway")
	}

	return nil
}
