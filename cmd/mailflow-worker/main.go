package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/mailflow/pkg/cmd"
	"github.com/dukex/mailflow/pkg/config"
	"github.com/dukex/mailflow/pkg/engine"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/log"
	"github.com/dukex/mailflow/pkg/otelhelper"
	"github.com/dukex/mailflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
)

const (
	serviceName     = "mailflow-worker"
	shutdownTimeout = 30 * time.Second
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Enroll recipients and advance workflow executions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "kafka",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the enrollment lock and suppression cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Usage:   "How often due executions are claimed",
				Value:   scheduler.DefaultPollInterval,
				Sources: cli.EnvVars("POLL_INTERVAL"),
			},
			&cli.IntFlag{
				Name:    "claim-limit",
				Usage:   "Maximum executions claimed per poll",
				Value:   scheduler.DefaultClaimLimit,
				Sources: cli.EnvVars("CLAIM_LIMIT"),
			},
			&cli.IntFlag{
				Name:    "workers",
				Usage:   "Executions evaluated concurrently",
				Value:   scheduler.DefaultWorkers,
				Sources: cli.EnvVars("WORKERS"),
			},
			&cli.DurationFlag{
				Name:    "lease",
				Usage:   "How long an execution may stay running before it is reset; 0 disables",
				Value:   scheduler.DefaultLease,
				Sources: cli.EnvVars("EXECUTION_LEASE"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Step limit of workflows that do not set one",
				Value:   engine.DefaultMaxSteps,
				Sources: cli.EnvVars("MAX_STEPS"),
			},
			&cli.DurationFlag{
				Name:    "retry-delay",
				Usage:   "Delay before retrying an execution after a storage error",
				Value:   engine.DefaultRetryDelay,
				Sources: cli.EnvVars("RETRY_DELAY"),
			},
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Expiry of the enrollment lock",
				Value:   enrollment.DefaultLockTTL,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.DurationFlag{
				Name:    "webhook-timeout",
				Usage:   "Timeout of webhook and notify requests",
				Value:   10 * time.Second,
				Sources: cli.EnvVars("WEBHOOK_TIMEOUT"),
			},
			&cli.Uint64Flag{
				Name:    "split-seed",
				Usage:   "Seed of the A/B split generator; 0 picks a random seed",
				Sources: cli.EnvVars("SPLIT_SEED"),
			},
			&cli.StringFlag{
				Name:     "unsubscribe-secret",
				Usage:    "HMAC secret of unsubscribe tokens",
				Required: true,
				Sources:  cli.EnvVars("UNSUBSCRIBE_SECRET"),
			},
			&cli.StringFlag{
				Name:     "unsubscribe-base-url",
				Usage:    "Public URL of the unsubscribe endpoint",
				Required: true,
				Sources:  cli.EnvVars("UNSUBSCRIBE_BASE_URL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := command.Run(ctx, os.Args)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("worker")

	logger.InfoContext(ctx, "Initializing Mailflow worker")

	tracer := otel.Tracer(serviceName)

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			err := shutdown(context.Background())
			if err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(context.Background())
		if err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	redisClient, err := cmd.NewRedisClient(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	cfg := config.Engine{
		PollInterval:       command.Duration("poll-interval"),
		ClaimLimit:         command.Int("claim-limit"),
		Workers:            command.Int("workers"),
		Lease:              command.Duration("lease"),
		MaxSteps:           command.Int("max-steps"),
		RetryDelay:         command.Duration("retry-delay"),
		LockTTL:            command.Duration("lock-ttl"),
		UnsubscribeSecret:  command.String("unsubscribe-secret"),
		UnsubscribeBaseURL: command.String("unsubscribe-base-url"),
		WebhookTimeout:     command.Duration("webhook-timeout"),
		SplitSeed:          command.Uint64("split-seed"),
	}

	worker, err := NewWorker(cfg, persistence, cmd.NewRegistry(logger), eventBus, redisClient, tracer, logger)
	if err != nil {
		return err
	}

	return worker.Run(ctx)
}
