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
	"github.com/dukex/mailflow/pkg/log"
	"github.com/dukex/mailflow/pkg/otelhelper"
	"github.com/dukex/mailflow/pkg/sendqueue"
	"github.com/dukex/mailflow/pkg/transport/httpbatch"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel"
)

const (
	serviceName     = "mailflow-dispatcher"
	shutdownTimeout = 30 * time.Second
)

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		Usage:                 "Deliver queued emails in per-tenant batches",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.IntFlag{
				Name:    "batch-size",
				Usage:   "Maximum messages claimed per tenant per cycle",
				Value:   sendqueue.DefaultBatchSize,
				Sources: cli.EnvVars("BATCH_SIZE"),
			},
			&cli.DurationFlag{
				Name:    "send-interval",
				Usage:   "Time between dispatch cycles",
				Value:   sendqueue.DefaultSendInterval,
				Sources: cli.EnvVars("SEND_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "send-lease",
				Usage:   "How long a claimed email may stay sending before it is released (0 disables)",
				Value:   sendqueue.DefaultSendLease,
				Sources: cli.EnvVars("SEND_LEASE"),
			},
			&cli.StringFlag{
				Name:    "transport",
				Usage:   "Email transport (log, http)",
				Value:   "log",
				Sources: cli.EnvVars("TRANSPORT"),
			},
			&cli.StringFlag{
				Name:    "transport-url",
				Usage:   "Batch endpoint of the http transport",
				Sources: cli.EnvVars("TRANSPORT_URL"),
			},
			&cli.StringFlag{
				Name:    "transport-token",
				Usage:   "Bearer token of the http transport",
				Sources: cli.EnvVars("TRANSPORT_TOKEN"),
			},
			&cli.DurationFlag{
				Name:    "transport-timeout",
				Usage:   "Timeout of one batch request",
				Value:   httpbatch.DefaultTimeout,
				Sources: cli.EnvVars("TRANSPORT_TIMEOUT"),
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

	logger := log.WithModule("dispatcher")

	cfg := config.Dispatcher{
		BatchSize:        command.Int("batch-size"),
		Interval:         command.Duration("send-interval"),
		Lease:            command.Duration("send-lease"),
		Transport:        command.String("transport"),
		TransportURL:     command.String("transport-url"),
		TransportToken:   command.String("transport-token"),
		TransportTimeout: command.Duration("transport-timeout"),
	}

	err := cfg.Validate()
	if err != nil {
		return err
	}

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

	t, err := NewTransport(cfg, logger)
	if err != nil {
		return err
	}

	dispatcher := sendqueue.NewDispatcher(
		sendqueue.NewService(persistence.Queue(), logger),
		t,
		logger,
		sendqueue.WithBatchSize(cfg.BatchSize),
		sendqueue.WithInterval(cfg.Interval),
		sendqueue.WithLease(cfg.Lease),
		sendqueue.WithTracer(tracer),
	)

	err = dispatcher.Start(ctx)
	if err != nil {
		return err
	}

	<-ctx.Done()

	logger.Info("Shutting down dispatcher")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return dispatcher.Stop(shutdownCtx)
}
