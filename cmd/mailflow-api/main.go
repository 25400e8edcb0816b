package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/mailflow/pkg/cmd"
	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	command := &cli.Command{
		Name:                  "mailflow-api",
		Usage:                 "Manage workflows, enrollments and deliverability",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (postgres://... or memory://)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the enrollment lock and suppression cache",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "lock-ttl",
				Usage:   "Expiry of the enrollment lock",
				Value:   enrollment.DefaultLockTTL,
				Sources: cli.EnvVars("LOCK_TTL"),
			},
			&cli.DurationFlag{
				Name:    "suppression-cache-ttl",
				Usage:   "How long a negative suppression lookup is cached",
				Value:   deliverability.DefaultNegativeTTL,
				Sources: cli.EnvVars("SUPPRESSION_CACHE_TTL"),
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

	logger := log.WithModule("api")

	logger.InfoContext(ctx, "Initializing Mailflow API")

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		err := persistence.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	redisClient, err := cmd.NewRedisClient(ctx, command.String("redis-url"))
	if err != nil {
		return err
	}

	var (
		enrollOpts []enrollment.Option
		gateOpts   []deliverability.Option
	)

	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()

		enrollOpts = append(enrollOpts, enrollment.WithLocker(enrollment.NewRedisLocker(redisClient, command.Duration("lock-ttl"), logger)))
		gateOpts = append(gateOpts, deliverability.WithCache(redisClient, command.Duration("suppression-cache-ttl")))
	}

	signer, err := compliance.NewSigner(command.String("unsubscribe-secret"), command.String("unsubscribe-base-url"))
	if err != nil {
		return err
	}

	api := NewAPI(
		logger,
		persistence,
		cmd.NewRegistry(logger),
		enrollment.NewDispatcher(persistence, logger, enrollOpts...),
		deliverability.NewGate(persistence, logger, gateOpts...),
		signer,
	)

	port := command.Int("port")

	logger.InfoContext(ctx, "Mailflow API listening", "port", port)

	return api.Start(ctx, port)
}
