package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"

	"github.com/dukex/mailflow/pkg/compliance"
	"github.com/dukex/mailflow/pkg/config"
	"github.com/dukex/mailflow/pkg/deliverability"
	"github.com/dukex/mailflow/pkg/engine"
	"github.com/dukex/mailflow/pkg/enrollment"
	"github.com/dukex/mailflow/pkg/eventbus"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/dukex/mailflow/pkg/scheduler"
	"github.com/dukex/mailflow/pkg/sendqueue"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/trace"
)

// Worker enrolls recipients from bus events and advances due executions.
type Worker struct {
	eventBus  eventbus.EventBus
	scheduler *scheduler.Scheduler
	logger    *slog.Logger
}

func NewWorker(
	cfg config.Engine,
	p persistence.Persistence,
	reg *registry.Registry,
	eventBus eventbus.EventBus,
	redisClient *redis.Client,
	tracer trace.Tracer,
	logger *slog.Logger,
) (*Worker, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	signer, err := compliance.NewSigner(cfg.UnsubscribeSecret, cfg.UnsubscribeBaseURL)
	if err != nil {
		return nil, err
	}

	seed := cfg.SplitSeed
	if seed == 0 {
		seed = rand.Uint64()
	}

	handlers, err := reg.Handlers(protocol.Dependencies{
		Logger:      logger,
		Queue:       sendqueue.NewService(p.Queue(), logger),
		Contacts:    p.Contacts(),
		Templates:   p.Templates(),
		Unsubscribe: signer,
		HTTPClient:  &http.Client{Timeout: cfg.WebhookTimeout},
		Rand:        rand.New(rand.NewPCG(seed, seed>>1)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build node handlers: %w", err)
	}

	var (
		enrollOpts []enrollment.Option
		gateOpts   []deliverability.Option
	)

	if redisClient != nil {
		enrollOpts = append(enrollOpts, enrollment.WithLocker(enrollment.NewRedisLocker(redisClient, cfg.LockTTL, logger)))
		gateOpts = append(gateOpts, deliverability.WithCache(redisClient, 0))
	}

	gate := deliverability.NewGate(p, logger, gateOpts...)

	eng := engine.New(p, handlers, gate,
		engine.WithPublisher(eventBus),
		engine.WithTracer(tracer),
		engine.WithLogger(logger),
		engine.WithDefaultMaxSteps(cfg.MaxSteps),
		engine.WithRetryDelay(cfg.RetryDelay))

	err = enrollment.NewDispatcher(p, logger, enrollOpts...).Subscribe(eventBus)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe enrollment: %w", err)
	}

	err = gate.Subscribe(eventBus)
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe deliverability gate: %w", err)
	}

	return &Worker{
		eventBus: eventBus,
		scheduler: scheduler.New(p.Executions(), eng, logger,
			scheduler.WithPollInterval(cfg.PollInterval),
			scheduler.WithClaimLimit(cfg.ClaimLimit),
			scheduler.WithWorkers(cfg.Workers),
			scheduler.WithLease(cfg.Lease)),
		logger: logger.With("module", "worker"),
	}, nil
}

// Run consumes events and polls for due executions until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	err := w.eventBus.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	err = w.scheduler.Start(ctx)
	if err != nil {
		return err
	}

	w.logger.InfoContext(ctx, "Worker started")

	<-ctx.Done()

	w.logger.Info("Shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	return w.scheduler.Stop(shutdownCtx)
}
