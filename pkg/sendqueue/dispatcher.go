package sendqueue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/otelhelper"
	"github.com/dukex/mailflow/pkg/transport"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultBatchSize    = 50
	DefaultSendInterval = 10 * time.Second
	DefaultSendLease    = 15 * time.Minute

	errMissingResult = "no result returned by transport"
)

var ErrAlreadyStarted = errors.New("dispatcher already started")

// CycleStats summarizes one dispatcher cycle.
type CycleStats struct {
	Recovered int64
	Tenants   int
	Claimed   int
	Sent      int
	Failed    int
}

// Dispatcher drains the queue through the transport. Each cycle makes one
// bounded claim per tenant with due mail so a busy tenant cannot starve the
// others.
type Dispatcher struct {
	queue     *Service
	transport transport.Transport
	tracer    trace.Tracer
	logger    *slog.Logger

	batchSize int
	interval  time.Duration
	lease     time.Duration

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

type DispatcherOption func(*Dispatcher)

func WithBatchSize(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.batchSize = n
		}
	}
}

func WithInterval(i time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if i > 0 {
			d.interval = i
		}
	}
}

// WithLease sets how long a claimed message may stay sending before a cycle
// releases it. Zero disables the recovery.
func WithLease(lease time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		d.lease = lease
	}
}

func WithTracer(t trace.Tracer) DispatcherOption {
	return func(d *Dispatcher) {
		d.tracer = t
	}
}

func NewDispatcher(queue *Service, t transport.Transport, logger *slog.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:     queue,
		transport: t,
		tracer:    otel.Tracer("mailflow-dispatcher"),
		logger:    logger.With("module", "batch_dispatcher"),
		batchSize: DefaultBatchSize,
		interval:  DefaultSendInterval,
		lease:     DefaultSendLease,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Cycle runs one round-robin pass over the tenants with due mail.
func (d *Dispatcher) Cycle(ctx context.Context) (CycleStats, error) {
	var stats CycleStats

	if d.lease > 0 {
		recovered, err := d.queue.ResetStale(ctx, d.lease)
		if err != nil {
			d.logger.WarnContext(ctx, "Failed to release stale sending emails", "error", err)
		} else if recovered > 0 {
			d.logger.WarnContext(ctx, "Released stale sending emails", "count", recovered, "lease", d.lease)
		}

		stats.Recovered = recovered
	}

	tenants, err := d.queue.TenantsWithDue(ctx)
	if err != nil {
		return stats, fmt.Errorf("failed to list tenants with due mail: %w", err)
	}

	stats.Tenants = len(tenants)

	for _, tenantID := range tenants {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		batch, err := d.queue.ClaimBatchForTenant(ctx, tenantID, d.batchSize)
		if err != nil {
			d.logger.ErrorContext(ctx, "Failed to claim batch", "tenant_id", tenantID, "error", err)

			continue
		}

		if len(batch) == 0 {
			continue
		}

		sent, failed := d.deliver(ctx, tenantID, batch)

		stats.Claimed += len(batch)
		stats.Sent += sent
		stats.Failed += failed
	}

	if stats.Claimed > 0 {
		d.logger.InfoContext(ctx, "Dispatch cycle finished",
			"tenants", stats.Tenants,
			"claimed", stats.Claimed,
			"sent", stats.Sent,
			"failed", stats.Failed)
	}

	return stats, nil
}

func (d *Dispatcher) deliver(ctx context.Context, tenantID string, batch []*models.QueuedEmail) (int, int) {
	ctx, span := otelhelper.StartSpan(ctx, d.tracer, "sendqueue.deliver",
		attribute.String(otelhelper.TenantIDKey, tenantID),
		attribute.Int(otelhelper.BatchSizeKey, len(batch)))
	defer span.End()

	logger := d.logger.With("tenant_id", tenantID)

	messages := make([]transport.Message, 0, len(batch))
	ids := make([]string, 0, len(batch))

	for _, q := range batch {
		messages = append(messages, transport.FromQueued(q))
		ids = append(ids, q.ID)
	}

	results, err := d.transport.SendBatch(ctx, messages)

	// Outcomes are recorded even when the cycle is cancelled mid-batch.
	markCtx := context.WithoutCancel(ctx)

	if err != nil {
		otelhelper.SetError(span, err)
		logger.WarnContext(ctx, "Transport rejected batch", "size", len(batch), "error", err)

		d.markFailed(markCtx, logger, map[string][]string{err.Error(): ids})

		return 0, len(ids)
	}

	byID := make(map[string]transport.Result, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	var sent []string

	failed := map[string][]string{}
	failedCount := 0

	for _, id := range ids {
		r, ok := byID[id]

		switch {
		case !ok:
			failed[errMissingResult] = append(failed[errMissingResult], id)
			failedCount++
		case r.Success:
			sent = append(sent, id)
		default:
			failed[r.Error] = append(failed[r.Error], id)
			failedCount++
		}
	}

	err = d.queue.MarkSent(markCtx, sent)
	if err != nil {
		otelhelper.SetError(span, err)
		logger.ErrorContext(ctx, "Failed to record sent emails", "count", len(sent), "error", err)
	}

	d.markFailed(markCtx, logger, failed)

	return len(sent), failedCount
}

func (d *Dispatcher) markFailed(ctx context.Context, logger *slog.Logger, byCause map[string][]string) {
	for cause, ids := range byCause {
		err := d.queue.MarkFailed(ctx, ids, cause)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to record failed emails", "count", len(ids), "error", err)
		}
	}
}

// Start runs a cycle on every interval until Stop is called or ctx is done.
// Overlapping cycles are skipped.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cron != nil {
		return ErrAlreadyStarted
	}

	cycleCtx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	job := cron.NewChain(cron.SkipIfStillRunning(cron.DiscardLogger)).Then(cron.FuncJob(func() {
		_, err := d.Cycle(cycleCtx)
		if err != nil && cycleCtx.Err() == nil {
			d.logger.ErrorContext(cycleCtx, "Dispatch cycle failed", "error", err)
		}
	}))

	_, err := c.AddJob(fmt.Sprintf("@every %s", d.interval), job)
	if err != nil {
		cancel()

		return fmt.Errorf("failed to schedule dispatcher: %w", err)
	}

	d.cron = c
	d.cancel = cancel

	c.Start()

	d.logger.InfoContext(ctx, "Batch dispatcher started", "interval", d.interval, "batch_size", d.batchSize)

	return nil
}

// Stop waits for the running cycle to finish, or for ctx to be done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	c, cancel := d.cron, d.cancel
	d.cron, d.cancel = nil, nil
	d.mu.Unlock()

	if c == nil {
		return nil
	}

	stopped := c.Stop()

	defer cancel()

	select {
	case <-stopped.Done():
		d.logger.InfoContext(ctx, "Batch dispatcher stopped")

		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
