// Package engine advances executions through their workflow graphs.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/eventbus"
	"github.com/dukex/mailflow/pkg/events"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/otelhelper"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/protocol"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrStepLimitExceeded = errors.New("execution exceeded its step limit")
	ErrNodeNotFound      = errors.New("current node not found in workflow")
	ErrNoHandler         = errors.New("no handler for node type")
)

const (
	DefaultMaxSteps   = 500
	DefaultRetryDelay = time.Minute
)

// SuppressionChecker answers whether a recipient may still be mailed.
type SuppressionChecker interface {
	IsSuppressed(ctx context.Context, tenantID, email string) (bool, error)
}

type Engine struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	contacts   persistence.ContactRepository
	tenants    persistence.TenantRepository

	handlers map[models.NodeType]protocol.NodeHandler
	gate     SuppressionChecker

	clock      clock.Clock
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	logger     *slog.Logger
	maxSteps   int
	retryDelay time.Duration
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) {
		e.clock = c
	}
}

// WithPublisher publishes lifecycle events when executions finish.
func WithPublisher(p eventbus.EventPublisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithDefaultMaxSteps sets the step limit of workflows that do not define one.
func WithDefaultMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithRetryDelay sets how long an execution waits after an infrastructure error.
func WithRetryDelay(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.retryDelay = d
		}
	}
}

func New(
	p persistence.Persistence,
	handlers map[models.NodeType]protocol.NodeHandler,
	gate SuppressionChecker,
	opts ...Option,
) *Engine {
	e := &Engine{
		workflows:  p.Workflows(),
		executions: p.Executions(),
		contacts:   p.Contacts(),
		tenants:    p.Tenants(),
		handlers:   handlers,
		gate:       gate,
		clock:      clock.Real{},
		tracer:     otel.Tracer("mailflow/engine"),
		logger:     slog.Default(),
		maxSteps:   DefaultMaxSteps,
		retryDelay: DefaultRetryDelay,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.logger = e.logger.With("module", "engine")

	return e
}

// Step evaluates the current node of a claimed execution and writes back
// its new position or terminal status. Errors are returned only when the
// outcome could not be determined or stored; handler failures are recorded
// on the execution instead.
func (e *Engine) Step(ctx context.Context, execution *models.Execution) error {
	return e.evaluate(ctx, execution, false)
}

// Run evaluates nodes of a claimed execution until it waits on a delay or
// finishes. Every evaluation is written back before the next one starts.
func (e *Engine) Run(ctx context.Context, execution *models.Execution) error {
	for {
		err := e.evaluate(ctx, execution, true)
		if err != nil {
			return err
		}

		if execution.Status != models.ExecutionRunning {
			return nil
		}

		if ctx.Err() != nil {
			execution.Status = models.ExecutionPending
			_, err = e.save(context.WithoutCancel(ctx), e.logger, execution)

			return errors.Join(ctx.Err(), err)
		}
	}
}

func (e *Engine) evaluate(ctx context.Context, execution *models.Execution, hold bool) error {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.TenantIDKey, execution.TenantID),
		attribute.String(otelhelper.NodeIDKey, execution.CurrentNodeID),
	)
	defer span.End()

	logger := e.logger.With(
		"execution_id", execution.ID,
		"workflow_id", execution.WorkflowID,
		"node_id", execution.CurrentNodeID,
	)
	now := e.clock.Now()

	err := e.step(ctx, span, logger, execution, now, hold)
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(
		attribute.String(otelhelper.StatusKey, string(execution.Status)),
		attribute.Int(otelhelper.StepCountKey, execution.StepCount),
	)

	return err
}

// step evaluates one node. With hold set, an immediate advance keeps the
// execution running so the caller can continue without a new claim.
func (e *Engine) step(
	ctx context.Context,
	span trace.Span,
	logger *slog.Logger,
	execution *models.Execution,
	now time.Time,
	hold bool,
) error {
	workflow, err := e.workflows.GetByID(ctx, execution.WorkflowID)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return e.finish(ctx, logger, execution, now, models.ExecutionCancelled, "workflow not found")
		}

		return e.retryLater(ctx, logger, execution, now, fmt.Errorf("failed to load workflow: %w", err))
	}

	span.SetAttributes(attribute.String(otelhelper.WorkflowNameKey, workflow.Name))

	if !workflow.IsActive {
		return e.finish(ctx, logger, execution, now, models.ExecutionCancelled, "workflow inactive")
	}

	suppressed, err := e.gate.IsSuppressed(ctx, execution.TenantID, execution.RecipientEmail)
	if err != nil {
		return e.retryLater(ctx, logger, execution, now, fmt.Errorf("failed to check suppression: %w", err))
	}

	if suppressed {
		return e.finish(ctx, logger, execution, now, models.ExecutionCancelled, "recipient suppressed")
	}

	execution.StepCount++

	limit := e.maxSteps
	if workflow.MaxSteps > 0 {
		limit = workflow.MaxSteps
	}

	if execution.StepCount > limit {
		return e.fail(ctx, logger, execution, now, fmt.Errorf("%w: %d", ErrStepLimitExceeded, limit))
	}

	graph := workflow.Graph()

	node, ok := graph.Node(execution.CurrentNodeID)
	if !ok {
		return e.fail(ctx, logger, execution, now, fmt.Errorf("%w: %s", ErrNodeNotFound, execution.CurrentNodeID))
	}

	span.SetAttributes(attribute.String(otelhelper.NodeTypeKey, string(node.Type)))

	handler, ok := e.handlers[node.Type]
	if !ok {
		return e.fail(ctx, logger, execution, now, fmt.Errorf("%w: %s", ErrNoHandler, node.Type))
	}

	env := &protocol.Env{
		Execution: execution,
		Workflow:  workflow,
		Graph:     graph,
		Node:      node,
		Contact:   e.contact(ctx, logger, execution),
		Tenant:    e.tenant(ctx, logger, execution.TenantID),
		Now:       now,
		Logger:    logger.With("node_type", node.Type),
	}

	outcome, err := handler.Handle(ctx, env)
	if err != nil {
		return e.fail(ctx, logger, execution, now, fmt.Errorf("%s node %s: %w", node.Type, node.ID, err))
	}

	if outcome.IsTerminal() {
		reason := outcome.Reason
		if reason == "" {
			reason = "end of graph"
		}

		return e.finish(ctx, logger, execution, now, models.ExecutionCompleted, reason)
	}

	execution.Status = models.ExecutionPending
	if hold && outcome.Delay == 0 {
		// Renew the lease so a long chain is not taken for a stale one.
		renewed := e.clock.Now()
		execution.Status = models.ExecutionRunning
		execution.StartedAt = &renewed
	}

	execution.CurrentNodeID = outcome.Next
	execution.ScheduledFor = models.EpochMillis(now.Add(outcome.Delay))

	logger.DebugContext(ctx, "Advanced execution", "next_node_id", outcome.Next, "delay", outcome.Delay)

	_, err = e.save(ctx, logger, execution)

	return err
}

func (e *Engine) fail(ctx context.Context, logger *slog.Logger, execution *models.Execution, now time.Time, cause error) error {
	execution.ErrorMessage = cause.Error()

	return e.finish(ctx, logger, execution, now, models.ExecutionFailed, cause.Error())
}

func (e *Engine) finish(
	ctx context.Context,
	logger *slog.Logger,
	execution *models.Execution,
	now time.Time,
	status models.ExecutionStatus,
	reason string,
) error {
	completedAt := now
	execution.Status = status
	execution.CompletedAt = &completedAt

	logger.InfoContext(ctx, "Execution finished", "status", status, "reason", reason, "step_count", execution.StepCount)

	stale, err := e.save(ctx, logger, execution)
	if err != nil || stale {
		return err
	}

	e.publish(ctx, logger, execution, reason)

	return nil
}

// retryLater puts the execution back in line after an infrastructure error
// without counting a step.
func (e *Engine) retryLater(ctx context.Context, logger *slog.Logger, execution *models.Execution, now time.Time, cause error) error {
	execution.Status = models.ExecutionPending
	execution.ScheduledFor = models.EpochMillis(now.Add(e.retryDelay))

	logger.WarnContext(ctx, "Deferring execution", "error", cause, "retry_in", e.retryDelay)

	_, err := e.save(ctx, logger, execution)
	if err != nil {
		return errors.Join(cause, err)
	}

	return cause
}

// save writes the execution back. When the stored execution is already
// terminal the update is dropped, execution is refreshed from the store and
// stale is true.
func (e *Engine) save(ctx context.Context, logger *slog.Logger, execution *models.Execution) (bool, error) {
	err := e.executions.Update(ctx, execution)
	if err == nil {
		return false, nil
	}

	if !errors.Is(err, persistence.ErrInvalidTransition) {
		return false, fmt.Errorf("failed to update execution %s: %w", execution.ID, err)
	}

	logger.WarnContext(ctx, "Execution already terminal, dropping update")

	latest, err := e.executions.GetByID(ctx, execution.ID)
	if err != nil {
		return true, fmt.Errorf("failed to reload execution %s: %w", execution.ID, err)
	}

	*execution = *latest

	return true, nil
}

func (e *Engine) publish(ctx context.Context, logger *slog.Logger, execution *models.Execution, reason string) {
	if e.publisher == nil {
		return
	}

	eventType, ok := events.LifecycleEventType(execution.Status)
	if !ok {
		return
	}

	event := events.ExecutionFinished{
		BaseEvent:      events.NewBaseEvent(eventType),
		ExecutionID:    execution.ID,
		WorkflowID:     execution.WorkflowID,
		TenantID:       execution.TenantID,
		RecipientEmail: execution.RecipientEmail,
		Status:         execution.Status,
		NodeID:         execution.CurrentNodeID,
		Reason:         reason,
		StepCount:      execution.StepCount,
	}
	event.Timestamp = *execution.CompletedAt

	err := e.publisher.Publish(ctx, execution.ID, event)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to publish lifecycle event", "event_type", eventType, "error", err)
	}
}

func (e *Engine) contact(ctx context.Context, logger *slog.Logger, execution *models.Execution) *models.Contact {
	var (
		contact *models.Contact
		err     error
	)

	if execution.ContactID != "" {
		contact, err = e.contacts.GetByID(ctx, execution.TenantID, execution.ContactID)
	} else {
		contact, err = e.contacts.GetByEmail(ctx, execution.TenantID, execution.RecipientEmail)
	}

	if err != nil {
		if !errors.Is(err, persistence.ErrContactNotFound) {
			logger.WarnContext(ctx, "Failed to load contact", "error", err)
		}

		return nil
	}

	return contact
}

func (e *Engine) tenant(ctx context.Context, logger *slog.Logger, tenantID string) *models.Tenant {
	tenant, err := e.tenants.GetByID(ctx, tenantID)
	if err != nil {
		if !errors.Is(err, persistence.ErrTenantNotFound) {
			logger.WarnContext(ctx, "Failed to load tenant", "error", err)
		}

		return nil
	}

	return tenant
}
