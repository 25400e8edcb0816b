// Package enrollment creates executions when trigger events or manual
// requests enroll recipients into workflows.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/google/uuid"
)

var (
	ErrAlreadyEnrolled  = errors.New("recipient already has an active execution in this workflow")
	ErrWorkflowInactive = errors.New("workflow is not active")
	ErrMissingRecipient = errors.New("recipient email is required")
)

// Result summarizes a multi-recipient or multi-workflow enrollment.
type Result struct {
	Enrolled int      `json:"enrolled"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors"`
}

// Dispatcher enforces at most one non-terminal execution per workflow and
// recipient. The check and the insert are not atomic across processes unless
// a Locker is configured, and even then only narrowed: two near-simultaneous
// enrollments may both succeed.
type Dispatcher struct {
	workflows  persistence.WorkflowRepository
	executions persistence.ExecutionRepository
	contacts   persistence.ContactRepository

	locker Locker
	clock  clock.Clock
	logger *slog.Logger
}

type Option func(*Dispatcher)

func WithLocker(l Locker) Option {
	return func(d *Dispatcher) {
		d.locker = l
	}
}

func WithClock(c clock.Clock) Option {
	return func(d *Dispatcher) {
		d.clock = c
	}
}

func NewDispatcher(p persistence.Persistence, logger *slog.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		workflows:  p.Workflows(),
		executions: p.Executions(),
		contacts:   p.Contacts(),
		locker:     noopLocker{},
		clock:      clock.Real{},
		logger:     logger.With("module", "enrollment"),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Enroll creates a pending execution of the workflow for the recipient,
// positioned at the first node after the trigger. It is due immediately
// unless the trigger defers the start.
func (d *Dispatcher) Enroll(
	ctx context.Context,
	workflowID, recipientEmail, contactID string,
	executionData map[string]any,
) (string, error) {
	workflow, err := d.activeWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	return d.enroll(ctx, workflow, recipientEmail, contactID, executionData)
}

// HandleEvent enrolls the event's recipient into every active workflow of
// the tenant whose trigger matches. Recipients already enrolled are skipped.
// An error is returned only when matching workflows could not be listed.
func (d *Dispatcher) HandleEvent(ctx context.Context, event models.TriggerEvent) (*Result, error) {
	logger := d.logger.With("tenant_id", event.TenantID, "trigger_type", event.Type, "email", event.Email)

	workflows, err := d.workflows.ListActiveByTrigger(ctx, event.TenantID, event.Type)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows for %s: %w", event.Type, err)
	}

	contactID := event.ContactID
	if contactID == "" && event.Email != "" {
		contact, err := d.contacts.GetByEmail(ctx, event.TenantID, event.Email)
		if err == nil {
			contactID = contact.ID
		}
	}

	result := &Result{Errors: []string{}}
	data := event.ExecutionData()

	for _, workflow := range workflows {
		if !workflow.Trigger.Matches(event) {
			continue
		}

		id, err := d.enroll(ctx, workflow, event.Email, contactID, data)
		d.collect(ctx, logger.With("workflow_id", workflow.ID), result, workflow.ID, id, err)
	}

	return result, nil
}

// BulkEnroll manually enrolls contacts into one workflow.
func (d *Dispatcher) BulkEnroll(ctx context.Context, workflowID string, contactIDs []string) (*Result, error) {
	workflow, err := d.activeWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	logger := d.logger.With("workflow_id", workflowID)
	result := &Result{Errors: []string{}}

	for _, contactID := range contactIDs {
		id, err := d.enrollContact(ctx, workflow, contactID)
		d.collect(ctx, logger.With("contact_id", contactID), result, contactID, id, err)
	}

	return result, nil
}

// EnrollContact manually enrolls one contact.
func (d *Dispatcher) EnrollContact(ctx context.Context, workflowID, contactID string) (string, error) {
	workflow, err := d.activeWorkflow(ctx, workflowID)
	if err != nil {
		return "", err
	}

	return d.enrollContact(ctx, workflow, contactID)
}

func (d *Dispatcher) collect(ctx context.Context, logger *slog.Logger, result *Result, subject, executionID string, err error) {
	switch {
	case err == nil:
		result.Enrolled++

		logger.InfoContext(ctx, "Enrolled recipient", "execution_id", executionID)
	case errors.Is(err, ErrAlreadyEnrolled):
		result.Skipped++

		logger.DebugContext(ctx, "Recipient already enrolled, skipping")
	default:
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", subject, err))

		logger.WarnContext(ctx, "Enrollment failed", "error", err)
	}
}

func (d *Dispatcher) activeWorkflow(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := d.workflows.GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if !workflow.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrWorkflowInactive, workflowID)
	}

	return workflow, nil
}

func (d *Dispatcher) enrollContact(ctx context.Context, workflow *models.Workflow, contactID string) (string, error) {
	contact, err := d.contacts.GetByID(ctx, workflow.TenantID, contactID)
	if err != nil {
		return "", err
	}

	return d.enroll(ctx, workflow, contact.Email, contact.ID, map[string]any{
		"trigger_type": string(models.TriggerManual),
	})
}

func (d *Dispatcher) enroll(
	ctx context.Context,
	workflow *models.Workflow,
	recipientEmail, contactID string,
	executionData map[string]any,
) (string, error) {
	email := models.NormalizeEmail(recipientEmail)
	if email == "" {
		return "", ErrMissingRecipient
	}

	entry, err := workflow.Graph().EntryNode()
	if err != nil {
		return "", fmt.Errorf("workflow %s: %w", workflow.ID, err)
	}

	release, acquired := d.locker.Acquire(ctx, lockKey(workflow.ID, email))
	if !acquired {
		return "", ErrAlreadyEnrolled
	}
	defer release()

	active, err := d.executions.HasActive(ctx, workflow.ID, email)
	if err != nil {
		return "", fmt.Errorf("failed to check active executions: %w", err)
	}

	if active {
		return "", ErrAlreadyEnrolled
	}

	now := d.clock.Now()
	execution := &models.Execution{
		ID:             uuid.Must(uuid.NewV7()).String(),
		WorkflowID:     workflow.ID,
		TenantID:       workflow.TenantID,
		ContactID:      contactID,
		RecipientEmail: email,
		Status:         models.ExecutionPending,
		CurrentNodeID:  entry.ID,
		ScheduledFor:   models.EpochMillis(workflow.Trigger.StartAt(now)),
		ExecutionData:  maps.Clone(executionData),
		CreatedAt:      now,
	}

	created, err := d.executions.CreateIfNotActive(ctx, execution)
	if err != nil {
		return "", fmt.Errorf("failed to create execution: %w", err)
	}

	if !created {
		return "", ErrAlreadyEnrolled
	}

	err = d.workflows.RecordEnrollment(ctx, workflow.ID, now)
	if err != nil {
		d.logger.WarnContext(ctx, "Failed to update workflow counters", "workflow_id", workflow.ID, "error", err)
	}

	return execution.ID, nil
}

func lockKey(workflowID, email string) string {
	return "mailflow:enroll:" + workflowID + ":" + email
}
