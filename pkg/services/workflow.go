package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/mailflow/pkg/clock"
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/registry"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type Workflow struct {
	persistence persistence.Persistence
	registry    *registry.Registry
	validate    *validator.Validate
	clock       clock.Clock
	logger      *slog.Logger
}

// NewWorkflow creates a new workflow service.
func NewWorkflow(
	persistence persistence.Persistence,
	registry *registry.Registry,
	validate *validator.Validate,
	logger *slog.Logger,
) *Workflow {
	return &Workflow{
		persistence: persistence,
		registry:    registry,
		validate:    validate,
		clock:       clock.Real{},
		logger:      logger.With("module", "workflow_service"),
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *Workflow) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// FetchByID retrieves a workflow by its ID.
func (w *Workflow) FetchByID(ctx context.Context, id string) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	return workflow, nil
}

// ListByTenant returns every definition of the tenant.
func (w *Workflow) ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	if tenantID == "" {
		return nil, NewValidationError("ListByTenant", "TENANT_REQUIRED", "tenant is required", ErrInvalidRequest)
	}

	workflows, err := w.persistence.Workflows().ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return workflows, nil
}

// Save validates a definition against the node schemas and stores it,
// creating it when the ID is empty or unknown.
func (w *Workflow) Save(ctx context.Context, workflow *models.Workflow) (*models.Workflow, error) {
	if workflow == nil {
		return nil, ErrWorkflowNil
	}

	err := w.validate.Struct(workflow)
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_WORKFLOW", err.Error(), ErrInvalidRequest)
	}

	err = w.registry.ValidateWorkflow(workflow)
	if err != nil {
		return nil, NewValidationError("Save", "INVALID_GRAPH", err.Error(), err)
	}

	now := w.clock.Now()

	if workflow.ID == "" {
		workflow.ID = uuid.Must(uuid.NewV7()).String()
	}

	existing, err := w.persistence.Workflows().GetByID(ctx, workflow.ID)

	switch {
	case err == nil:
		if existing.TenantID != workflow.TenantID {
			return nil, NewValidationError("Save", "TENANT_MISMATCH", "workflow belongs to another tenant", ErrInvalidRequest)
		}

		workflow.CreatedAt = existing.CreatedAt
	case persistence.IsWorkflowNotFound(err):
		workflow.CreatedAt = now
	default:
		return nil, fmt.Errorf("failed to load workflow: %w", err)
	}

	workflow.UpdatedAt = now

	err = w.persistence.Workflows().Save(ctx, workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to save workflow: %w", err)
	}

	w.logger.InfoContext(ctx, "Workflow saved",
		"workflow_id", workflow.ID,
		"tenant_id", workflow.TenantID,
		"active", workflow.IsActive)

	return w.persistence.Workflows().GetByID(ctx, workflow.ID)
}

// Activate makes the workflow eligible for enrollment.
func (w *Workflow) Activate(ctx context.Context, id string) (*models.Workflow, error) {
	return w.setActive(ctx, id, true)
}

// Deactivate stops enrollment. Executions in flight are cancelled lazily at
// their next evaluation.
func (w *Workflow) Deactivate(ctx context.Context, id string) (*models.Workflow, error) {
	return w.setActive(ctx, id, false)
}

func (w *Workflow) setActive(ctx context.Context, id string, active bool) (*models.Workflow, error) {
	workflow, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if active {
		// Definitions saved before a schema change must still be valid.
		err = w.registry.ValidateWorkflow(workflow)
		if err != nil {
			return nil, NewValidationError("Activate", "INVALID_GRAPH", err.Error(), err)
		}
	}

	err = w.persistence.Workflows().SetActive(ctx, id, active)
	if err != nil {
		return nil, err
	}

	w.logger.InfoContext(ctx, "Workflow activation changed", "workflow_id", id, "active", active)

	return w.persistence.Workflows().GetByID(ctx, id)
}

// Stats counts the workflow's executions by status.
func (w *Workflow) Stats(ctx context.Context, id string) (models.ExecutionStats, error) {
	_, err := w.persistence.Workflows().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stats, err := w.persistence.Executions().StatsByWorkflow(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load execution stats: %w", err)
	}

	return stats, nil
}
