package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

// WorkflowRepository handles workflow-related database operations.
type WorkflowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewWorkflowRepository creates a new workflow repository.
func NewWorkflowRepository(db *sql.DB, logger *slog.Logger) *WorkflowRepository {
	return &WorkflowRepository{db: db, logger: logger}
}

const workflowColumns = `
	id
  , tenant_id
  , name
  , is_active
  , trigger
  , nodes
  , edges
  , max_steps
  , total_executions
  , last_executed
  , created_at
  , updated_at
`

// Save inserts or replaces a workflow definition. Counters are preserved.
func (r *WorkflowRepository) Save(ctx context.Context, workflow *models.Workflow) error {
	now := time.Now().UTC()
	if workflow.CreatedAt.IsZero() {
		workflow.CreatedAt = now
	}

	workflow.UpdatedAt = now

	triggerJSON, err := json.Marshal(workflow.Trigger)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger: %w", err)
	}

	nodesJSON, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return fmt.Errorf("failed to marshal nodes: %w", err)
	}

	edgesJSON, err := json.Marshal(workflow.Edges)
	if err != nil {
		return fmt.Errorf("failed to marshal edges: %w", err)
	}

	query := `
		INSERT INTO workflows (id, tenant_id, name, is_active, trigger_type, trigger, nodes, edges, max_steps, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			name = EXCLUDED.name,
			is_active = EXCLUDED.is_active,
			trigger_type = EXCLUDED.trigger_type,
			trigger = EXCLUDED.trigger,
			nodes = EXCLUDED.nodes,
			edges = EXCLUDED.edges,
			max_steps = EXCLUDED.max_steps,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		workflow.ID, workflow.TenantID, workflow.Name, workflow.IsActive, string(workflow.Trigger.Type),
		triggerJSON, nodesJSON, edgesJSON, workflow.MaxSteps, workflow.CreatedAt, workflow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewWorkflowError("Save", workflow.ID, err)
	}

	return nil
}

func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*models.Workflow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE id = $1", id)

	workflow, err := r.scanWorkflow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to scan workflow: %w", err)
	}

	return workflow, nil
}

func (r *WorkflowRepository) ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error) {
	return r.query(ctx, "SELECT "+workflowColumns+" FROM workflows WHERE tenant_id = $1 ORDER BY id", tenantID)
}

func (r *WorkflowRepository) ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.query(ctx,
		"SELECT "+workflowColumns+" FROM workflows WHERE tenant_id = $1 AND trigger_type = $2 AND is_active ORDER BY id",
		tenantID, string(triggerType),
	)
}

func (r *WorkflowRepository) SetActive(ctx context.Context, id string, active bool) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET is_active = $2, updated_at = $3 WHERE id = $1",
		id, active, time.Now().UTC(),
	)

	return r.expectOne("SetActive", id, result, err)
}

func (r *WorkflowRepository) RecordEnrollment(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE workflows SET total_executions = total_executions + 1, last_executed = $2 WHERE id = $1",
		id, at,
	)

	return r.expectOne("RecordEnrollment", id, result, err)
}

func (r *WorkflowRepository) expectOne(op, id string, result sql.Result, err error) error {
	if err != nil {
		return persistence.NewWorkflowError(op, id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewWorkflowError(op, id, err)
	}

	if affected == 0 {
		return persistence.NewWorkflowError(op, id, persistence.ErrWorkflowNotFound)
	}

	return nil
}

func (r *WorkflowRepository) query(ctx context.Context, query string, args ...any) ([]*models.Workflow, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query workflows: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	workflows := make([]*models.Workflow, 0)

	for rows.Next() {
		workflow, err := r.scanWorkflow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan workflow: %w", err)
		}

		workflows = append(workflows, workflow)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating workflows: %w", err)
	}

	return workflows, nil
}

func (r *WorkflowRepository) scanWorkflow(row scanner) (*models.Workflow, error) {
	var (
		workflow                          models.Workflow
		triggerJSON, nodesJSON, edgesJSON []byte
		lastExecuted                      sql.NullTime
	)

	err := row.Scan(
		&workflow.ID,
		&workflow.TenantID,
		&workflow.Name,
		&workflow.IsActive,
		&triggerJSON,
		&nodesJSON,
		&edgesJSON,
		&workflow.MaxSteps,
		&workflow.TotalExecutions,
		&lastExecuted,
		&workflow.CreatedAt,
		&workflow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(triggerJSON, &workflow.Trigger)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal trigger: %w", err)
	}

	// Node decoding rejects unknown node types.
	err = json.Unmarshal(nodesJSON, &workflow.Nodes)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal nodes: %w", err)
	}

	err = json.Unmarshal(edgesJSON, &workflow.Edges)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal edges: %w", err)
	}

	if lastExecuted.Valid {
		workflow.LastExecuted = &lastExecuted.Time
	}

	return &workflow, nil
}
