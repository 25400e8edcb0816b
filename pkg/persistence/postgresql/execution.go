package postgresql

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

// ExecutionRepository stores executions. Every write is scoped to one row;
// claims use FOR UPDATE SKIP LOCKED so concurrent schedulers never share work.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
	id
  , workflow_id
  , tenant_id
  , contact_id
  , recipient_email
  , status
  , current_node_id
  , scheduled_for
  , execution_data
  , step_count
  , error_message
  , created_at
  , started_at
  , completed_at
`

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, fmt.Errorf("failed to scan execution: %w", err)
	}

	return execution, nil
}

func (r *ExecutionRepository) HasActive(ctx context.Context, workflowID, recipientEmail string) (bool, error) {
	var exists bool

	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM executions
			WHERE workflow_id = $1 AND recipient_email = $2 AND status IN ('pending', 'running')
		)`,
		workflowID, models.NormalizeEmail(recipientEmail),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check active execution: %w", err)
	}

	return exists, nil
}

// CreateIfNotActive performs the dedup check and the insert in one statement.
// Under READ COMMITTED two concurrent statements can still both insert.
func (r *ExecutionRepository) CreateIfNotActive(ctx context.Context, execution *models.Execution) (bool, error) {
	dataJSON, err := json.Marshal(execution.ExecutionData)
	if err != nil {
		return false, fmt.Errorf("failed to marshal execution data: %w", err)
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO executions (id, workflow_id, tenant_id, contact_id, recipient_email, status, current_node_id, scheduled_for, execution_data, step_count, created_at)
		SELECT $1::varchar, $2::varchar, $3::varchar, $4::varchar, $5::varchar, $6::varchar, $7::varchar, $8::bigint, $9::jsonb, $10::integer, $11::timestamptz
		WHERE NOT EXISTS (
			SELECT 1 FROM executions
			WHERE workflow_id = $2 AND recipient_email = $5 AND status IN ('pending', 'running')
		)`,
		execution.ID,
		execution.WorkflowID,
		execution.TenantID,
		nullString(execution.ContactID),
		models.NormalizeEmail(execution.RecipientEmail),
		string(execution.Status),
		execution.CurrentNodeID,
		execution.ScheduledFor,
		dataJSON,
		execution.StepCount,
		execution.CreatedAt,
	)
	if err != nil {
		return false, persistence.NewExecutionError("CreateIfNotActive", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, persistence.NewExecutionError("CreateIfNotActive", execution.ID, err)
	}

	return affected == 1, nil
}

func (r *ExecutionRepository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, `
		UPDATE executions SET status = 'running', started_at = $2
		WHERE id IN (
			SELECT id FROM executions
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY scheduled_for
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+executionColumns,
		models.EpochMillis(now), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due executions: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	claimed := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		claimed = append(claimed, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("error iterating claimed executions: %w", err)
	}

	slices.SortFunc(claimed, func(a, b *models.Execution) int {
		return cmp.Or(cmp.Compare(a.ScheduledFor, b.ScheduledFor), cmp.Compare(a.ID, b.ID))
	})

	return claimed, nil
}

// Update writes the engine-owned fields. Rows already in a terminal status are never changed.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE executions SET
			status = $2,
			current_node_id = $3,
			scheduled_for = $4,
			step_count = $5,
			error_message = $6,
			started_at = $7,
			completed_at = $8
		WHERE id = $1 AND status NOT IN ('completed', 'failed', 'cancelled')`,
		execution.ID,
		string(execution.Status),
		execution.CurrentNodeID,
		execution.ScheduledFor,
		execution.StepCount,
		nullString(execution.ErrorMessage),
		execution.StartedAt,
		execution.CompletedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 1 {
		return nil
	}

	_, err = r.GetByID(ctx, execution.ID)
	if err != nil {
		return err
	}

	return persistence.NewExecutionError("Update", execution.ID, persistence.ErrInvalidTransition)
}

func (r *ExecutionRepository) ResetStale(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"UPDATE executions SET status = 'pending' WHERE status = 'running' AND started_at < $1",
		cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to reset stale executions: %w", err)
	}

	return result.RowsAffected()
}

func (r *ExecutionRepository) StatsByWorkflow(ctx context.Context, workflowID string) (models.ExecutionStats, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM executions WHERE workflow_id = $1 GROUP BY status",
		workflowID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query execution stats: %w", err)
	}

	defer closeRows(ctx, r.logger, rows)

	stats := models.ExecutionStats{}

	for rows.Next() {
		var (
			status string
			count  int64
		)

		err := rows.Scan(&status, &count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution stats: %w", err)
		}

		stats[models.ExecutionStatus(status)] = count
	}

	return stats, rows.Err()
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution    models.Execution
		contactID    sql.NullString
		status       string
		dataJSON     []byte
		errorMessage sql.NullString
		startedAt    sql.NullTime
		completedAt  sql.NullTime
	)

	err := row.Scan(
		&execution.ID,
		&execution.WorkflowID,
		&execution.TenantID,
		&contactID,
		&execution.RecipientEmail,
		&status,
		&execution.CurrentNodeID,
		&execution.ScheduledFor,
		&dataJSON,
		&execution.StepCount,
		&errorMessage,
		&execution.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	execution.ContactID = contactID.String
	execution.Status = models.ExecutionStatus(status)
	execution.ErrorMessage = errorMessage.String

	if len(dataJSON) > 0 {
		err = json.Unmarshal(dataJSON, &execution.ExecutionData)
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution data: %w", err)
		}
	}

	if startedAt.Valid {
		execution.StartedAt = &startedAt.Time
	}

	if completedAt.Valid {
		execution.CompletedAt = &completedAt.Time
	}

	return &execution, nil
}
