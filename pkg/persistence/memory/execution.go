package memory

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

type executionRepository struct {
	p *Persistence
}

func cloneExecution(e *models.Execution) *models.Execution {
	clone := *e
	clone.ExecutionData = maps.Clone(e.ExecutionData)

	return &clone
}

func (r *executionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	e, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return cloneExecution(e), nil
}

func (r *executionRepository) HasActive(_ context.Context, workflowID, recipientEmail string) (bool, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	return r.hasActiveLocked(workflowID, recipientEmail), nil
}

func (r *executionRepository) hasActiveLocked(workflowID, recipientEmail string) bool {
	email := models.NormalizeEmail(recipientEmail)

	for _, e := range r.p.executions {
		if e.WorkflowID == workflowID && e.RecipientEmail == email && !e.Status.IsTerminal() {
			return true
		}
	}

	return false
}

func (r *executionRepository) CreateIfNotActive(_ context.Context, execution *models.Execution) (bool, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if r.hasActiveLocked(execution.WorkflowID, execution.RecipientEmail) {
		return false, nil
	}

	stored := cloneExecution(execution)
	stored.RecipientEmail = models.NormalizeEmail(stored.RecipientEmail)
	r.p.executions[execution.ID] = stored

	return true, nil
}

func (r *executionRepository) ClaimDue(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	nowMs := models.EpochMillis(now)

	var due []*models.Execution

	for _, e := range r.p.executions {
		if e.Status == models.ExecutionPending && e.ScheduledFor <= nowMs {
			due = append(due, e)
		}
	}

	slices.SortFunc(due, func(a, b *models.Execution) int {
		return cmp.Or(cmp.Compare(a.ScheduledFor, b.ScheduledFor), cmp.Compare(a.ID, b.ID))
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]*models.Execution, 0, len(due))

	for _, e := range due {
		started := now
		e.Status = models.ExecutionRunning
		e.StartedAt = &started
		claimed = append(claimed, cloneExecution(e))
	}

	return claimed, nil
}

func (r *executionRepository) Update(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	existing, ok := r.p.executions[execution.ID]
	if !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	if existing.Status.IsTerminal() {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrInvalidTransition)
	}

	r.p.executions[execution.ID] = cloneExecution(execution)

	return nil
}

func (r *executionRepository) ResetStale(_ context.Context, cutoff time.Time) (int64, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var n int64

	for _, e := range r.p.executions {
		if e.Status == models.ExecutionRunning && e.StartedAt != nil && e.StartedAt.Before(cutoff) {
			e.Status = models.ExecutionPending
			n++
		}
	}

	return n, nil
}

func (r *executionRepository) StatsByWorkflow(_ context.Context, workflowID string) (models.ExecutionStats, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	stats := models.ExecutionStats{}

	for _, e := range r.p.executions {
		if e.WorkflowID == workflowID {
			stats[e.Status]++
		}
	}

	return stats, nil
}

// AllExecutions returns every stored execution ordered by creation time.
func (p *Persistence) AllExecutions() []*models.Execution {
	p.mu.RLock()
	defer p.mu.RUnlock()

	result := make([]*models.Execution, 0, len(p.executions))
	for _, e := range p.executions {
		result = append(result, cloneExecution(e))
	}

	slices.SortFunc(result, func(a, b *models.Execution) int {
		return cmp.Or(a.CreatedAt.Compare(b.CreatedAt), cmp.Compare(a.ID, b.ID))
	})

	return result
}
