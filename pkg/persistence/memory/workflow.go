package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

type workflowRepository struct {
	p *Persistence
}

func (r *workflowRepository) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := *workflow
	if existing, ok := r.p.workflows[workflow.ID]; ok {
		stored.TotalExecutions = existing.TotalExecutions
		stored.LastExecuted = existing.LastExecuted
	}

	r.p.workflows[workflow.ID] = &stored

	return nil
}

func (r *workflowRepository) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	w, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	clone := *w

	return &clone, nil
}

func (r *workflowRepository) ListByTenant(_ context.Context, tenantID string) ([]*models.Workflow, error) {
	return r.list(func(w *models.Workflow) bool { return w.TenantID == tenantID }), nil
}

func (r *workflowRepository) ListActiveByTrigger(_ context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error) {
	return r.list(func(w *models.Workflow) bool {
		return w.TenantID == tenantID && w.IsActive && w.Trigger.Type == triggerType
	}), nil
}

func (r *workflowRepository) SetActive(_ context.Context, id string, active bool) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	w, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewWorkflowError("SetActive", id, persistence.ErrWorkflowNotFound)
	}

	w.IsActive = active
	w.UpdatedAt = time.Now().UTC()

	return nil
}

func (r *workflowRepository) RecordEnrollment(_ context.Context, id string, at time.Time) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	w, ok := r.p.workflows[id]
	if !ok {
		return persistence.NewWorkflowError("RecordEnrollment", id, persistence.ErrWorkflowNotFound)
	}

	w.TotalExecutions++
	w.LastExecuted = &at

	return nil
}

func (r *workflowRepository) list(keep func(*models.Workflow) bool) []*models.Workflow {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	var result []*models.Workflow

	for _, w := range r.p.workflows {
		if keep(w) {
			clone := *w
			result = append(result, &clone)
		}
	}

	slices.SortFunc(result, func(a, b *models.Workflow) int {
		return strings.Compare(a.ID, b.ID)
	})

	return result
}
