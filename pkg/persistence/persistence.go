// Package persistence provides the storage abstraction for workflows, executions,
// the send queue and deliverability state.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/mailflow/pkg/models"
)

type Persistence interface {
	Workflows() WorkflowRepository
	Executions() ExecutionRepository
	Queue() QueueRepository
	Deliverability() DeliverabilityRepository
	Contacts() ContactRepository
	Tenants() TenantRepository
	Templates() TemplateRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	// Save inserts or replaces a workflow definition.
	Save(ctx context.Context, workflow *models.Workflow) error
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*models.Workflow, error)
	// ListActiveByTrigger returns the tenant's active workflows with the given trigger type.
	ListActiveByTrigger(ctx context.Context, tenantID string, triggerType models.TriggerType) ([]*models.Workflow, error)
	SetActive(ctx context.Context, id string, active bool) error
	// RecordEnrollment bumps the approximate totalExecutions/lastExecuted counters.
	RecordEnrollment(ctx context.Context, id string, at time.Time) error
}

type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// HasActive reports whether a non-terminal execution exists for the pair.
	HasActive(ctx context.Context, workflowID, recipientEmail string) (bool, error)
	// CreateIfNotActive inserts the execution unless a non-terminal one already
	// exists for (workflowID, recipientEmail). Implementations without a
	// transactional guard may let near-simultaneous inserts both succeed.
	CreateIfNotActive(ctx context.Context, execution *models.Execution) (bool, error)
	// ClaimDue moves up to limit pending executions with scheduledFor <= now to
	// running, setting startedAt, and returns them.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)
	// Update writes back the engine-owned fields of an execution.
	Update(ctx context.Context, execution *models.Execution) error
	// ResetStale returns executions left running since before cutoff to pending.
	ResetStale(ctx context.Context, cutoff time.Time) (int64, error)
	StatsByWorkflow(ctx context.Context, workflowID string) (models.ExecutionStats, error)
}

type QueueRepository interface {
	Enqueue(ctx context.Context, email *models.QueuedEmail) error
	GetByIDs(ctx context.Context, ids []string) ([]*models.QueuedEmail, error)
	// TenantsWithDue lists tenants holding queued messages whose nextRetryAt has passed.
	TenantsWithDue(ctx context.Context, now time.Time) ([]string, error)
	// ClaimBatch moves up to limit due messages of the tenant to sending,
	// incrementing attempts, ordered by priority then queuedAt.
	ClaimBatch(ctx context.Context, tenantID string, now time.Time, limit int) ([]*models.QueuedEmail, error)
	// MarkSent, Requeue and MarkFailed only touch messages still sending.
	MarkSent(ctx context.Context, ids []string, at time.Time) error
	// Requeue returns a message to queued with a retry time.
	Requeue(ctx context.Context, id string, nextRetryAt time.Time, lastError string) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	// ResetStale releases messages claimed before cutoff: back to queued while
	// attempts remain, failed otherwise.
	ResetStale(ctx context.Context, cutoff time.Time, lastError string) (int64, error)
	CountSent(ctx context.Context, tenantID string, since time.Time) (int64, error)
}

type DeliverabilityRepository interface {
	RecordEvent(ctx context.Context, event *models.DeliverabilityEvent) error
	// Suppress stores a suppression; an existing suppression for the recipient is kept.
	Suppress(ctx context.Context, record *models.SuppressionRecord) error
	// Suppression returns the recipient's suppression, or ErrSuppressionNotFound.
	Suppression(ctx context.Context, tenantID, email string) (*models.SuppressionRecord, error)
	EventCounts(ctx context.Context, tenantID string, since time.Time) (map[models.DeliverabilityEventType]int64, error)
}

type ContactRepository interface {
	Save(ctx context.Context, contact *models.Contact) error
	GetByID(ctx context.Context, tenantID, id string) (*models.Contact, error)
	GetByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error)
	AddTag(ctx context.Context, tenantID, contactID, tag string) error
	RemoveTag(ctx context.Context, tenantID, contactID, tag string) error
	IncrementSent(ctx context.Context, tenantID, contactID string) error
	// SetStatusByEmail updates the status of the contact with this address, if any.
	SetStatusByEmail(ctx context.Context, tenantID, email string, status models.ContactStatus) error
}

type TenantRepository interface {
	Save(ctx context.Context, tenant *models.Tenant) error
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

type TemplateRepository interface {
	Save(ctx context.Context, template *models.EmailTemplate) error
	GetByID(ctx context.Context, tenantID, id string) (*models.EmailTemplate, error)
}
