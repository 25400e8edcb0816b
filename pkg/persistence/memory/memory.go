// Package memory provides a goroutine-safe in-process persistence implementation
// backed by maps. It is used by tests and by local runs with a memory:// URL.
package memory

import (
	"context"
	"sync"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

// Persistence keeps every repository's state behind one lock so that claims
// and conditional inserts are atomic.
type Persistence struct {
	mu sync.RWMutex

	workflows    map[string]*models.Workflow
	executions   map[string]*models.Execution
	queue        map[string]*models.QueuedEmail
	events       []*models.DeliverabilityEvent
	suppressions map[string]*models.SuppressionRecord
	contacts     map[string]*models.Contact
	tenants      map[string]*models.Tenant
	templates    map[string]*models.EmailTemplate
}

var _ persistence.Persistence = (*Persistence)(nil)

func NewPersistence() *Persistence {
	return &Persistence{
		workflows:    make(map[string]*models.Workflow),
		executions:   make(map[string]*models.Execution),
		queue:        make(map[string]*models.QueuedEmail),
		suppressions: make(map[string]*models.SuppressionRecord),
		contacts:     make(map[string]*models.Contact),
		tenants:      make(map[string]*models.Tenant),
		templates:    make(map[string]*models.EmailTemplate),
	}
}

func (p *Persistence) Workflows() persistence.WorkflowRepository {
	return &workflowRepository{p}
}

func (p *Persistence) Executions() persistence.ExecutionRepository {
	return &executionRepository{p}
}

func (p *Persistence) Queue() persistence.QueueRepository {
	return &queueRepository{p}
}

func (p *Persistence) Deliverability() persistence.DeliverabilityRepository {
	return &deliverabilityRepository{p}
}

func (p *Persistence) Contacts() persistence.ContactRepository {
	return &contactRepository{p}
}

func (p *Persistence) Tenants() persistence.TenantRepository {
	return &tenantRepository{p}
}

func (p *Persistence) Templates() persistence.TemplateRepository {
	return &templateRepository{p}
}

func (p *Persistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *Persistence) Close(_ context.Context) error {
	return nil
}

func scopedKey(tenantID, id string) string {
	return tenantID + "/" + id
}
