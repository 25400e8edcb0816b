package memory

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
)

type contactRepository struct {
	p *Persistence
}

func cloneContact(c *models.Contact) *models.Contact {
	clone := *c
	clone.Tags = slices.Clone(c.Tags)
	clone.PurchasedProductIDs = slices.Clone(c.PurchasedProductIDs)

	return &clone
}

func (r *contactRepository) Save(_ context.Context, contact *models.Contact) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := cloneContact(contact)
	stored.Email = models.NormalizeEmail(stored.Email)

	if stored.Status == "" {
		stored.Status = models.ContactActive
	}

	r.p.contacts[scopedKey(contact.TenantID, contact.ID)] = stored

	return nil
}

func (r *contactRepository) GetByID(_ context.Context, tenantID, id string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	c, ok := r.p.contacts[scopedKey(tenantID, id)]
	if !ok {
		return nil, persistence.ErrContactNotFound
	}

	return cloneContact(c), nil
}

func (r *contactRepository) GetByEmail(_ context.Context, tenantID, email string) (*models.Contact, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	c := r.byEmailLocked(tenantID, email)
	if c == nil {
		return nil, persistence.ErrContactNotFound
	}

	return cloneContact(c), nil
}

func (r *contactRepository) byEmailLocked(tenantID, email string) *models.Contact {
	email = models.NormalizeEmail(email)

	for _, c := range r.p.contacts {
		if c.TenantID == tenantID && c.Email == email {
			return c
		}
	}

	return nil
}

func (r *contactRepository) AddTag(_ context.Context, tenantID, contactID, tag string) error {
	return r.mutate(tenantID, contactID, func(c *models.Contact) {
		if !c.HasTag(tag) {
			c.Tags = append(c.Tags, tag)
		}
	})
}

func (r *contactRepository) RemoveTag(_ context.Context, tenantID, contactID, tag string) error {
	return r.mutate(tenantID, contactID, func(c *models.Contact) {
		c.Tags = slices.DeleteFunc(c.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
	})
}

func (r *contactRepository) IncrementSent(_ context.Context, tenantID, contactID string) error {
	return r.mutate(tenantID, contactID, func(c *models.Contact) {
		c.EmailsSent++
	})
}

func (r *contactRepository) SetStatusByEmail(_ context.Context, tenantID, email string, status models.ContactStatus) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if c := r.byEmailLocked(tenantID, email); c != nil {
		c.Status = status
	}

	return nil
}

func (r *contactRepository) mutate(tenantID, contactID string, fn func(*models.Contact)) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	c, ok := r.p.contacts[scopedKey(tenantID, contactID)]
	if !ok {
		return persistence.ErrContactNotFound
	}

	fn(c)

	return nil
}

type tenantRepository struct {
	p *Persistence
}

func (r *tenantRepository) Save(_ context.Context, tenant *models.Tenant) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := *tenant
	r.p.tenants[tenant.ID] = &stored

	return nil
}

func (r *tenantRepository) GetByID(_ context.Context, id string) (*models.Tenant, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	t, ok := r.p.tenants[id]
	if !ok {
		return nil, persistence.ErrTenantNotFound
	}

	clone := *t

	return &clone, nil
}

type templateRepository struct {
	p *Persistence
}

func (r *templateRepository) Save(_ context.Context, template *models.EmailTemplate) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := *template
	r.p.templates[scopedKey(template.TenantID, template.ID)] = &stored

	return nil
}

func (r *templateRepository) GetByID(_ context.Context, tenantID, id string) (*models.EmailTemplate, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	t, ok := r.p.templates[scopedKey(tenantID, id)]
	if !ok {
		return nil, persistence.ErrTemplateNotFound
	}

	clone := *t

	return &clone, nil
}

type deliverabilityRepository struct {
	p *Persistence
}

func (r *deliverabilityRepository) RecordEvent(_ context.Context, event *models.DeliverabilityEvent) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	stored := *event
	stored.Email = models.NormalizeEmail(stored.Email)
	r.p.events = append(r.p.events, &stored)

	return nil
}

func (r *deliverabilityRepository) Suppress(_ context.Context, record *models.SuppressionRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	key := scopedKey(record.TenantID, models.NormalizeEmail(record.Email))
	if _, exists := r.p.suppressions[key]; exists {
		return nil
	}

	stored := *record
	stored.Email = models.NormalizeEmail(stored.Email)
	r.p.suppressions[key] = &stored

	return nil
}

func (r *deliverabilityRepository) Suppression(_ context.Context, tenantID, email string) (*models.SuppressionRecord, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	rec, ok := r.p.suppressions[scopedKey(tenantID, models.NormalizeEmail(email))]
	if !ok {
		return nil, persistence.ErrSuppressionNotFound
	}

	clone := *rec

	return &clone, nil
}

func (r *deliverabilityRepository) EventCounts(_ context.Context, tenantID string, since time.Time) (map[models.DeliverabilityEventType]int64, error) {
	r.p.mu.RLock()
	defer r.p.mu.RUnlock()

	counts := map[models.DeliverabilityEventType]int64{}

	for _, e := range r.p.events {
		if e.TenantID == tenantID && !e.OccurredAt.Before(since) {
			counts[e.Type]++
		}
	}

	return counts, nil
}
