package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/lib/pq"
)

type ContactRepository struct {
	db *sql.DB
}

func NewContactRepository(db *sql.DB) *ContactRepository {
	return &ContactRepository{db: db}
}

const contactColumns = `tenant_id, id, email, first_name, last_name, tags, status, emails_sent, emails_opened, emails_clicked, purchased_product_ids`

func (r *ContactRepository) Save(ctx context.Context, contact *models.Contact) error {
	status := contact.Status
	if status == "" {
		status = models.ContactActive
	}

	tags := contact.Tags
	if tags == nil {
		tags = []string{}
	}

	purchased := contact.PurchasedProductIDs
	if purchased == nil {
		purchased = []string{}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO contacts (`+contactColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			email = EXCLUDED.email,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			tags = EXCLUDED.tags,
			status = EXCLUDED.status,
			emails_sent = EXCLUDED.emails_sent,
			emails_opened = EXCLUDED.emails_opened,
			emails_clicked = EXCLUDED.emails_clicked,
			purchased_product_ids = EXCLUDED.purchased_product_ids`,
		contact.TenantID,
		contact.ID,
		models.NormalizeEmail(contact.Email),
		nullString(contact.FirstName),
		nullString(contact.LastName),
		pq.Array(tags),
		string(status),
		contact.EmailsSent,
		contact.EmailsOpened,
		contact.EmailsClicked,
		pq.Array(purchased),
	)
	if err != nil {
		return fmt.Errorf("failed to save contact %s: %w", contact.ID, err)
	}

	return nil
}

func (r *ContactRepository) GetByID(ctx context.Context, tenantID, id string) (*models.Contact, error) {
	return r.get(ctx, "SELECT "+contactColumns+" FROM contacts WHERE tenant_id = $1 AND id = $2", tenantID, id)
}

func (r *ContactRepository) GetByEmail(ctx context.Context, tenantID, email string) (*models.Contact, error) {
	return r.get(ctx,
		"SELECT "+contactColumns+" FROM contacts WHERE tenant_id = $1 AND email = $2 LIMIT 1",
		tenantID, models.NormalizeEmail(email),
	)
}

func (r *ContactRepository) AddTag(ctx context.Context, tenantID, contactID, tag string) error {
	return r.exec(ctx, `
		UPDATE contacts SET tags = array_append(tags, $3)
		WHERE tenant_id = $1 AND id = $2 AND NOT ($3 = ANY(tags))`,
		tenantID, contactID, tag,
	)
}

func (r *ContactRepository) RemoveTag(ctx context.Context, tenantID, contactID, tag string) error {
	return r.exec(ctx,
		"UPDATE contacts SET tags = array_remove(tags, $3) WHERE tenant_id = $1 AND id = $2",
		tenantID, contactID, tag,
	)
}

func (r *ContactRepository) IncrementSent(ctx context.Context, tenantID, contactID string) error {
	return r.exec(ctx,
		"UPDATE contacts SET emails_sent = emails_sent + 1 WHERE tenant_id = $1 AND id = $2",
		tenantID, contactID,
	)
}

func (r *ContactRepository) SetStatusByEmail(ctx context.Context, tenantID, email string, status models.ContactStatus) error {
	return r.exec(ctx,
		"UPDATE contacts SET status = $3 WHERE tenant_id = $1 AND email = $2",
		tenantID, models.NormalizeEmail(email), string(status),
	)
}

func (r *ContactRepository) exec(ctx context.Context, query string, args ...any) error {
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update contact: %w", err)
	}

	return nil
}

func (r *ContactRepository) get(ctx context.Context, query string, args ...any) (*models.Contact, error) {
	var (
		contact             models.Contact
		firstName, lastName sql.NullString
		status              string
		tags, purchasedIDs  pq.StringArray
	)

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&contact.TenantID,
		&contact.ID,
		&contact.Email,
		&firstName,
		&lastName,
		&tags,
		&status,
		&contact.EmailsSent,
		&contact.EmailsOpened,
		&contact.EmailsClicked,
		&purchasedIDs,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrContactNotFound
		}

		return nil, fmt.Errorf("failed to scan contact: %w", err)
	}

	contact.FirstName = firstName.String
	contact.LastName = lastName.String
	contact.Status = models.ContactStatus(status)
	contact.Tags = tags
	contact.PurchasedProductIDs = purchasedIDs

	return &contact, nil
}

type TenantRepository struct {
	db *sql.DB
}

func NewTenantRepository(db *sql.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Save(ctx context.Context, tenant *models.Tenant) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, owner_email, from_name, from_email, reply_to)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			owner_email = EXCLUDED.owner_email,
			from_name = EXCLUDED.from_name,
			from_email = EXCLUDED.from_email,
			reply_to = EXCLUDED.reply_to`,
		tenant.ID, tenant.Name, tenant.OwnerEmail, tenant.FromName, tenant.FromEmail, nullString(tenant.ReplyTo),
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant %s: %w", tenant.ID, err)
	}

	return nil
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	var (
		tenant  models.Tenant
		replyTo sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, owner_email, from_name, from_email, reply_to FROM tenants WHERE id = $1", id,
	).Scan(&tenant.ID, &tenant.Name, &tenant.OwnerEmail, &tenant.FromName, &tenant.FromEmail, &replyTo)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTenantNotFound
		}

		return nil, fmt.Errorf("failed to scan tenant: %w", err)
	}

	tenant.ReplyTo = replyTo.String

	return &tenant, nil
}

type TemplateRepository struct {
	db *sql.DB
}

func NewTemplateRepository(db *sql.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Save(ctx context.Context, template *models.EmailTemplate) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO email_templates (tenant_id, id, subject, html_content, text_content)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, id) DO UPDATE SET
			subject = EXCLUDED.subject,
			html_content = EXCLUDED.html_content,
			text_content = EXCLUDED.text_content`,
		template.TenantID, template.ID, template.Subject, template.HTMLContent, nullString(template.TextContent),
	)
	if err != nil {
		return fmt.Errorf("failed to save template %s: %w", template.ID, err)
	}

	return nil
}

func (r *TemplateRepository) GetByID(ctx context.Context, tenantID, id string) (*models.EmailTemplate, error) {
	var (
		template    models.EmailTemplate
		textContent sql.NullString
	)

	err := r.db.QueryRowContext(ctx,
		"SELECT tenant_id, id, subject, html_content, text_content FROM email_templates WHERE tenant_id = $1 AND id = $2",
		tenantID, id,
	).Scan(&template.TenantID, &template.ID, &template.Subject, &template.HTMLContent, &textContent)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrTemplateNotFound
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	template.TextContent = textContent.String

	return &template, nil
}
