package models

import (
	"slices"
	"strings"
)

type ContactStatus string

const (
	ContactActive       ContactStatus = "active"
	ContactBounced      ContactStatus = "bounced"
	ContactUnsubscribed ContactStatus = "unsubscribed"
)

// Contact is the engine's snapshot of a tenant's contact. Contact CRUD lives
// elsewhere; the engine only reads it, edits tags and bumps counters.
type Contact struct {
	ID                  string        `json:"id"`
	TenantID            string        `json:"tenant_id"`
	Email               string        `json:"email"`
	FirstName           string        `json:"first_name,omitempty"`
	LastName            string        `json:"last_name,omitempty"`
	Tags                []string      `json:"tags,omitempty"`
	Status              ContactStatus `json:"status"`
	EmailsSent          int64         `json:"emails_sent"`
	EmailsOpened        int64         `json:"emails_opened"`
	EmailsClicked       int64         `json:"emails_clicked"`
	PurchasedProductIDs []string      `json:"purchased_product_ids,omitempty"`
}

// Name is the display name, falling back to the address.
func (c *Contact) Name() string {
	name := strings.TrimSpace(c.FirstName + " " + c.LastName)
	if name == "" {
		return c.Email
	}

	return name
}

func (c *Contact) HasTag(tag string) bool {
	return slices.ContainsFunc(c.Tags, func(t string) bool { return strings.EqualFold(t, tag) })
}

func (c *Contact) HasPurchased(productID string) bool {
	return slices.Contains(c.PurchasedProductIDs, productID)
}

// Tenant holds the sender identity used for a tenant's outgoing mail.
type Tenant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	OwnerEmail string `json:"owner_email"`
	FromName   string `json:"from_name"`
	FromEmail  string `json:"from_email"`
	ReplyTo    string `json:"reply_to,omitempty"`
}

// EmailTemplate is stored content referenced by email nodes.
type EmailTemplate struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
	TextContent string `json:"text_content,omitempty"`
}
