// Package transport is the boundary to the email provider: a batch of fully
// rendered messages goes out, one result per message comes back.
package transport

import (
	"context"

	"github.com/dukex/mailflow/pkg/models"
)

// Message is one rendered email handed to the provider.
type Message struct {
	ID        string            `json:"id"`
	TenantID  string            `json:"tenant_id"`
	To        string            `json:"to"`
	FromName  string            `json:"from_name,omitempty"`
	FromEmail string            `json:"from_email"`
	ReplyTo   string            `json:"reply_to,omitempty"`
	Subject   string            `json:"subject"`
	HTML      string            `json:"html"`
	Text      string            `json:"text,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
}

// Result reports the outcome of one message. Messages missing from a
// response are treated as failed by the caller.
type Result struct {
	ID         string `json:"id"`
	Success    bool   `json:"success"`
	ProviderID string `json:"provider_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Transport submits batches to an email provider. A returned error means
// the whole batch failed.
type Transport interface {
	SendBatch(ctx context.Context, messages []Message) ([]Result, error)
}

// FromQueued converts a queued email into a transport message.
func FromQueued(q *models.QueuedEmail) Message {
	return Message{
		ID:        q.ID,
		TenantID:  q.TenantID,
		To:        q.ToEmail,
		FromName:  q.FromName,
		FromEmail: q.FromEmail,
		ReplyTo:   q.ReplyTo,
		Subject:   q.Subject,
		HTML:      q.HTMLContent,
		Text:      q.TextContent,
		Headers:   q.Headers,
	}
}
