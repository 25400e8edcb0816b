// Package email provides the node that personalizes content and hands it to the send queue.
package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/dukex/mailflow/pkg/template"
)

var ErrMissingSender = errors.New("email node has no sender address")

// Handler resolves content, personalizes it and enqueues one message.
type Handler struct {
	logger      *slog.Logger
	queue       protocol.Enqueuer
	contacts    persistence.ContactRepository
	templates   persistence.TemplateRepository
	unsubscribe protocol.Unsubscriber
}

func NewHandler(deps protocol.Dependencies) (*Handler, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("%w: email node needs a send queue", protocol.ErrMissingDependency)
	}

	return &Handler{
		logger:      deps.Logger,
		queue:       deps.Queue,
		contacts:    deps.Contacts,
		templates:   deps.Templates,
		unsubscribe: deps.Unsubscribe,
	}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeEmail
}

func (h *Handler) Handle(ctx context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Email()
	if data == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s", models.ErrInvalidNodeData, env.Node.ID)
	}

	next := env.Graph.Next(env.Node.ID)
	execution := env.Execution
	logger := env.Logger.With("node_id", env.Node.ID)

	content, err := h.resolve(ctx, execution.TenantID, data, logger)
	if err != nil {
		return protocol.Outcome{}, err
	}

	if content.Subject == "" || content.HTMLContent == "" {
		logger.WarnContext(ctx, "Email has no subject or body, skipping send")

		return protocol.Advance(next), nil
	}

	message, err := h.compose(env, data, content)
	if err != nil {
		return protocol.Outcome{}, err
	}

	id, err := h.queue.Enqueue(ctx, message)
	if err != nil {
		return protocol.Outcome{}, fmt.Errorf("failed to enqueue email: %w", err)
	}

	logger.InfoContext(ctx, "Email queued", "queued_email_id", id)

	if env.Contact != nil && h.contacts != nil {
		err = h.contacts.IncrementSent(ctx, env.Contact.TenantID, env.Contact.ID)
		if err != nil {
			logger.WarnContext(ctx, "Failed to increment contact sent count", "error", err)
		}
	}

	return protocol.Advance(next), nil
}

// resolve loads the referenced template, if any. Non-empty inline fields
// override the template's.
func (h *Handler) resolve(ctx context.Context, tenantID string, data *models.EmailData, logger *slog.Logger) (models.EmailTemplate, error) {
	content := models.EmailTemplate{
		Subject:     data.Subject,
		HTMLContent: data.HTMLContent,
		TextContent: data.TextContent,
	}

	if data.TemplateID == "" || h.templates == nil {
		return content, nil
	}

	tpl, err := h.templates.GetByID(ctx, tenantID, data.TemplateID)
	if err != nil {
		if errors.Is(err, persistence.ErrTemplateNotFound) {
			logger.WarnContext(ctx, "Email template not found, using inline content", "template_id", data.TemplateID)

			return content, nil
		}

		return content, fmt.Errorf("failed to load template %s: %w", data.TemplateID, err)
	}

	if content.Subject == "" {
		content.Subject = tpl.Subject
	}

	if content.HTMLContent == "" {
		content.HTMLContent = tpl.HTMLContent
	}

	if content.TextContent == "" {
		content.TextContent = tpl.TextContent
	}

	return content, nil
}

func (h *Handler) compose(env *protocol.Env, data *models.EmailData, content models.EmailTemplate) (*models.QueuedEmail, error) {
	execution := env.Execution
	to := execution.RecipientEmail

	message := &models.QueuedEmail{
		TenantID:    execution.TenantID,
		Source:      models.SourceWorkflow,
		ExecutionID: execution.ID,
		ToEmail:     to,
		FromName:    data.FromName,
		FromEmail:   data.FromEmail,
		ReplyTo:     data.ReplyTo,
		Priority:    data.Priority,
	}

	if tenant := env.Tenant; tenant != nil {
		if message.FromEmail == "" {
			message.FromEmail = tenant.FromEmail
		}

		if message.FromName == "" {
			message.FromName = tenant.FromName
		}

		if message.ReplyTo == "" {
			message.ReplyTo = tenant.ReplyTo
		}
	}

	if message.FromEmail == "" {
		return nil, fmt.Errorf("%w: node %s", ErrMissingSender, env.Node.ID)
	}

	var link string

	if h.unsubscribe != nil {
		link = h.unsubscribe.Link(execution.TenantID, to)
		message.Headers = h.unsubscribe.Headers(execution.TenantID, to)
	}

	vars := template.VarsFor(env.Contact, to, execution.ExecutionData, link)

	message.Subject = template.Render(content.Subject, vars)
	message.HTMLContent = template.Render(content.HTMLContent, vars)
	message.TextContent = template.Render(content.TextContent, vars)

	return message, nil
}
