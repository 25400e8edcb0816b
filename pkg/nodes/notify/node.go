// Package notify provides the node that emails the tenant owner about a contact's progress.
package notify

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

// Handler queues a transactional summary for the tenant owner. Failures are
// logged and never stop the execution.
type Handler struct {
	queue protocol.Enqueuer
}

func NewHandler(deps protocol.Dependencies) (*Handler, error) {
	if deps.Queue == nil {
		return nil, fmt.Errorf("%w: notify node needs a send queue", protocol.ErrMissingDependency)
	}

	return &Handler{queue: deps.Queue}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeNotify
}

func (h *Handler) Handle(ctx context.Context, env *protocol.Env) (protocol.Outcome, error) {
	next := protocol.Advance(env.Graph.Next(env.Node.ID))
	logger := env.Logger.With("node_id", env.Node.ID)

	tenant := env.Tenant
	if tenant == nil || tenant.OwnerEmail == "" || tenant.FromEmail == "" {
		logger.WarnContext(ctx, "Tenant has no owner or sender address, skipping notification")

		return next, nil
	}

	subject, body := Summary(env)

	_, err := h.queue.Enqueue(ctx, &models.QueuedEmail{
		TenantID:    tenant.ID,
		Source:      models.SourceTransactional,
		ExecutionID: env.Execution.ID,
		ToEmail:     tenant.OwnerEmail,
		FromName:    tenant.FromName,
		FromEmail:   tenant.FromEmail,
		Subject:     subject,
		HTMLContent: "<p>" + strings.ReplaceAll(html.EscapeString(body), "\n", "<br>") + "</p>",
		TextContent: body,
	})
	if err != nil {
		logger.WarnContext(ctx, "Failed to queue owner notification", "error", err)
	}

	return next, nil
}

// Summary builds the notification subject and plain-text body.
func Summary(env *protocol.Env) (string, string) {
	data := env.Node.Notify()
	if data == nil {
		data = &models.NotifyData{}
	}

	name := env.Execution.RecipientEmail
	if env.Contact != nil {
		name = env.Contact.Name()
	}

	subject := data.Subject
	if subject == "" {
		subject = fmt.Sprintf("Workflow update: %s", env.Workflow.Name)
	}

	var b strings.Builder

	if data.Message != "" {
		b.WriteString(data.Message)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, "Contact: %s <%s>\n", name, env.Execution.RecipientEmail)
	fmt.Fprintf(&b, "Workflow: %s\n", env.Workflow.Name)
	fmt.Fprintf(&b, "Step: %s\n", env.Node.ID)
	fmt.Fprintf(&b, "Time: %s", env.Now.Format("2006-01-02 15:04 MST"))

	return subject, b.String()
}
