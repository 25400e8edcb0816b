// Package webhook provides the node that notifies an external URL about a contact's progress.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

const (
	EventName      = "workflow_webhook"
	DefaultTimeout = 10 * time.Second
)

// Payload is the JSON body posted to the webhook URL.
type Payload struct {
	Event         string          `json:"event"`
	WorkflowID    string          `json:"workflowId"`
	ExecutionID   string          `json:"executionId"`
	Contact       *models.Contact `json:"contact"`
	Email         string          `json:"email"`
	ExecutionData map[string]any  `json:"executionData"`
	Timestamp     time.Time       `json:"timestamp"`
}

// Handler posts the payload once. Failures and non-2xx responses are logged
// and the execution advances anyway.
type Handler struct {
	client *http.Client
}

func NewHandler(deps protocol.Dependencies) *Handler {
	client := deps.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}

	return &Handler{client: client}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeWebhook
}

func (h *Handler) Handle(ctx context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Webhook()
	if data == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s", models.ErrInvalidNodeData, env.Node.ID)
	}

	next := protocol.Advance(env.Graph.Next(env.Node.ID))
	logger := env.Logger.With("node_id", env.Node.ID, "webhook_url", data.WebhookURL)

	status, err := h.post(ctx, data.WebhookURL, Payload{
		Event:         EventName,
		WorkflowID:    env.Workflow.ID,
		ExecutionID:   env.Execution.ID,
		Contact:       env.Contact,
		Email:         env.Execution.RecipientEmail,
		ExecutionData: env.Execution.ExecutionData,
		Timestamp:     env.Now,
	})
	if err != nil {
		logger.WarnContext(ctx, "Webhook call failed", "error", err)

		return next, nil
	}

	if status < 200 || status >= 300 {
		logger.WarnContext(ctx, "Webhook returned non-success status", "status", status)

		return next, nil
	}

	logger.DebugContext(ctx, "Webhook delivered", "status", status)

	return next, nil
}

func (h *Handler) post(ctx context.Context, url string, payload Payload) (int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to create webhook request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}

	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode, nil
}
