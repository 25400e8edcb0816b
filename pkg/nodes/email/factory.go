package email

import (
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

// Factory creates email node handlers.
type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewHandler(deps)
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeEmail
}

func (f *Factory) Name() string {
	return "Send Email"
}

func (f *Factory) Description() string {
	return "Personalizes a template or inline content for the contact and queues it for delivery."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"template_id": map[string]any{
				"type":        "string",
				"description": "Stored template to use. Inline fields override its content.",
			},
			"subject": map[string]any{
				"type":        "string",
				"description": "Subject line. Supports {{firstName}}, {{lastName}}, {{name}}, {{email}} and {{unsubscribeLink}}.",
			},
			"html_content": map[string]any{"type": "string"},
			"text_content": map[string]any{"type": "string"},
			"from_name":    map[string]any{"type": "string"},
			"from_email": map[string]any{
				"type":   "string",
				"format": "email",
			},
			"reply_to": map[string]any{
				"type":   "string",
				"format": "email",
			},
			"priority": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": "Queue priority, lower is more urgent. Zero uses the queue default.",
			},
		},
	}
}
