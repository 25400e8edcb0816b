package webhook

import (
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewHandler(deps), nil
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeWebhook
}

func (f *Factory) Name() string {
	return "Webhook"
}

func (f *Factory) Description() string {
	return "Posts the contact and execution context as JSON to an external URL. Failures do not stop the workflow."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"webhook_url": map[string]any{
				"type":    "string",
				"pattern": "^https?://",
			},
		},
		"required": []string{"webhook_url"},
	}
}
