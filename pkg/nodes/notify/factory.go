package notify

import (
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(deps protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewHandler(deps)
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeNotify
}

func (f *Factory) Name() string {
	return "Notify Owner"
}

func (f *Factory) Description() string {
	return "Emails the account owner when a contact reaches this step."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"subject": map[string]any{"type": "string"},
			"message": map[string]any{"type": "string"},
		},
	}
}
