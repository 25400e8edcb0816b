package action

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
	return models.NodeTypeAction
}

func (f *Factory) Name() string {
	return "Update Tags"
}

func (f *Factory) Description() string {
	return "Adds or removes a tag on the contact."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"action_type": map[string]any{
				"type": "string",
				"enum": []string{string(models.ActionAddTag), string(models.ActionRemoveTag)},
			},
			"value": map[string]any{
				"type":      "string",
				"minLength": 1,
			},
		},
		"required": []string{"action_type", "value"},
	}
}
