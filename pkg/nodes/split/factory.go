package split

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
	return models.NodeTypeSplit
}

func (f *Factory) Name() string {
	return "A/B Split"
}

func (f *Factory) Description() string {
	return "Sends split_percentage percent of contacts down branch a and the rest down branch b."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"split_percentage": map[string]any{
				"type":    "number",
				"minimum": 0,
				"maximum": 100,
			},
		},
		"required": []string{"split_percentage"},
	}
}
