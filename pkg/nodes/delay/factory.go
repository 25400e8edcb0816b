package delay

import (
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewHandler(), nil
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeDelay
}

func (f *Factory) Name() string {
	return "Wait"
}

func (f *Factory) Description() string {
	return "Pauses the contact for a number of minutes, hours or days before moving on."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":    "integer",
				"minimum": 1,
			},
			"unit": map[string]any{
				"type": "string",
				"enum": []string{string(models.DelayMinutes), string(models.DelayHours), string(models.DelayDays)},
			},
		},
		"required": []string{"value", "unit"},
	}
}
