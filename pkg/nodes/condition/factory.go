package condition

import (
	"fmt"

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
	return models.NodeTypeCondition
}

func (f *Factory) Name() string {
	return "Condition"
}

func (f *Factory) Description() string {
	return "Routes the contact through the yes or no branch depending on engagement, tags, purchases or an expression."
}

// ValidateNode compiles expression conditions so syntax errors surface when
// the workflow is saved.
func (f *Factory) ValidateNode(node *models.Node) error {
	data := node.Condition()
	if data == nil || data.ConditionType != models.ConditionExpression {
		return nil
	}

	_, err := Compile(data.Value)
	if err != nil {
		return fmt.Errorf("%w: node %s: %w", models.ErrInvalidNodeData, node.ID, err)
	}

	return nil
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"condition_type": map[string]any{
				"type": "string",
				"enum": []string{
					string(models.ConditionOpenedEmail),
					string(models.ConditionClickedLink),
					string(models.ConditionHasTag),
					string(models.ConditionPurchasedProduct),
					string(models.ConditionExpression),
				},
			},
			"value": map[string]any{
				"type":        "string",
				"description": "Tag name, product id, or an expression over contact, data and email.",
				"examples": []string{
					"vip",
					`contact.emails_opened > 2 && "vip" in contact.tags`,
					`data.amount >= 100`,
				},
			},
		},
		"required": []string{"condition_type"},
	}
}
