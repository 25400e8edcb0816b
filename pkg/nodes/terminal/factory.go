package terminal

import (
	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type GoalFactory struct{}

func NewGoalFactory() protocol.NodeFactory {
	return &GoalFactory{}
}

func (f *GoalFactory) Create(protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewGoalHandler(), nil
}

func (f *GoalFactory) Type() models.NodeType {
	return models.NodeTypeGoal
}

func (f *GoalFactory) Name() string {
	return "Goal"
}

func (f *GoalFactory) Description() string {
	return "Marks the contact as converted and ends the workflow."
}

func (f *GoalFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"goal_name": map[string]any{"type": "string"},
		},
	}
}

type StopFactory struct{}

func NewStopFactory() protocol.NodeFactory {
	return &StopFactory{}
}

func (f *StopFactory) Create(protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewStopHandler(), nil
}

func (f *StopFactory) Type() models.NodeType {
	return models.NodeTypeStop
}

func (f *StopFactory) Name() string {
	return "Stop"
}

func (f *StopFactory) Description() string {
	return "Ends the workflow for the contact."
}

func (f *StopFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
