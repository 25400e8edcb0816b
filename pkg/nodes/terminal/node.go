// Package terminal provides the goal and stop nodes, which end an execution.
package terminal

import (
	"context"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

// Handler completes the execution immediately.
type Handler struct {
	nodeType models.NodeType
}

func NewGoalHandler() *Handler {
	return &Handler{nodeType: models.NodeTypeGoal}
}

func NewStopHandler() *Handler {
	return &Handler{nodeType: models.NodeTypeStop}
}

func (h *Handler) Type() models.NodeType {
	return h.nodeType
}

func (h *Handler) Handle(_ context.Context, env *protocol.Env) (protocol.Outcome, error) {
	if goal := env.Node.Goal(); goal != nil {
		reason := "goal reached"
		if goal.GoalName != "" {
			reason = "goal reached: " + goal.GoalName
		}

		return protocol.Complete(reason), nil
	}

	return protocol.Complete("stopped"), nil
}
