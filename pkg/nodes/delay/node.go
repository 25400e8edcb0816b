// Package delay provides the node that suspends an execution for a fixed duration.
package delay

import (
	"context"
	"fmt"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeDelay
}

// Handle schedules the next node value × unit from now.
func (h *Handler) Handle(_ context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Delay()
	if data == nil || data.Duration() <= 0 {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s has no positive delay", models.ErrInvalidNodeData, env.Node.ID)
	}

	return protocol.Wait(env.Graph.Next(env.Node.ID), data.Duration()), nil
}
