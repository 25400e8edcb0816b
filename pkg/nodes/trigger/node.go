// Package trigger provides the handler for the graph's entry node. Executions
// start past it, so it only advances if ever reached.
package trigger

import (
	"context"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

type Handler struct{}

func NewHandler() *Handler {
	return &Handler{}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (h *Handler) Handle(_ context.Context, env *protocol.Env) (protocol.Outcome, error) {
	return protocol.Advance(env.Graph.Next(env.Node.ID)), nil
}

type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(protocol.Dependencies) (protocol.NodeHandler, error) {
	return NewHandler(), nil
}

func (f *Factory) Type() models.NodeType {
	return models.NodeTypeTrigger
}

func (f *Factory) Name() string {
	return "Trigger"
}

func (f *Factory) Description() string {
	return "Entry point of the workflow. Its configuration lives on the workflow trigger."
}

func (f *Factory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
