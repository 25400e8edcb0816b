// Package split provides the A/B node that routes contacts by weighted random draw.
package split

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

const (
	HandleA = "a"
	HandleB = "b"
)

// Handler draws uniformly in [0,100) and takes branch a when the draw is
// below the node's percentage.
type Handler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewHandler uses deps.Rand when set, else the runtime's shared source.
func NewHandler(deps protocol.Dependencies) *Handler {
	return &Handler{rng: deps.Rand}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeSplit
}

func (h *Handler) Handle(_ context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Split()
	if data == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s", models.ErrInvalidNodeData, env.Node.ID)
	}

	handle := HandleB
	if h.draw() < data.SplitPercentage {
		handle = HandleA
	}

	next := env.Graph.NextByHandle(env.Node.ID, handle)
	if next == "" {
		next = env.Graph.Next(env.Node.ID)
	}

	return protocol.Advance(next), nil
}

func (h *Handler) draw() float64 {
	if h.rng == nil {
		return rand.Float64() * 100
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	return h.rng.Float64() * 100
}
