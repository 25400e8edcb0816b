// Package action provides the node that adds or removes a contact tag.
package action

import (
	"context"
	"fmt"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/persistence"
	"github.com/dukex/mailflow/pkg/protocol"
)

// Handler mutates contact tags. The execution advances whether or not the
// mutation succeeds.
type Handler struct {
	contacts persistence.ContactRepository
}

func NewHandler(deps protocol.Dependencies) (*Handler, error) {
	if deps.Contacts == nil {
		return nil, fmt.Errorf("%w: action node needs a contact repository", protocol.ErrMissingDependency)
	}

	return &Handler{contacts: deps.Contacts}, nil
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeAction
}

func (h *Handler) Handle(ctx context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Action()
	if data == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s", models.ErrInvalidNodeData, env.Node.ID)
	}

	next := protocol.Advance(env.Graph.Next(env.Node.ID))
	logger := env.Logger.With("node_id", env.Node.ID, "action_type", data.ActionType, "tag", data.Value)

	if env.Contact == nil {
		logger.WarnContext(ctx, "No contact for execution, skipping tag action")

		return next, nil
	}

	var err error

	switch data.ActionType {
	case models.ActionAddTag:
		err = h.contacts.AddTag(ctx, env.Contact.TenantID, env.Contact.ID, data.Value)
	case models.ActionRemoveTag:
		err = h.contacts.RemoveTag(ctx, env.Contact.TenantID, env.Contact.ID, data.Value)
	default:
		logger.WarnContext(ctx, "Unknown action type, skipping")

		return next, nil
	}

	if err != nil {
		logger.WarnContext(ctx, "Tag action failed", "error", err)
	}

	return next, nil
}
