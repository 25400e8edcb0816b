// Package protocol defines the contracts between the execution engine and
// the node handlers it dispatches to.
package protocol

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukex/mailflow/pkg/models"
)

// NodeHandler evaluates one node type for one execution.
type NodeHandler interface {
	Type() models.NodeType
	Handle(ctx context.Context, env *Env) (Outcome, error)
}

// NodeFactory creates handlers and provides metadata about the node type.
type NodeFactory interface {
	// Create builds a handler bound to the given collaborators
	Create(deps Dependencies) (NodeHandler, error)

	// Type returns the node type this factory handles
	Type() models.NodeType

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Schema returns the JSON schema of the node's data payload
	Schema() map[string]any
}

// NodeValidator is implemented by factories that check node data beyond its
// JSON schema, such as compiling an expression.
type NodeValidator interface {
	ValidateNode(node *models.Node) error
}

// Env is everything a handler may read while evaluating a node. Contact and
// Tenant are nil when the engine could not resolve them.
type Env struct {
	Execution *models.Execution
	Workflow  *models.Workflow
	Graph     *models.Graph
	Node      *models.Node
	Contact   *models.Contact
	Tenant    *models.Tenant
	Now       time.Time
	Logger    *slog.Logger
}

// Outcome is the result of evaluating a node. An empty Next without Complete
// means the node had nowhere to go, which also completes the execution.
type Outcome struct {
	Next     string
	Delay    time.Duration
	Complete bool
	// Reason is a short label recorded with terminal outcomes, e.g. the goal name.
	Reason string
}

// Advance moves to next immediately.
func Advance(next string) Outcome {
	return Outcome{Next: next}
}

// Wait moves to next after delay.
func Wait(next string, delay time.Duration) Outcome {
	return Outcome{Next: next, Delay: delay}
}

// Complete ends the execution.
func Complete(reason string) Outcome {
	return Outcome{Complete: true, Reason: reason}
}

// IsTerminal reports whether the outcome ends the execution.
func (o Outcome) IsTerminal() bool {
	return o.Complete || o.Next == ""
}
