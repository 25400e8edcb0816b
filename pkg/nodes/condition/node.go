// Package condition provides the branching node that routes contacts on a predicate.
package condition

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Branch handles accepted on outgoing edges, case-insensitive.
var (
	YesHandles = []string{"yes", "true"}
	NoHandles  = []string{"no", "false"}
)

var ErrNotBoolean = errors.New("condition expression did not return a boolean")

// Handler evaluates the node predicate and picks the matching branch.
// Compiled expressions are cached and shared across goroutines.
type Handler struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

func NewHandler() *Handler {
	return &Handler{cache: make(map[string]*vm.Program)}
}

func (h *Handler) Type() models.NodeType {
	return models.NodeTypeCondition
}

func (h *Handler) Handle(_ context.Context, env *protocol.Env) (protocol.Outcome, error) {
	data := env.Node.Condition()
	if data == nil {
		return protocol.Outcome{}, fmt.Errorf("%w: node %s", models.ErrInvalidNodeData, env.Node.ID)
	}

	result, err := h.evaluate(data, env)
	if err != nil {
		return protocol.Outcome{}, err
	}

	handles := NoHandles
	if result {
		handles = YesHandles
	}

	next := env.Graph.NextByHandle(env.Node.ID, handles...)
	if next == "" {
		next = env.Graph.DefaultNext(env.Node.ID)
	}

	env.Logger.Debug("Condition evaluated", "node_id", env.Node.ID, "condition_type", data.ConditionType, "result", result)

	if next == "" {
		return protocol.Complete("no branch for condition result"), nil
	}

	return protocol.Advance(next), nil
}

func (h *Handler) evaluate(data *models.ConditionData, env *protocol.Env) (bool, error) {
	contact := env.Contact

	switch data.ConditionType {
	case models.ConditionOpenedEmail:
		return contact != nil && contact.EmailsOpened > 0, nil
	case models.ConditionClickedLink:
		return contact != nil && contact.EmailsClicked > 0, nil
	case models.ConditionHasTag:
		return contact != nil && contact.HasTag(data.Value), nil
	case models.ConditionPurchasedProduct:
		if contact != nil && contact.HasPurchased(data.Value) {
			return true, nil
		}

		productID, _ := env.Execution.ExecutionData["product_id"].(string)

		return productID == data.Value, nil
	case models.ConditionExpression:
		return h.evaluateExpression(data.Value, Variables(env))
	default:
		return false, fmt.Errorf("%w: unknown condition type %q", models.ErrInvalidNodeData, data.ConditionType)
	}
}

func (h *Handler) evaluateExpression(expression string, vars map[string]any) (bool, error) {
	prg, err := h.program(expression)
	if err != nil {
		return false, err
	}

	out, err := vm.Run(prg, vars)
	if err != nil {
		return false, fmt.Errorf("condition expression %q failed: %w", expression, err)
	}

	result, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("%w: %q returned %T", ErrNotBoolean, expression, out)
	}

	return result, nil
}

func (h *Handler) program(expression string) (*vm.Program, error) {
	h.mu.RLock()
	prg, ok := h.cache[expression]
	h.mu.RUnlock()

	if ok {
		return prg, nil
	}

	prg, err := Compile(expression)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.cache[expression] = prg
	h.mu.Unlock()

	return prg, nil
}

// Compile checks the expression syntax. Variables are resolved at run time.
func Compile(expression string) (*vm.Program, error) {
	prg, err := expr.Compile(expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("condition expression %q: %w", expression, err)
	}

	return prg, nil
}

// Variables is the environment exposed to condition expressions.
func Variables(env *protocol.Env) map[string]any {
	vars := map[string]any{
		"email":     env.Execution.RecipientEmail,
		"tenant_id": env.Execution.TenantID,
		"data":      env.Execution.ExecutionData,
		"contact":   nil,
	}

	if c := env.Contact; c != nil {
		tags := c.Tags
		if tags == nil {
			tags = []string{}
		}

		purchased := c.PurchasedProductIDs
		if purchased == nil {
			purchased = []string{}
		}

		vars["contact"] = map[string]any{
			"id":                    c.ID,
			"email":                 c.Email,
			"first_name":            c.FirstName,
			"last_name":             c.LastName,
			"status":                string(c.Status),
			"tags":                  tags,
			"emails_sent":           c.EmailsSent,
			"emails_opened":         c.EmailsOpened,
			"emails_clicked":        c.EmailsClicked,
			"purchased_product_ids": purchased,
		}
	}

	return vars
}
