// Package registry keeps the node factories known to the engine and
// validates workflow definitions against their data schemas.
package registry

import (
	"cmp"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
	"github.com/xeipuuv/gojsonschema"
)

var (
	ErrNodeNotRegistered = errors.New("node type not registered")
	ErrSchemaViolation   = errors.New("node data does not match schema")
)

type Registry struct {
	logger    *slog.Logger
	factories map[models.NodeType]protocol.NodeFactory
	schemas   map[models.NodeType]*gojsonschema.Schema
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		logger:    log,
		factories: make(map[models.NodeType]protocol.NodeFactory),
		schemas:   make(map[models.NodeType]*gojsonschema.Schema),
	}
}

// RegisterNode adds a factory, replacing any previous one for the same type.
func (r *Registry) RegisterNode(factory protocol.NodeFactory) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(factory.Schema()))
	if err != nil {
		return fmt.Errorf("invalid schema for node type %s: %w", factory.Type(), err)
	}

	r.factories[factory.Type()] = factory
	r.schemas[factory.Type()] = schema

	r.logger.Debug("Registered node", "type", factory.Type(), "name", factory.Name())

	return nil
}

// Factories returns the registered factories ordered by node type.
func (r *Registry) Factories() []protocol.NodeFactory {
	return slices.SortedFunc(maps.Values(r.factories), func(a, b protocol.NodeFactory) int {
		return cmp.Compare(a.Type(), b.Type())
	})
}

// HealthCheck reports whether any node types are registered.
func (r *Registry) HealthCheck() (string, bool) {
	if len(r.factories) == 0 {
		return "No node types registered", false
	}

	return fmt.Sprintf("%d node types registered", len(r.factories)), true
}

// Handlers builds one handler per registered node type.
func (r *Registry) Handlers(deps protocol.Dependencies) (map[models.NodeType]protocol.NodeHandler, error) {
	handlers := make(map[models.NodeType]protocol.NodeHandler, len(r.factories))

	for nodeType, factory := range r.factories {
		handler, err := factory.Create(deps)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s handler: %w", nodeType, err)
		}

		handlers[nodeType] = handler
	}

	return handlers, nil
}

// ValidateWorkflow checks the definition's shape and every node's data.
func (r *Registry) ValidateWorkflow(workflow *models.Workflow) error {
	err := workflow.Validate()
	if err != nil {
		return err
	}

	for _, node := range workflow.Nodes {
		err = r.ValidateNode(node)
		if err != nil {
			return fmt.Errorf("%w: %w", models.ErrInvalidWorkflow, err)
		}
	}

	return nil
}

// ValidateNode checks that the node type is registered and that its data
// satisfies the type's schema and any extra factory checks.
func (r *Registry) ValidateNode(node *models.Node) error {
	factory, ok := r.factories[node.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNodeNotRegistered, node.Type)
	}

	err := node.Validate()
	if err != nil {
		return err
	}

	result, err := r.schemas[node.Type].Validate(gojsonschema.NewGoLoader(node.Data))
	if err != nil {
		return fmt.Errorf("failed to validate node %s: %w", node.ID, err)
	}

	if !result.Valid() {
		var violations []string
		for _, violation := range result.Errors() {
			violations = append(violations, violation.String())
		}

		return fmt.Errorf("%w: node %s: %s", ErrSchemaViolation, node.ID, strings.Join(violations, "; "))
	}

	if validator, ok := factory.(protocol.NodeValidator); ok {
		return validator.ValidateNode(node)
	}

	return nil
}
