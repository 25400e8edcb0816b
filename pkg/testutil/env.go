package testutil

import (
	"io"
	"log/slog"
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/protocol"
)

// FixedNow is the reference instant used by tests that need a stable clock.
var FixedNow = time.Date(2025, time.March, 3, 9, 0, 0, 0, time.UTC)

// Logger returns a logger that discards output.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestExecution creates a running execution of workflow positioned at nodeID.
func TestExecution(workflow *models.Workflow, nodeID, email string) *models.Execution {
	started := FixedNow

	return &models.Execution{
		ID:             "exec-" + nodeID,
		WorkflowID:     workflow.ID,
		TenantID:       workflow.TenantID,
		RecipientEmail: models.NormalizeEmail(email),
		Status:         models.ExecutionRunning,
		CurrentNodeID:  nodeID,
		ScheduledFor:   models.EpochMillis(FixedNow),
		ExecutionData:  map[string]any{"trigger_type": string(workflow.Trigger.Type)},
		CreatedAt:      FixedNow,
		StartedAt:      &started,
	}
}

// NewEnv builds the evaluation environment of nodeID for a fresh execution
// of workflow. Options run last.
func NewEnv(workflow *models.Workflow, nodeID string, opts ...func(*protocol.Env)) *protocol.Env {
	graph := workflow.Graph()
	node, _ := graph.Node(nodeID)

	env := &protocol.Env{
		Execution: TestExecution(workflow, nodeID, "lead@example.com"),
		Workflow:  workflow,
		Graph:     graph,
		Node:      node,
		Tenant:    TestTenant(),
		Now:       FixedNow,
		Logger:    Logger(),
	}

	for _, opt := range opts {
		opt(env)
	}

	return env
}

// WithContact attaches a contact and uses its address as the recipient.
func WithContact(contact *models.Contact) func(*protocol.Env) {
	return func(env *protocol.Env) {
		env.Contact = contact
		env.Execution.ContactID = contact.ID
		env.Execution.RecipientEmail = models.NormalizeEmail(contact.Email)
	}
}

// TestContact returns an active contact of TestTenantID.
func TestContact() *models.Contact {
	return &models.Contact{
		ID:        "contact-1",
		TenantID:  TestTenantID,
		Email:     "ana@example.com",
		FirstName: "Ana",
		LastName:  "Silva",
		Status:    models.ContactActive,
	}
}
