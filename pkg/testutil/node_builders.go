// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/google/uuid"
)

const TestTenantID = "tenant-1"

// CreateTestWorkflow creates an active lead_signup workflow whose nodes are
// chained in order behind a trigger node. Overrides run last.
func CreateTestWorkflow(nodes []*models.Node, overrides ...func(*models.Workflow)) *models.Workflow {
	all := append([]*models.Node{models.NewNode("trigger", &models.TriggerData{})}, nodes...)

	workflow := &models.Workflow{
		ID:       uuid.New().String(),
		TenantID: TestTenantID,
		Name:     "Test Workflow",
		IsActive: true,
		Trigger:  models.Trigger{Type: models.TriggerLeadSignup},
		Nodes:    all,
		Edges:    Chain(all...),
	}

	for _, override := range overrides {
		override(workflow)
	}

	return workflow
}

// Chain links the nodes in order with unmarked edges.
func Chain(nodes ...*models.Node) []*models.Edge {
	edges := make([]*models.Edge, 0, len(nodes))

	for i := 1; i < len(nodes); i++ {
		edges = append(edges, &models.Edge{
			ID:     fmt.Sprintf("e-%s-%s", nodes[i-1].ID, nodes[i].ID),
			Source: nodes[i-1].ID,
			Target: nodes[i].ID,
		})
	}

	return edges
}

// Branch creates an edge leaving source through handle.
func Branch(source, handle, target string) *models.Edge {
	return &models.Edge{
		ID:           fmt.Sprintf("e-%s-%s-%s", source, handle, target),
		Source:       source,
		Target:       target,
		SourceHandle: handle,
	}
}

// WithTrigger sets the workflow trigger.
func WithTrigger(trigger models.Trigger) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Trigger = trigger
	}
}

// WithEdges replaces the chained edges.
func WithEdges(edges ...*models.Edge) func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.Edges = edges
	}
}

// Inactive marks the workflow as deactivated.
func Inactive() func(*models.Workflow) {
	return func(w *models.Workflow) {
		w.IsActive = false
	}
}

// EmailNode creates an email node with inline content.
func EmailNode(id, subject, html string) *models.Node {
	return models.NewNode(id, &models.EmailData{Subject: subject, HTMLContent: html})
}

// DelayNode creates a delay node.
func DelayNode(id string, value int, unit models.DelayUnit) *models.Node {
	return models.NewNode(id, &models.DelayData{Value: value, Unit: unit})
}

// StopNode creates a stop node.
func StopNode(id string) *models.Node {
	return models.NewNode(id, &models.StopData{})
}

// WelcomeSeries is the welcome → 1h delay → day 1 tip → stop sequence.
func WelcomeSeries() *models.Workflow {
	return CreateTestWorkflow([]*models.Node{
		EmailNode("welcome", "Welcome", "<p>Hi {{firstName}}</p>"),
		DelayNode("wait", 1, models.DelayHours),
		EmailNode("tip", "Day 1 tip", "<p>Here is a tip, {{name}}</p>"),
		StopNode("stop"),
	}, func(w *models.Workflow) {
		w.Name = "Welcome Series"
	})
}

// TestTenant returns the sender identity used by TestTenantID.
func TestTenant() *models.Tenant {
	return &models.Tenant{
		ID:         TestTenantID,
		Name:       "Acme Courses",
		OwnerEmail: "owner@acme.test",
		FromName:   "Acme",
		FromEmail:  "hello@acme.test",
	}
}
