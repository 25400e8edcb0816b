// Package models defines the domain models of the email workflow engine.
package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerType identifies the kind of event that enrolls contacts into a workflow.
type TriggerType string

const (
	TriggerLeadSignup      TriggerType = "lead_signup"
	TriggerProductPurchase TriggerType = "product_purchase"
	TriggerTimeDelay       TriggerType = "time_delay"
	TriggerDateTime        TriggerType = "date_time"
	TriggerCustomerAction  TriggerType = "customer_action"
	TriggerTagAdded        TriggerType = "tag_added"
	TriggerManual          TriggerType = "manual"
)

var (
	ErrInvalidTrigger  = errors.New("invalid trigger")
	ErrInvalidWorkflow = errors.New("invalid workflow")
)

// Trigger describes what enrolls contacts into a workflow. Only the Config
// fields relevant to Type are read.
type Trigger struct {
	Type   TriggerType   `json:"type"             validate:"required,oneof=lead_signup product_purchase time_delay date_time customer_action tag_added manual"`
	Config TriggerConfig `json:"config,omitempty"`
}

type TriggerConfig struct {
	// product_purchase: empty matches any product.
	ProductID string `json:"product_id,omitempty"`
	// tag_added: empty matches any tag.
	Tag string `json:"tag,omitempty"`
	// customer_action: empty matches any action.
	Action string `json:"action,omitempty"`
	// time_delay
	DelayValue int       `json:"delay_value,omitempty"`
	DelayUnit  DelayUnit `json:"delay_unit,omitempty"`
	// date_time: a standard cron expression or descriptor such as "@daily".
	Schedule string `json:"schedule,omitempty"`
}

var scheduleParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate checks the type-specific configuration.
func (t Trigger) Validate() error {
	switch t.Type {
	case TriggerLeadSignup, TriggerProductPurchase, TriggerCustomerAction, TriggerTagAdded, TriggerManual:
		return nil
	case TriggerTimeDelay:
		if t.Config.DelayValue <= 0 || !t.Config.DelayUnit.Valid() {
			return fmt.Errorf("%w: time_delay requires a positive delay_value and a delay_unit", ErrInvalidTrigger)
		}

		return nil
	case TriggerDateTime:
		_, err := scheduleParser.Parse(t.Config.Schedule)
		if err != nil {
			return fmt.Errorf("%w: date_time schedule %q: %w", ErrInvalidTrigger, t.Config.Schedule, err)
		}

		return nil
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTrigger, t.Type)
	}
}

// Matches reports whether an event of the given type and attributes fires this trigger.
func (t Trigger) Matches(event TriggerEvent) bool {
	if t.Type != event.Type {
		return false
	}

	switch t.Type {
	case TriggerProductPurchase:
		return t.Config.ProductID == "" || t.Config.ProductID == event.ProductID
	case TriggerTagAdded:
		return t.Config.Tag == "" || t.Config.Tag == event.Tag
	case TriggerCustomerAction:
		return t.Config.Action == "" || t.Config.Action == event.Action
	default:
		return true
	}
}

// StartAt returns when an execution enrolled at now first becomes due:
// after the configured delay for time_delay, at the next schedule fire for
// date_time, immediately otherwise.
func (t Trigger) StartAt(now time.Time) time.Time {
	switch t.Type {
	case TriggerTimeDelay:
		return now.Add(t.Config.DelayUnit.Duration(t.Config.DelayValue))
	case TriggerDateTime:
		schedule, err := scheduleParser.Parse(t.Config.Schedule)
		if err != nil {
			return now
		}

		return schedule.Next(now)
	default:
		return now
	}
}

// Edge is a directed transition between two nodes. SourceHandle selects
// among the outputs of branching nodes ("yes"/"no", "a"/"b").
type Edge struct {
	ID           string `json:"id"                      validate:"required"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
	TargetHandle string `json:"target_handle,omitempty"`
}

// Workflow is a tenant's workflow definition.
type Workflow struct {
	ID       string  `json:"id"`
	TenantID string  `json:"tenant_id"           validate:"required"`
	Name     string  `json:"name"                validate:"required,min=1"`
	IsActive bool    `json:"is_active"`
	Trigger  Trigger `json:"trigger"`
	Nodes    []*Node `json:"nodes"               validate:"required,min=1,dive"`
	Edges    []*Edge `json:"edges"               validate:"dive"`
	// MaxSteps bounds the node evaluations of a single execution. Zero uses the engine default.
	MaxSteps int `json:"max_steps,omitempty" validate:"gte=0"`

	// Approximate counters, updated without coordination.
	TotalExecutions int64      `json:"total_executions"`
	LastExecuted    *time.Time `json:"last_executed,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Graph builds the indexed graph view of the workflow.
func (w *Workflow) Graph() *Graph {
	return NewGraph(w.Nodes, w.Edges)
}

// Validate checks the trigger configuration and the graph shape.
func (w *Workflow) Validate() error {
	err := w.Trigger.Validate()
	if err != nil {
		return err
	}

	err = w.Graph().Validate()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidWorkflow, err)
	}

	return nil
}

// TriggerEvent is an external occurrence that may enroll a recipient.
type TriggerEvent struct {
	Type        TriggerType    `json:"type"`
	TenantID    string         `json:"tenant_id"`
	Email       string         `json:"email"`
	Name        string         `json:"name,omitempty"`
	ContactID   string         `json:"contact_id,omitempty"`
	ProductID   string         `json:"product_id,omitempty"`
	ProductType string         `json:"product_type,omitempty"`
	OrderID     string         `json:"order_id,omitempty"`
	Amount      float64        `json:"amount,omitempty"`
	Source      string         `json:"source,omitempty"`
	Tag         string         `json:"tag,omitempty"`
	Action      string         `json:"action,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
}

// ExecutionData is the context captured at enrollment for this event.
func (e TriggerEvent) ExecutionData() map[string]any {
	data := map[string]any{"trigger_type": string(e.Type)}

	set := func(key, value string) {
		if value != "" {
			data[key] = value
		}
	}

	set("name", e.Name)
	set("product_id", e.ProductID)
	set("product_type", e.ProductType)
	set("order_id", e.OrderID)
	set("source", e.Source)
	set("tag", e.Tag)
	set("action", e.Action)

	if e.Amount != 0 {
		data["amount"] = e.Amount
	}

	for k, v := range e.Data {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}

	return data
}
