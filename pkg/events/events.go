// Package events defines the messages exchanged over the event bus: enrollment
// triggers coming in, deliverability reports, and execution lifecycle going out.
package events

import (
	"time"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

const Topic = "mailflow.events"

const (
	EventMetadataKey     = "key"
	EventTypeMetadataKey = "event_type"
)

const (
	// Enrollment triggers.
	LeadSignupEvent      EventType = "lead.signup"
	ProductPurchaseEvent EventType = "product.purchase"
	TagAddedEvent        EventType = "contact.tag_added"
	CustomerActionEvent  EventType = "customer.action"

	// Provider feedback.
	DeliverabilityReportedEvent EventType = "deliverability.reported"

	// Execution lifecycle.
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// NewBaseEvent stamps a new event of the given type.
func NewBaseEvent(eventType EventType) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
}

// TriggerSource is implemented by events that may enroll a recipient.
type TriggerSource interface {
	TriggerEvent() models.TriggerEvent
}

type LeadSignup struct {
	BaseEvent

	StoreID   string `json:"store_id"`
	Email     string `json:"email"`
	Name      string `json:"name,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Source    string `json:"source,omitempty"`
}

func (e LeadSignup) GetType() EventType {
	return LeadSignupEvent
}

func (e LeadSignup) TriggerEvent() models.TriggerEvent {
	return models.TriggerEvent{
		Type:      models.TriggerLeadSignup,
		TenantID:  e.StoreID,
		Email:     e.Email,
		Name:      e.Name,
		ProductID: e.ProductID,
		Source:    e.Source,
	}
}

type ProductPurchase struct {
	BaseEvent

	StoreID     string  `json:"store_id"`
	Email       string  `json:"email"`
	Name        string  `json:"name,omitempty"`
	ProductID   string  `json:"product_id,omitempty"`
	ProductType string  `json:"product_type,omitempty"`
	OrderID     string  `json:"order_id,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

func (e ProductPurchase) GetType() EventType {
	return ProductPurchaseEvent
}

func (e ProductPurchase) TriggerEvent() models.TriggerEvent {
	return models.TriggerEvent{
		Type:        models.TriggerProductPurchase,
		TenantID:    e.StoreID,
		Email:       e.Email,
		Name:        e.Name,
		ProductID:   e.ProductID,
		ProductType: e.ProductType,
		OrderID:     e.OrderID,
		Amount:      e.Amount,
	}
}

type TagAdded struct {
	BaseEvent

	StoreID   string `json:"store_id"`
	Email     string `json:"email"`
	ContactID string `json:"contact_id,omitempty"`
	Tag       string `json:"tag"`
}

func (e TagAdded) GetType() EventType {
	return TagAddedEvent
}

func (e TagAdded) TriggerEvent() models.TriggerEvent {
	return models.TriggerEvent{
		Type:      models.TriggerTagAdded,
		TenantID:  e.StoreID,
		Email:     e.Email,
		ContactID: e.ContactID,
		Tag:       e.Tag,
	}
}

type CustomerAction struct {
	BaseEvent

	StoreID   string         `json:"store_id"`
	Email     string         `json:"email"`
	ContactID string         `json:"contact_id,omitempty"`
	Action    string         `json:"action"`
	Data      map[string]any `json:"data,omitempty"`
}

func (e CustomerAction) GetType() EventType {
	return CustomerActionEvent
}

func (e CustomerAction) TriggerEvent() models.TriggerEvent {
	return models.TriggerEvent{
		Type:      models.TriggerCustomerAction,
		TenantID:  e.StoreID,
		Email:     e.Email,
		ContactID: e.ContactID,
		Action:    e.Action,
		Data:      e.Data,
	}
}

// DeliverabilityReported carries a provider bounce, complaint or unsubscribe.
type DeliverabilityReported struct {
	BaseEvent

	Event models.DeliverabilityEvent `json:"event"`
}

func (e DeliverabilityReported) GetType() EventType {
	return DeliverabilityReportedEvent
}

// ExecutionFinished is published when an execution reaches a terminal status.
// Type is one of the execution lifecycle event types.
type ExecutionFinished struct {
	BaseEvent

	ExecutionID    string                 `json:"execution_id"`
	WorkflowID     string                 `json:"workflow_id"`
	TenantID       string                 `json:"tenant_id"`
	RecipientEmail string                 `json:"recipient_email"`
	Status         models.ExecutionStatus `json:"status"`
	NodeID         string                 `json:"node_id"`
	Reason         string                 `json:"reason,omitempty"`
	StepCount      int                    `json:"step_count"`
}

func (e ExecutionFinished) GetType() EventType {
	return e.Type
}

// LifecycleEventType maps a terminal status to its event type.
func LifecycleEventType(status models.ExecutionStatus) (EventType, bool) {
	switch status {
	case models.ExecutionCompleted:
		return ExecutionCompletedEvent, true
	case models.ExecutionFailed:
		return ExecutionFailedEvent, true
	case models.ExecutionCancelled:
		return ExecutionCancelledEvent, true
	default:
		return "", false
	}
}
