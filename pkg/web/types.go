package web

import (
	"time"

	"github.com/dukex/mailflow/pkg/models"
)

// DefaultHealthWindow is the report window when the request names none.
const DefaultHealthWindow = 30 * 24 * time.Hour

// EnrollRequest is the body of a single manual enrollment.
type EnrollRequest struct {
	ContactID string `json:"contactId" validate:"required"`
}

// EnrollResponse identifies the execution created by a manual enrollment.
type EnrollResponse struct {
	ExecutionID string `json:"execution_id"`
}

// BulkEnrollRequest is the body of a bulk manual enrollment.
type BulkEnrollRequest struct {
	ContactIDs []string `json:"contactIds" validate:"required,min=1,max=10000,dive,required"`
}

// DeliverabilityEventRequest is a provider report of a bounce, complaint or
// similar event.
type DeliverabilityEventRequest struct {
	TenantID   string     `json:"tenant_id"             validate:"required"`
	Email      string     `json:"email"                 validate:"required,email"`
	Type       string     `json:"type"                  validate:"required,oneof=hard_bounce soft_bounce spam_complaint blocked unsubscribe delivery_delay"`
	Reason     string     `json:"reason,omitempty"`
	OccurredAt *time.Time `json:"occurred_at,omitempty"`
}

// Event converts the request into the model recorded by the gate.
func (r DeliverabilityEventRequest) Event() *models.DeliverabilityEvent {
	event := &models.DeliverabilityEvent{
		TenantID: r.TenantID,
		Email:    r.Email,
		Type:     models.DeliverabilityEventType(r.Type),
		Reason:   r.Reason,
	}

	if r.OccurredAt != nil {
		event.OccurredAt = r.OccurredAt.UTC()
	}

	return event
}

// UnsubscribeRequest carries the signed one-click unsubscribe parameters.
type UnsubscribeRequest struct {
	Email  string `query:"email"  validate:"required,email"`
	Tenant string `query:"tenant" validate:"required"`
	Token  string `query:"token"  validate:"required,hexadecimal"`
}

// StatsResponse holds per-status execution counts of one workflow.
type StatsResponse struct {
	WorkflowID string                `json:"workflow_id"`
	Executions models.ExecutionStats `json:"executions"`
}
