package models

import "time"

// DeliverabilityEventType is a provider-reported outcome for a recipient.
type DeliverabilityEventType string

const (
	EventHardBounce    DeliverabilityEventType = "hard_bounce"
	EventSoftBounce    DeliverabilityEventType = "soft_bounce"
	EventSpamComplaint DeliverabilityEventType = "spam_complaint"
	EventBlocked       DeliverabilityEventType = "blocked"
	EventUnsubscribe   DeliverabilityEventType = "unsubscribe"
	EventDeliveryDelay DeliverabilityEventType = "delivery_delay"
)

// SuppressionStatus is why a recipient may no longer receive mail.
type SuppressionStatus string

const (
	SuppressionNone         SuppressionStatus = ""
	SuppressionBounced      SuppressionStatus = "bounced"
	SuppressionUnsubscribed SuppressionStatus = "unsubscribed"
	SuppressionComplained   SuppressionStatus = "complained"
)

// Suppression returns the suppression an event of this type causes, if any.
func (t DeliverabilityEventType) Suppression() SuppressionStatus {
	switch t {
	case EventHardBounce:
		return SuppressionBounced
	case EventSpamComplaint:
		return SuppressionComplained
	case EventUnsubscribe:
		return SuppressionUnsubscribed
	default:
		return SuppressionNone
	}
}

type DeliverabilityEvent struct {
	ID         string                  `json:"id"`
	TenantID   string                  `json:"tenant_id"   validate:"required"`
	Email      string                  `json:"email"       validate:"required,email"`
	Type       DeliverabilityEventType `json:"type"        validate:"required,oneof=hard_bounce soft_bounce spam_complaint blocked unsubscribe delivery_delay"`
	Reason     string                  `json:"reason,omitempty"`
	OccurredAt time.Time               `json:"occurred_at"`
}

// SuppressionRecord is the current suppression state of one recipient.
type SuppressionRecord struct {
	TenantID string            `json:"tenant_id"`
	Email    string            `json:"email"`
	Status   SuppressionStatus `json:"status"`
	Reason   string            `json:"reason,omitempty"`
	Since    time.Time         `json:"since"`
}
