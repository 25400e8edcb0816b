package models

import "time"

type EmailSource string

const (
	SourceWorkflow      EmailSource = "workflow"
	SourceDrip          EmailSource = "drip"
	SourceBroadcast     EmailSource = "broadcast"
	SourceTransactional EmailSource = "transactional"
)

type QueueStatus string

const (
	QueueQueued  QueueStatus = "queued"
	QueueSending QueueStatus = "sending"
	QueueSent    QueueStatus = "sent"
	QueueFailed  QueueStatus = "failed"
)

const (
	DefaultMaxAttempts = 3
	DefaultPriority    = 5
)

// QueuedEmail is a fully personalized message waiting for the transport.
// The queue never re-renders content.
type QueuedEmail struct {
	ID          string            `json:"id"`
	TenantID    string            `json:"tenant_id"               validate:"required"`
	Source      EmailSource       `json:"source"                  validate:"required,oneof=workflow drip broadcast transactional"`
	ExecutionID string            `json:"execution_id,omitempty"`
	ToEmail     string            `json:"to_email"                validate:"required,email"`
	FromName    string            `json:"from_name"`
	FromEmail   string            `json:"from_email"              validate:"required,email"`
	Subject     string            `json:"subject"                 validate:"required"`
	HTMLContent string            `json:"html_content"            validate:"required"`
	TextContent string            `json:"text_content,omitempty"`
	ReplyTo     string            `json:"reply_to,omitempty"      validate:"omitempty,email"`
	Headers     map[string]string `json:"headers,omitempty"`
	Status      QueueStatus       `json:"status"`
	Priority    int               `json:"priority"                validate:"gte=0"`
	Attempts    int               `json:"attempts"`
	MaxAttempts int               `json:"max_attempts"            validate:"gte=0"`
	QueuedAt    time.Time         `json:"queued_at"`
	SentAt      *time.Time        `json:"sent_at,omitempty"`
	NextRetryAt *time.Time        `json:"next_retry_at,omitempty"`
	ClaimedAt   *time.Time        `json:"claimed_at,omitempty"`
	LastError   string            `json:"last_error,omitempty"`
}
