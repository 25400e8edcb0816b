package models

import (
	"strings"
	"time"
)

// ExecutionStatus is the state of one contact's progress through a workflow.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"   // Waiting for ScheduledFor
	ExecutionRunning   ExecutionStatus = "running"   // Claimed, node evaluation in progress
	ExecutionCompleted ExecutionStatus = "completed" // Reached end of graph, stop or goal
	ExecutionFailed    ExecutionStatus = "failed"    // Unrecoverable handler error
	ExecutionCancelled ExecutionStatus = "cancelled" // Workflow deactivated or recipient suppressed
)

// IsTerminal reports whether the status is final.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

// Execution is one recipient's live position in one workflow.
type Execution struct {
	ID             string          `json:"id"`
	WorkflowID     string          `json:"workflow_id"`
	TenantID       string          `json:"tenant_id"`
	ContactID      string          `json:"contact_id,omitempty"`
	RecipientEmail string          `json:"recipient_email"`
	Status         ExecutionStatus `json:"status"`
	CurrentNodeID  string          `json:"current_node_id"`
	// ScheduledFor is epoch milliseconds, meaningful only while pending.
	ScheduledFor  int64          `json:"scheduled_for"`
	ExecutionData map[string]any `json:"execution_data,omitempty"`
	StepCount     int            `json:"step_count"`
	ErrorMessage  string         `json:"error_message,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
}

// ExecutionStats counts executions of one workflow by status.
type ExecutionStats map[ExecutionStatus]int64

// NormalizeEmail lower-cases and trims an address for use as a dedup or suppression key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EpochMillis converts t to epoch milliseconds.
func EpochMillis(t time.Time) int64 {
	return t.UnixMilli()
}
