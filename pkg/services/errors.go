// Package services holds the workflow definition operations behind the API.
package services

import (
	"errors"
	"fmt"

	"github.com/dukex/mailflow/pkg/models"
	"github.com/dukex/mailflow/pkg/registry"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")
)

// ServiceError wraps service-level errors with additional context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error is a validation error that should return HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrWorkflowNil) ||
		errors.Is(err, models.ErrInvalidWorkflow) ||
		errors.Is(err, models.ErrInvalidTrigger) ||
		errors.Is(err, models.ErrInvalidNodeData) ||
		errors.Is(err, models.ErrUnknownNodeType) ||
		errors.Is(err, registry.ErrNodeNotRegistered) ||
		errors.Is(err, registry.ErrSchemaViolation)
}

// NewValidationError creates a new validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
