package domain

import "fmt"

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Common domain error codes
const (
	ErrCodeValidation      = "VALIDATION_ERROR"
	ErrCodeNotFound        = "NOT_FOUND"
	ErrCodeAlreadyExists   = "ALREADY_EXISTS"
	ErrCodeInvalidState    = "INVALID_STATE"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeUpstreamError   = "UPSTREAM_ERROR"
	ErrCodeDeliveryFailure = "DELIVERY_FAILURE"
	ErrCodeInternalError   = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuestion           = NewDomainError(ErrCodeValidation, "question is required")
	ErrEmptyAnswer             = NewDomainError(ErrCodeValidation, "answer is required")
	ErrEmptyResolvedBy         = NewDomainError(ErrCodeValidation, "resolved_by is required")
	ErrInvalidKnowledgeSource  = NewDomainError(ErrCodeValidation, "invalid knowledge source")
	ErrInvalidEscalationStatus = NewDomainError(ErrCodeValidation, "invalid escalation status")
)

// Not found errors
var (
	ErrEscalationNotFound = NewDomainError(ErrCodeNotFound, "escalation not found")
	ErrKnowledgeNotFound  = NewDomainError(ErrCodeNotFound, "knowledge entry not found")
)

// State errors
var (
	// ErrEscalationNotPending is returned when a terminal transition is
	// attempted on an escalation that is no longer PENDING. The losing side
	// of a resolve/timeout race observes this, never a silent overwrite.
	ErrEscalationNotPending = NewDomainError(ErrCodeInvalidState, "escalation is not pending")
)

// Already exists errors
var (
	ErrDuplicateQuestion = NewDomainError(ErrCodeAlreadyExists, "a knowledge entry with this question already exists")
)

// Upstream errors
var (
	ErrDecisionServiceUnavailable = NewDomainError(ErrCodeUpstreamError, "decision service unavailable")
)

// Authorization errors
var (
	ErrInvalidToken = NewDomainError(ErrCodeUnauthorized, "invalid service token")
)
