package domain

import (
	"fmt"
	"strings"
	"time"
)

// EscalationStatus represents the lifecycle state of a help request
type EscalationStatus string

const (
	// EscalationStatusPending is the initial state of every escalation.
	EscalationStatusPending EscalationStatus = "PENDING"
	// EscalationStatusResolved is terminal: a supervisor answered.
	EscalationStatusResolved EscalationStatus = "RESOLVED"
	// EscalationStatusUnresolved is terminal: the request timed out.
	EscalationStatusUnresolved EscalationStatus = "UNRESOLVED"
)

// Escalation represents a caller question routed to a human supervisor.
// PENDING transitions exactly once to RESOLVED or UNRESOLVED; terminal
// states never change again.
type Escalation struct {
	ID          string
	CallerID    string
	CallerPhone string
	Question    string
	Status      EscalationStatus
	Answer      string
	ResolvedBy  string
	TimeoutAt   *time.Time
	Metadata    map[string]any
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewEscalation creates a new pending Escalation instance
func NewEscalation(id, callerID, callerPhone, question string, metadata map[string]any, createdAt time.Time) *Escalation {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return &Escalation{
		ID:          id,
		CallerID:    callerID,
		CallerPhone: callerPhone,
		Question:    question,
		Status:      EscalationStatusPending,
		Metadata:    metadata,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
}

// IsTerminal reports whether the escalation reached a final state
func (e *Escalation) IsTerminal() bool {
	return e.Status == EscalationStatusResolved || e.Status == EscalationStatusUnresolved
}

// ValidateEscalation validates an Escalation instance
func ValidateEscalation(e *Escalation) error {
	if e == nil {
		return fmt.Errorf("escalation cannot be nil")
	}

	if e.ID == "" {
		return fmt.Errorf("escalation ID is required")
	}

	if strings.TrimSpace(e.Question) == "" {
		return ErrEmptyQuestion
	}

	if !isValidEscalationStatus(e.Status) {
		return ErrInvalidEscalationStatus
	}

	if e.Status == EscalationStatusResolved && strings.TrimSpace(e.Answer) == "" {
		return ErrEmptyAnswer
	}

	return nil
}

// isValidEscalationStatus checks if an EscalationStatus is valid
func isValidEscalationStatus(s EscalationStatus) bool {
	switch s {
	case EscalationStatusPending, EscalationStatusResolved, EscalationStatusUnresolved:
		return true
	}
	return false
}

// AuditEntry is an append-only operational history record. It is never
// read back for control flow.
type AuditEntry struct {
	ID        string
	Level     string
	Event     string
	Message   string
	Metadata  map[string]any
	CreatedAt time.Time
}

// Audit levels
const (
	AuditLevelInfo  = "info"
	AuditLevelWarn  = "warn"
	AuditLevelError = "error"
)

// Audit events
const (
	AuditEventEscalationCreated   = "escalation.created"
	AuditEventEscalationDuplicate = "escalation.duplicate"
	AuditEventEscalationResolved  = "escalation.resolved"
	AuditEventEscalationTimedOut  = "escalation.timed_out"
	AuditEventKnowledgeLearned    = "knowledge.learned"
	AuditEventWebhookFailed       = "webhook.delivery_failed"
)
