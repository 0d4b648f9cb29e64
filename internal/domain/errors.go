package domain

import "fmt"

// Error types for consistent error handling across the BFF.
// Messages of user-facing errors are Spanish; they end up in toasts.

// ErrNotFound indicates a resource was not found.
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrExternalService indicates a failure in an external service call.
type ErrExternalService struct {
	Service string
	Err     error
}

func (e *ErrExternalService) Error() string {
	return fmt.Sprintf("external service error [%s]: %v", e.Service, e.Err)
}

func (e *ErrExternalService) Unwrap() error {
	return e.Err
}

// ErrTimeout indicates an operation exceeded its deadline.
type ErrTimeout struct {
	Operation string
}

func (e *ErrTimeout) Error() string {
	return fmt.Sprintf("operation timed out: %s", e.Operation)
}

// ErrCircuitOpen indicates the circuit breaker is open.
type ErrCircuitOpen struct {
	Service string
}

func (e *ErrCircuitOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for service: %s", e.Service)
}

// ErrValidation indicates a validation error (bad input).
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error on '%s': %s", e.Field, e.Message)
}

// ErrDuplicate indicates a unique-key conflict (e.g. a repeated join request).
type ErrDuplicate struct {
	Key     string
	Message string
}

func (e *ErrDuplicate) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("duplicate: %s", e.Key)
}

// ErrForeignKey indicates a foreign-key violation on Column.
type ErrForeignKey struct {
	Column  string
	Details string
}

func (e *ErrForeignKey) Error() string {
	return fmt.Sprintf("foreign key violation on '%s': %s", e.Column, e.Details)
}

// ErrForbidden indicates the user lacks permission for the operation.
type ErrForbidden struct {
	Action string
}

func (e *ErrForbidden) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Action)
}

// ErrUnauthorized indicates invalid credentials or missing session.
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "unauthorized"
}

// ErrConflict indicates a business-rule conflict.
type ErrConflict struct {
	Message string
}

func (e *ErrConflict) Error() string {
	return e.Message
}

// ErrInvalidInvitation indicates an unknown or already used invitation.
type ErrInvalidInvitation struct {
	Token string
}

func (e *ErrInvalidInvitation) Error() string {
	return "La invitación no es válida o ya fue utilizada"
}
