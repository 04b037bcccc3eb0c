// Package errs holds the error taxonomy shared by the simulator, the session
// state machine, the webhook dispatcher and the HTTP layer.
//
// Each typed error unwraps to a sentinel so callers can branch with
// errors.Is without caring about the concrete type.
package errs

import (
	"errors"
	"fmt"
	"time"

	"github.com/mochaeng/payment-sandbox/internal/constants"
)

var (
	ErrValidation       = errors.New("validation failed")
	ErrDeclined         = errors.New("payment declined")
	ErrStateConflict    = errors.New("state conflict")
	ErrNotFound         = errors.New("not found")
	ErrDelivery         = errors.New("webhook delivery failed")
	ErrExpired          = errors.New("session expired")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrQueueFull        = errors.New("dispatch queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

// ValidationError reports a malformed request rejected before simulation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, reason string) *ValidationError {
	return &ValidationError{Field: field, Reason: reason}
}

// DeclineError is a simulated business outcome on a well-formed request.
// It is not a system fault.
type DeclineError struct {
	Scenario   constants.FailureType
	Message    string
	StatusCode int
}

func (e *DeclineError) Error() string {
	return fmt.Sprintf("payment declined (%s): %s", e.Scenario, e.Message)
}

func (e *DeclineError) Unwrap() error { return ErrDeclined }

// StateConflictError reports an illegal or duplicate session transition.
type StateConflictError struct {
	SessionID string
	From      constants.SessionStatus
	To        constants.SessionStatus
}

func (e *StateConflictError) Error() string {
	return fmt.Sprintf("session %s cannot move from %s to %s", e.SessionID, e.From, e.To)
}

func (e *StateConflictError) Unwrap() error { return ErrStateConflict }

type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NotFound(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// DeliveryError describes one failed webhook attempt.
type DeliveryError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery to %s failed: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("delivery to %s failed with status code [%d]", e.URL, e.StatusCode)
}

func (e *DeliveryError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrDelivery, e.Err}
	}
	return []error{ErrDelivery}
}

type ExpiryError struct {
	SessionID string
	ExpiredAt time.Time
}

func (e *ExpiryError) Error() string {
	return fmt.Sprintf("session %s expired at %s", e.SessionID, e.ExpiredAt.Format(time.RFC3339))
}

func (e *ExpiryError) Unwrap() error { return ErrExpired }
