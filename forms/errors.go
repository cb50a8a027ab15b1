package forms

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownForm        = errors.New("unknown form")
	ErrUnknownField       = errors.New("unknown field")
	ErrReadOnlyField      = errors.New("field is read-only")
	ErrFieldLocked        = errors.New("field is locked by another field's value")
	ErrInvalidValue       = errors.New("invalid value")
	ErrSubmitting         = errors.New("a submission is in progress")
	ErrSubmissionInFlight = errors.New("submission already in flight")
	ErrSessionNotFound    = errors.New("form session not found")
)

// FieldError ties an edit error to the field it was raised for.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string { return fmt.Sprintf("%s: %v", e.Field, e.Err) }
func (e *FieldError) Unwrap() error { return e.Err }

// Rejection is implemented by transport errors that carry a user-facing
// message and field-level details, such as a non-2xx backend reply.
type Rejection interface {
	error
	UserMessage() string
	FieldErrors() map[string]string
}

// Outcome classifies a submission attempt.
type Outcome string

const (
	OutcomeSuccess   Outcome = "success"
	OutcomeInvalid   Outcome = "invalid"
	OutcomeConflict  Outcome = "conflict"
	OutcomeRejected  Outcome = "rejected"
	OutcomeTransport Outcome = "transport"
)
