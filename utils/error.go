package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// ValidationError reports malformed or out-of-range input. It is never
// silently corrected; callers are expected to re-submit.
// Index is the offending position in a positional input (line items, tax
// lines), or -1 when the error is not positional.
type ValidationError struct {
	Field  string
	Index  int
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("validation: %s[%d]: %s", e.Field, e.Index, e.Reason)
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}

func NewValidationError(field string, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: -1, Reason: reason}
}

func NewValidationErrorAt(field string, index int, reason string) *ValidationError {
	return &ValidationError{Field: field, Index: index, Reason: reason}
}

// InvalidStateError reports an operation attempted in a status that forbids
// it (editing non-Draft line items, voiding a Paid document, ...). Surfaced
// to the caller as a rejection, never retried internally.
type InvalidStateError struct {
	Current   string
	Attempted string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: cannot %s while %s", e.Attempted, e.Current)
}

func NewInvalidStateError(current string, attempted string) *InvalidStateError {
	return &InvalidStateError{Current: current, Attempted: attempted}
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsInvalidStateError(err error) bool {
	var se *InvalidStateError
	return errors.As(err, &se)
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
