package models

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownSlot   = errors.New("signal: unknown slot")
	ErrMissingField  = errors.New("signal: missing field")
	ErrInvalidTime   = errors.New("signal: invalid time")
	ErrMalformedData = errors.New("signal: malformed persisted record")
)

// ValidationError rejects an inbound event before it touches the grid.
type ValidationError struct {
	Field   string
	Code    string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return e.Message
}

// Unwrap returns the sentinel cause.
func (e *ValidationError) Unwrap() error { return e.Err }

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
