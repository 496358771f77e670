package models

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when no todo has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrInternal marks backend failures. Its detail must not reach clients.
	ErrInternal = errors.New("internal error")
)

// ValidationError is a rejected input. Message is safe to show to the caller.
type ValidationError struct {
	Message string
}

func NewValidationError(msg string) *ValidationError {
	return &ValidationError{Message: msg}
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Internal wraps err so that errors.Is(err, ErrInternal) holds while the
// cause stays available for logging.
func Internal(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}
