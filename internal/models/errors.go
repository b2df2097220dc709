package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrValidation      = errors.New("validation failed")
	ErrConflict        = errors.New("conflict")
	ErrCorruptState    = errors.New("corrupt stored state")
	ErrExternalService = errors.New("external service failure")
	ErrTimeout         = errors.New("timed out")
	ErrEmptyRegistry   = errors.New("registry is empty")
	ErrEmptyInput      = errors.New("empty input")

	// ErrInvalidStatus is a validation error; errors.Is matches both.
	ErrInvalidStatus = fmt.Errorf("invalid highlight status: %w", ErrValidation)
)

// Invalid wraps ErrValidation with a formatted reason.
func Invalid(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrValidation)
}
