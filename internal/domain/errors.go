package domain

import (
	"errors"
	"fmt"
)

var (
	ErrValidation         = errors.New("validation error")
	ErrInvalidAdvanceTime = fmt.Errorf("%w: advance minutes must be within 0..%d", ErrValidation, MaxAdvanceMinutes)

	ErrIncompleteDoseData = errors.New("incomplete dose data")
	ErrPermissionDenied   = errors.New("permission denied")
	ErrNotFound           = errors.New("not found")

	ErrPersistence            = errors.New("persistence failure")
	ErrNotificationScheduling = errors.New("notification scheduling failure")
)

// Validationf returns an error matching ErrValidation.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
