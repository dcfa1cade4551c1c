package models

import (
	"errors"
	"fmt"
)

var (
	ErrSlotConflict       = errors.New("slot conflict")
	ErrStaleState         = errors.New("booking status changed concurrently")
	ErrInvalidTransition  = errors.New("transition not allowed from current status")
	ErrBookingNotFound    = errors.New("booking not found")
	ErrAuditoriumNotFound = errors.New("auditorium not found")
)

// ValidationError rejects input before any state changes.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// NotificationDeliveryError wraps a failed notification. It is logged, never
// returned from a transition.
type NotificationDeliveryError struct {
	BookingID string
	Type      EventType
	Err       error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s notification for booking %s: %v", e.Type, e.BookingID, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error {
	return e.Err
}
