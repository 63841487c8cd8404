package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound also covers rows that belong to another company.
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrSchedulingConflict = errors.New("scheduling conflict")
	ErrAlreadyPaid        = errors.New("appointment already paid")
	ErrAlreadyCompleted   = errors.New("appointment already completed")
	ErrImmutable          = errors.New("appointment is in a terminal status")
	ErrValidation         = errors.New("validation failed")
	ErrForbidden          = errors.New("forbidden")
)

// ConflictError names the appointment that occupies the requested window.
type ConflictError struct {
	AppointmentID string
	Start         time.Time
	End           time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("scheduling conflict with appointment %s (%s - %s)",
		e.AppointmentID, e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339))
}

func (e *ConflictError) Unwrap() error { return ErrSchedulingConflict }

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// TransitionError reports the rejected pair of statuses.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot move appointment from %s to %s", e.From, e.To)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }
