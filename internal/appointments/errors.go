package appointments

import "errors"

var (
	// ErrInvalidSlot is returned when the requested interval is not a
	// bookable slot: outside working hours, in the past, or the wrong
	// duration.
	ErrInvalidSlot = errors.New("requested time is not a bookable slot")

	// ErrSlotConflict is returned when another booking won the race for the
	// same doctor and start time.
	ErrSlotConflict = errors.New("slot is no longer available")

	// ErrEmptyReason is returned when a booking request carries no reason.
	ErrEmptyReason = errors.New("reason is required")

	// ErrTooEarly is returned when confirmation is attempted before the
	// confirmation window opens.
	ErrTooEarly = errors.New("confirmation window has not opened yet")

	// ErrNotConfirmable is returned when the appointment can no longer be
	// confirmed: the window has closed or the appointment left the
	// scheduled state.
	ErrNotConfirmable = errors.New("appointment can no longer be confirmed")

	// ErrAlreadyFinal is returned when cancellation is attempted on an
	// appointment that has already reached a terminal state or started.
	ErrAlreadyFinal = errors.New("appointment can no longer be cancelled")

	// ErrInvalidTransition is returned for a state-machine violation, e.g.
	// completing an unconfirmed appointment.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStaleVersion is returned when a transition was attempted against
	// outdated state; the caller must re-read and retry or surface a
	// conflict.
	ErrStaleVersion = errors.New("appointment was modified concurrently")

	// ErrNotFound is returned when the appointment does not exist.
	ErrNotFound = errors.New("appointment not found")

	// ErrNotOwner is returned when the caller is neither the owning patient
	// nor the owning doctor for the attempted operation.
	ErrNotOwner = errors.New("caller does not own this appointment")
)
