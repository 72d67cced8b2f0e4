// Package appointments implements the scheduling and confirmation engine:
// conflict-free booking, the confirm/cancel/complete state machine, and the
// background sweep that reminds and auto-expires unconfirmed appointments.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no_show"
)

// Terminal reports whether the status admits no further transitions.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether the appointment still holds its slot. Cancelled and
// no-show appointments free the slot for rebooking.
func (s Status) Active() bool {
	return s == StatusScheduled || s == StatusConfirmed
}

// Appointment is the durable booking record. The store exclusively owns
// these rows; version is the optimistic-concurrency counter bumped on every
// status write.
type Appointment struct {
	ID           uuid.UUID `json:"id"`
	DoctorID     uuid.UUID `json:"doctor_id"`
	PatientID    uuid.UUID `json:"patient_id"`
	Start        time.Time `json:"start"`
	End          time.Time `json:"end"`
	Reason       string    `json:"reason"`
	Status       Status    `json:"status"`
	ReminderSent bool      `json:"reminder_sent"`
	Version      int64     `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// StatsPeriod is one aggregation bucket of a doctor's appointment history.
type StatsPeriod struct {
	Period    string `json:"period"`
	Count     int64  `json:"count"`
	Scheduled int64  `json:"scheduled"`
	Confirmed int64  `json:"confirmed"`
	Completed int64  `json:"completed"`
	Cancelled int64  `json:"cancelled"`
	NoShow    int64  `json:"no_show"`
}

// DoctorStats summarizes a doctor's appointment history.
type DoctorStats struct {
	DoctorID          uuid.UUID     `json:"doctor_id"`
	TotalAppointments int64         `json:"total_appointments"`
	Stats             []StatsPeriod `json:"stats"`
}
