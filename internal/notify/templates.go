package notify

import (
	"fmt"

	"github.com/clinicbase/scheduler/internal/appointments"
)

const apptTimeFormat = "Monday, January 2 at 3:04 PM"

// ReminderMessage is the confirmation reminder sent when the window opens.
func ReminderMessage(a *appointments.Appointment) string {
	return fmt.Sprintf(
		"Reminder: you have an appointment on %s. Please confirm it in the app, or it will be released at the start time.",
		a.Start.Format(apptTimeFormat),
	)
}

// ConfirmedMessage acknowledges a confirmed appointment.
func ConfirmedMessage(a *appointments.Appointment) string {
	return fmt.Sprintf(
		"Your appointment on %s is confirmed. See you then!",
		a.Start.Format(apptTimeFormat),
	)
}

// CancelledMessage tells the patient the appointment was cancelled.
func CancelledMessage(a *appointments.Appointment) string {
	return fmt.Sprintf(
		"Your appointment on %s has been cancelled.",
		a.Start.Format(apptTimeFormat),
	)
}

// NoShowMessage tells the patient their unconfirmed slot was released.
func NoShowMessage(a *appointments.Appointment) string {
	return fmt.Sprintf(
		"Your appointment on %s was not confirmed in time and the slot has been released.",
		a.Start.Format(apptTimeFormat),
	)
}
