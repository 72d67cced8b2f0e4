// Package notify delivers appointment notifications to patients. The engine
// treats it as a fire-and-forget sink: send failures are logged, never
// propagated into booking or sweep outcomes.
package notify

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicbase/scheduler/internal/appointments"
	"github.com/clinicbase/scheduler/pkg/logging"
)

// SMSSender sends SMS messages to patients.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

// Contact is the reachable identity of a user, supplied by the profile
// service.
type Contact struct {
	Name  string
	Phone string
	Email string
}

// Directory resolves user IDs to contact details.
type Directory interface {
	Lookup(ctx context.Context, userID uuid.UUID) (*Contact, error)
}

// Service fans appointment events out over SMS and email.
type Service struct {
	sms       SMSSender
	email     EmailSender
	directory Directory
	logger    *logging.Logger
}

// NewService creates a notification service. Any of sms, email and directory
// may be nil; missing pieces degrade to logging only.
func NewService(sms SMSSender, email EmailSender, directory Directory, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		sms:       sms,
		email:     email,
		directory: directory,
		logger:    logger,
	}
}

// AppointmentReminder asks the patient to confirm an upcoming appointment.
func (s *Service) AppointmentReminder(ctx context.Context, a *appointments.Appointment) error {
	return s.send(ctx, a, "reminder", ReminderMessage(a), "Please confirm your appointment")
}

// AppointmentConfirmed acknowledges a confirmation.
func (s *Service) AppointmentConfirmed(ctx context.Context, a *appointments.Appointment) error {
	return s.send(ctx, a, "confirmed", ConfirmedMessage(a), "Appointment confirmed")
}

// AppointmentCancelled informs the patient of a cancellation.
func (s *Service) AppointmentCancelled(ctx context.Context, a *appointments.Appointment) error {
	return s.send(ctx, a, "cancelled", CancelledMessage(a), "Appointment cancelled")
}

// AppointmentNoShow informs the patient their unconfirmed appointment lapsed.
func (s *Service) AppointmentNoShow(ctx context.Context, a *appointments.Appointment) error {
	return s.send(ctx, a, "no_show", NoShowMessage(a), "Appointment released")
}

func (s *Service) send(ctx context.Context, a *appointments.Appointment, kind, body, subject string) error {
	contact := s.lookup(ctx, a.PatientID)
	if contact == nil {
		s.logger.Info("notification without contact details",
			"kind", kind,
			"appointment_id", a.ID,
			"patient_id", a.PatientID,
		)
		return nil
	}

	var firstErr error
	if s.sms != nil && contact.Phone != "" {
		if err := s.sms.SendSMS(ctx, contact.Phone, body); err != nil {
			s.logger.Error("sms send failed", "kind", kind, "appointment_id", a.ID, "error", err)
			firstErr = fmt.Errorf("notify: sms: %w", err)
		}
	}
	if s.email != nil && contact.Email != "" {
		msg := EmailMessage{
			To:      contact.Email,
			ToName:  contact.Name,
			Subject: subject,
			Body:    body,
		}
		if err := s.email.Send(ctx, msg); err != nil {
			s.logger.Error("email send failed", "kind", kind, "appointment_id", a.ID, "error", err)
			if firstErr == nil {
				firstErr = fmt.Errorf("notify: email: %w", err)
			}
		}
	}
	return firstErr
}

func (s *Service) lookup(ctx context.Context, userID uuid.UUID) *Contact {
	if s.directory == nil {
		return nil
	}
	contact, err := s.directory.Lookup(ctx, userID)
	if err != nil {
		s.logger.Warn("contact lookup failed", "user_id", userID, "error", err)
		return nil
	}
	return contact
}
