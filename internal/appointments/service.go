package appointments

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/clinicbase/scheduler/internal/auth"
	"github.com/clinicbase/scheduler/internal/clock"
	"github.com/clinicbase/scheduler/internal/observability/metrics"
	"github.com/clinicbase/scheduler/internal/schedule"
	"github.com/clinicbase/scheduler/pkg/logging"
)

var tracer = otel.Tracer("scheduler.internal.appointments")

// ScheduleStore supplies doctor working hours. Owned by the profile service;
// the engine only reads.
type ScheduleStore interface {
	GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*schedule.Schedule, error)
}

// Notifier is the external notification sink. Dispatch is fire-and-forget:
// failures are logged by callers and never fail the triggering operation.
type Notifier interface {
	AppointmentReminder(ctx context.Context, a *Appointment) error
	AppointmentConfirmed(ctx context.Context, a *Appointment) error
	AppointmentCancelled(ctx context.Context, a *Appointment) error
	AppointmentNoShow(ctx context.Context, a *Appointment) error
}

// BookRequest is a patient's request to book a slot.
type BookRequest struct {
	DoctorID uuid.UUID
	Start    time.Time
	End      time.Time
	Reason   string
}

// Service validates and executes booking and lifecycle operations.
type Service struct {
	store     Store
	schedules ScheduleStore
	notifier  Notifier
	clk       clock.Clock
	window    time.Duration
	metrics   *metrics.EngineMetrics
	logger    *logging.Logger
}

// NewService constructs the booking service. The confirmation window is how
// long before start a patient may (and must) confirm.
func NewService(store Store, schedules ScheduleStore, notifier Notifier, clk clock.Clock, window time.Duration, m *metrics.EngineMetrics, logger *logging.Logger) *Service {
	if store == nil {
		panic("appointments: store required")
	}
	if schedules == nil {
		panic("appointments: schedule store required")
	}
	if clk == nil {
		clk = clock.System{}
	}
	if window <= 0 {
		window = 3 * time.Hour
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{
		store:     store,
		schedules: schedules,
		notifier:  notifier,
		clk:       clk,
		window:    window,
		metrics:   m,
		logger:    logger,
	}
}

// ListSlots computes the slot sequence for a doctor on the given date.
func (s *Service) ListSlots(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]schedule.Slot, error) {
	sched, err := s.schedules.GetByDoctor(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	busy, err := s.busyIntervals(ctx, doctorID, dayStart)
	if err != nil {
		return nil, err
	}

	return schedule.SlotsForDay(sched, dayStart, busy, s.clk.Now()), nil
}

// Book creates a scheduled appointment if the requested slot is valid and
// free. Validation and insert race with concurrent bookings; the store's
// unique active-slot index makes sure at most one wins, the loser getting
// ErrSlotConflict.
func (s *Service) Book(ctx context.Context, patientID uuid.UUID, req BookRequest) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.book", trace.WithAttributes(
		attribute.String("scheduler.doctor_id", req.DoctorID.String()),
		attribute.String("scheduler.patient_id", patientID.String()),
	))
	defer span.End()

	if strings.TrimSpace(req.Reason) == "" {
		s.metrics.BookingAttempt("invalid")
		return nil, ErrEmptyReason
	}

	sched, err := s.schedules.GetByDoctor(ctx, req.DoctorID)
	if err != nil {
		span.RecordError(err)
		s.metrics.BookingAttempt("invalid")
		return nil, err
	}

	now := s.clk.Now()
	start := req.Start.UTC()
	end := req.End.UTC()
	if !start.After(now) || !schedule.AlignedSlot(sched, start, end) {
		s.metrics.BookingAttempt("invalid")
		return nil, ErrInvalidSlot
	}

	dayStart := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	busy, err := s.busyIntervals(ctx, req.DoctorID, dayStart)
	if err != nil {
		span.RecordError(err)
		s.metrics.BookingAttempt("error")
		return nil, err
	}
	for _, b := range busy {
		if start.Before(b.End) && b.Start.Before(end) {
			s.metrics.BookingAttempt("conflict")
			return nil, ErrSlotConflict
		}
	}

	a := &Appointment{
		DoctorID:  req.DoctorID,
		PatientID: patientID,
		Start:     start,
		End:       end,
		Reason:    strings.TrimSpace(req.Reason),
		Status:    StatusScheduled,
	}
	if err := s.store.Create(ctx, a); err != nil {
		span.RecordError(err)
		if err == ErrSlotConflict {
			s.metrics.BookingAttempt("conflict")
		} else {
			s.metrics.BookingAttempt("error")
		}
		return nil, err
	}

	s.metrics.BookingAttempt("created")
	s.logger.Info("appointment booked",
		"appointment_id", a.ID,
		"doctor_id", a.DoctorID,
		"patient_id", a.PatientID,
		"start", a.Start,
	)
	return a, nil
}

// Confirm moves a scheduled appointment to confirmed. Only the owning
// patient, only inside the window [start - window, start).
func (s *Service) Confirm(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Appointment, error) {
	ctx, span := tracer.Start(ctx, "appointments.confirm", trace.WithAttributes(
		attribute.String("scheduler.appointment_id", id.String()),
	))
	defer span.End()

	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ident.Role != auth.RolePatient || a.PatientID != ident.UserID {
		return nil, ErrNotOwner
	}
	if a.Status != StatusScheduled {
		s.metrics.Transition(string(StatusConfirmed), "rejected")
		return nil, ErrNotConfirmable
	}

	now := s.clk.Now()
	if now.Before(a.Start.Add(-s.window)) {
		s.metrics.Transition(string(StatusConfirmed), "rejected")
		return nil, ErrTooEarly
	}
	if !now.Before(a.Start) {
		// The sweep has (or is about to have) moved this row to no_show.
		s.metrics.Transition(string(StatusConfirmed), "rejected")
		return nil, ErrNotConfirmable
	}

	updated, err := s.store.UpdateStatus(ctx, id, StatusConfirmed, a.Version)
	if err != nil {
		span.RecordError(err)
		s.metrics.Transition(string(StatusConfirmed), "conflict")
		return nil, err
	}

	s.metrics.Transition(string(StatusConfirmed), "applied")
	s.logger.Info("appointment confirmed", "appointment_id", id, "patient_id", ident.UserID)
	s.dispatch(ctx, updated, s.notifierConfirmed)
	return updated, nil
}

// Cancel cancels a scheduled or confirmed appointment before it starts.
// Both the owning patient and the owning doctor may cancel.
func (s *Service) Cancel(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !owns(ident, a) {
		return nil, ErrNotOwner
	}
	if !a.Status.Active() || !s.clk.Now().Before(a.Start) {
		s.metrics.Transition(string(StatusCancelled), "rejected")
		return nil, ErrAlreadyFinal
	}

	updated, err := s.store.UpdateStatus(ctx, id, StatusCancelled, a.Version)
	if err != nil {
		s.metrics.Transition(string(StatusCancelled), "conflict")
		return nil, err
	}

	s.metrics.Transition(string(StatusCancelled), "applied")
	s.logger.Info("appointment cancelled",
		"appointment_id", id,
		"by", ident.UserID,
		"role", ident.Role,
	)
	s.dispatch(ctx, updated, s.notifierCancelled)
	return updated, nil
}

// Complete marks a confirmed appointment as completed. Owning doctor only.
func (s *Service) Complete(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if ident.Role != auth.RoleDoctor || a.DoctorID != ident.UserID {
		return nil, ErrNotOwner
	}
	if !CanTransition(a.Status, StatusCompleted) {
		s.metrics.Transition(string(StatusCompleted), "rejected")
		return nil, ErrInvalidTransition
	}

	updated, err := s.store.UpdateStatus(ctx, id, StatusCompleted, a.Version)
	if err != nil {
		s.metrics.Transition(string(StatusCompleted), "conflict")
		return nil, err
	}

	s.metrics.Transition(string(StatusCompleted), "applied")
	s.logger.Info("appointment completed", "appointment_id", id, "doctor_id", ident.UserID)
	return updated, nil
}

// Get returns an appointment visible to its doctor or patient only.
func (s *Service) Get(ctx context.Context, ident auth.Identity, id uuid.UUID) (*Appointment, error) {
	a, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.DoctorID != ident.UserID && a.PatientID != ident.UserID {
		return nil, ErrNotOwner
	}
	return a, nil
}

// List returns the caller's appointments, role-scoped.
func (s *Service) List(ctx context.Context, ident auth.Identity, opts ListOptions) ([]Appointment, error) {
	return s.store.ListForUser(ctx, ident.UserID, ident.Role, opts)
}

// Stats aggregates the calling doctor's appointment history.
func (s *Service) Stats(ctx context.Context, ident auth.Identity, doctorID uuid.UUID, groupBy string, limit int) (*DoctorStats, error) {
	if ident.Role != auth.RoleDoctor || ident.UserID != doctorID {
		return nil, ErrNotOwner
	}
	return s.store.DoctorStats(ctx, doctorID, groupBy, limit)
}

func (s *Service) busyIntervals(ctx context.Context, doctorID uuid.UUID, dayStart time.Time) ([]schedule.Interval, error) {
	active, err := s.store.ListActiveForDoctorRange(ctx, doctorID, dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		return nil, err
	}
	busy := make([]schedule.Interval, 0, len(active))
	for _, a := range active {
		busy = append(busy, schedule.Interval{Start: a.Start, End: a.End})
	}
	return busy, nil
}

func owns(ident auth.Identity, a *Appointment) bool {
	switch ident.Role {
	case auth.RolePatient:
		return a.PatientID == ident.UserID
	case auth.RoleDoctor:
		return a.DoctorID == ident.UserID
	}
	return false
}

func (s *Service) notifierConfirmed(ctx context.Context, a *Appointment) error {
	return s.notifier.AppointmentConfirmed(ctx, a)
}

func (s *Service) notifierCancelled(ctx context.Context, a *Appointment) error {
	return s.notifier.AppointmentCancelled(ctx, a)
}

func (s *Service) dispatch(ctx context.Context, a *Appointment, send func(context.Context, *Appointment) error) {
	if s.notifier == nil {
		return
	}
	if err := send(ctx, a); err != nil {
		s.logger.Warn("notification dispatch failed", "appointment_id", a.ID, "error", err)
	}
}
