// Package handlers exposes the scheduling engine over HTTP.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicbase/scheduler/internal/appointments"
	"github.com/clinicbase/scheduler/internal/auth"
	"github.com/clinicbase/scheduler/internal/schedule"
	"github.com/clinicbase/scheduler/pkg/logging"
)

// AppointmentsHandler serves the appointment booking and lifecycle API.
type AppointmentsHandler struct {
	svc    *appointments.Service
	logger *logging.Logger
}

// NewAppointmentsHandler creates the handler.
func NewAppointmentsHandler(svc *appointments.Service, logger *logging.Logger) *AppointmentsHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &AppointmentsHandler{svc: svc, logger: logger}
}

// CreateAppointmentRequest is the booking request payload.
type CreateAppointmentRequest struct {
	DoctorID uuid.UUID `json:"doctor_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Reason   string    `json:"reason"`
}

// SlotsResponse lists a doctor's slots for one date.
type SlotsResponse struct {
	DoctorID uuid.UUID       `json:"doctor_id"`
	Date     string          `json:"date"`
	Slots    []schedule.Slot `json:"slots"`
}

// AppointmentsListResponse lists the caller's appointments.
type AppointmentsListResponse struct {
	Appointments []appointments.Appointment `json:"appointments"`
}

// ListSlots returns the slot grid for a doctor on a given date.
// GET /doctors/{doctorID}/slots?date=YYYY-MM-DD
func (h *AppointmentsHandler) ListSlots(w http.ResponseWriter, r *http.Request) {
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctor id")
		return
	}
	dateParam := r.URL.Query().Get("date")
	date, err := time.ParseInLocation("2006-01-02", dateParam, time.UTC)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	slots, err := h.svc.ListSlots(r.Context(), doctorID, date)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if slots == nil {
		slots = []schedule.Slot{}
	}
	writeJSON(w, http.StatusOK, SlotsResponse{DoctorID: doctorID, Date: dateParam, Slots: slots})
}

// Create books an appointment for the calling patient.
// POST /appointments
func (h *AppointmentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if ident.Role != auth.RolePatient {
		writeError(w, http.StatusForbidden, "only patients can book appointments")
		return
	}

	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DoctorID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "doctor_id is required")
		return
	}
	if req.Start.IsZero() || req.End.IsZero() {
		writeError(w, http.StatusBadRequest, "start and end are required")
		return
	}

	a, err := h.svc.Book(r.Context(), ident.UserID, appointments.BookRequest{
		DoctorID: req.DoctorID,
		Start:    req.Start,
		End:      req.End,
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// List returns the caller's appointments.
// GET /appointments?limit=&month=YYYY-MM
func (h *AppointmentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	opts := appointments.ListOptions{}
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		opts.Limit = limit
	}
	if monthParam := r.URL.Query().Get("month"); monthParam != "" {
		from, err := time.ParseInLocation("2006-01", monthParam, time.UTC)
		if err != nil {
			writeError(w, http.StatusBadRequest, "month must be YYYY-MM")
			return
		}
		opts.From = from
		opts.To = from.AddDate(0, 1, 0)
	}

	appts, err := h.svc.List(r.Context(), ident, opts)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if appts == nil {
		appts = []appointments.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentsListResponse{Appointments: appts})
}

// Get returns one appointment.
// GET /appointments/{id}
func (h *AppointmentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (*appointments.Appointment, error) {
		return h.svc.Get(r.Context(), ident, id)
	})
}

// Confirm confirms a scheduled appointment.
// POST /appointments/{id}/confirm
func (h *AppointmentsHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (*appointments.Appointment, error) {
		return h.svc.Confirm(r.Context(), ident, id)
	})
}

// Cancel cancels an active appointment.
// POST /appointments/{id}/cancel
func (h *AppointmentsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (*appointments.Appointment, error) {
		return h.svc.Cancel(r.Context(), ident, id)
	})
}

// Complete marks a confirmed appointment completed.
// POST /appointments/{id}/complete
func (h *AppointmentsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	h.withAppointment(w, r, func(ident auth.Identity, id uuid.UUID) (*appointments.Appointment, error) {
		return h.svc.Complete(r.Context(), ident, id)
	})
}

// Stats returns the calling doctor's appointment statistics.
// GET /doctors/{doctorID}/stats?group_by=month|day&limit=
func (h *AppointmentsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	doctorID, err := uuid.Parse(chi.URLParam(r, "doctorID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid doctor id")
		return
	}

	groupBy := r.URL.Query().Get("group_by")
	if groupBy == "" {
		groupBy = "month"
	}
	if groupBy != "month" && groupBy != "day" {
		writeError(w, http.StatusBadRequest, "group_by must be month or day")
		return
	}
	limit := 10
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		limit, err = strconv.Atoi(limitParam)
		if err != nil || limit < 1 || limit > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
	}

	stats, err := h.svc.Stats(r.Context(), ident, doctorID, groupBy, limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *AppointmentsHandler) withAppointment(w http.ResponseWriter, r *http.Request, op func(auth.Identity, uuid.UUID) (*appointments.Appointment, error)) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid appointment id")
		return
	}

	a, err := op(ident, id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// writeServiceError maps engine errors to HTTP statuses.
func (h *AppointmentsHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appointments.ErrNotFound), errors.Is(err, schedule.ErrUnknownDoctor):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, appointments.ErrNotOwner):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, appointments.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot is no longer available")
	case errors.Is(err, appointments.ErrStaleVersion):
		writeError(w, http.StatusConflict, "appointment changed, retry")
	case errors.Is(err, appointments.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "slot is not a valid bookable slot")
	case errors.Is(err, appointments.ErrEmptyReason):
		writeError(w, http.StatusBadRequest, "reason is required")
	case errors.Is(err, appointments.ErrTooEarly):
		writeError(w, http.StatusBadRequest, "confirmation window not open yet")
	case errors.Is(err, appointments.ErrNotConfirmable):
		writeError(w, http.StatusBadRequest, "appointment cannot be confirmed")
	case errors.Is(err, appointments.ErrAlreadyFinal):
		writeError(w, http.StatusBadRequest, "appointment already finalized")
	case errors.Is(err, appointments.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid status transition")
	default:
		h.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
