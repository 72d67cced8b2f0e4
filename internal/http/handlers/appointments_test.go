package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicbase/scheduler/internal/appointments"
	"github.com/clinicbase/scheduler/internal/auth"
	"github.com/clinicbase/scheduler/internal/clock"
	"github.com/clinicbase/scheduler/internal/schedule"
	"github.com/clinicbase/scheduler/pkg/logging"
)

// memStore is a minimal in-memory appointments.Store for handler tests.
type memStore struct {
	rows map[uuid.UUID]*appointments.Appointment
}

func newMemStore() *memStore {
	return &memStore{rows: map[uuid.UUID]*appointments.Appointment{}}
}

func (m *memStore) Create(_ context.Context, a *appointments.Appointment) error {
	for _, existing := range m.rows {
		if existing.DoctorID == a.DoctorID && existing.Start.Equal(a.Start) && existing.Status.Active() {
			return appointments.ErrSlotConflict
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.Version == 0 {
		a.Version = 1
	}
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*appointments.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memStore) ListForUser(_ context.Context, userID uuid.UUID, role auth.Role, opts appointments.ListOptions) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range m.rows {
		owner := a.PatientID
		if role == auth.RoleDoctor {
			owner = a.DoctorID
		}
		if owner != userID {
			continue
		}
		if !opts.From.IsZero() && (a.Start.Before(opts.From) || !a.Start.Before(opts.To)) {
			continue
		}
		out = append(out, *a)
	}
	return out, nil
}

func (m *memStore) ListActiveForDoctorRange(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range m.rows {
		if a.DoctorID == doctorID && a.Status.Active() && !a.Start.Before(from) && a.Start.Before(to) {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id uuid.UUID, to appointments.Status, expectedVersion int64) (*appointments.Appointment, error) {
	a, ok := m.rows[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	if a.Version != expectedVersion {
		return nil, appointments.ErrStaleVersion
	}
	a.Status = to
	a.Version++
	cp := *a
	return &cp, nil
}

func (m *memStore) MarkReminderSent(_ context.Context, id uuid.UUID) (bool, error) {
	a, ok := m.rows[id]
	if !ok || a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	return true, nil
}

func (m *memStore) ListDueReminders(_ context.Context, _, _ time.Time) ([]appointments.Appointment, error) {
	return nil, nil
}

func (m *memStore) ListOverdueScheduled(_ context.Context, _ time.Time) ([]appointments.Appointment, error) {
	return nil, nil
}

func (m *memStore) DoctorStats(_ context.Context, doctorID uuid.UUID, _ string, _ int) (*appointments.DoctorStats, error) {
	return &appointments.DoctorStats{DoctorID: doctorID}, nil
}

type stubSchedules struct {
	sched *schedule.Schedule
}

func (s *stubSchedules) GetByDoctor(_ context.Context, doctorID uuid.UUID) (*schedule.Schedule, error) {
	if s.sched == nil || s.sched.DoctorID != doctorID {
		return nil, schedule.ErrUnknownDoctor
	}
	return s.sched, nil
}

type fixture struct {
	router    chi.Router
	store     *memStore
	clk       *clock.Fake
	doctorID  uuid.UUID
	patientID uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	doctorID := uuid.New()
	shifts := []schedule.Shift{{Start: "09:00", End: "17:00"}}
	sched := &schedule.Schedule{
		DoctorID:     doctorID,
		SlotDuration: 30 * time.Minute,
		Hours:        schedule.WeeklyHours{Monday: shifts, Tuesday: shifts, Wednesday: shifts, Thursday: shifts, Friday: shifts},
	}
	store := newMemStore()
	clk := clock.NewFake(time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))
	logger := logging.NewWithWriter("error", io.Discard)
	svc := appointments.NewService(store, &stubSchedules{sched: sched}, nil, clk, 3*time.Hour, nil, logger)
	h := NewAppointmentsHandler(svc, logger)

	r := chi.NewRouter()
	r.Get("/doctors/{doctorID}/slots", h.ListSlots)
	r.Get("/doctors/{doctorID}/stats", h.Stats)
	r.Post("/appointments", h.Create)
	r.Get("/appointments", h.List)
	r.Get("/appointments/{id}", h.Get)
	r.Post("/appointments/{id}/confirm", h.Confirm)
	r.Post("/appointments/{id}/cancel", h.Cancel)
	r.Post("/appointments/{id}/complete", h.Complete)

	return &fixture{router: r, store: store, clk: clk, doctorID: doctorID, patientID: uuid.New()}
}

func (f *fixture) do(t *testing.T, method, target string, body any, ident *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	if ident != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), *ident))
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) patient() *auth.Identity {
	return &auth.Identity{UserID: f.patientID, Role: auth.RolePatient}
}

func (f *fixture) doctor() *auth.Identity {
	return &auth.Identity{UserID: f.doctorID, Role: auth.RoleDoctor}
}

func (f *fixture) bookRequest(start time.Time) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		DoctorID: f.doctorID,
		Start:    start,
		End:      start.Add(30 * time.Minute),
		Reason:   "checkup",
	}
}

func decodeAppointment(t *testing.T, rec *httptest.ResponseRecorder) appointments.Appointment {
	t.Helper()
	var a appointments.Appointment
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&a))
	return a
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	a := decodeAppointment(t, rec)
	assert.Equal(t, appointments.StatusScheduled, a.Status)
	assert.Equal(t, f.patientID, a.PatientID)
}

func TestCreateAppointmentRequiresAuth(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateAppointmentDoctorForbidden(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.doctor())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCreateAppointmentConflict(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())
	require.Equal(t, http.StatusCreated, rec.Code)

	other := &auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}
	rec = f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), other)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestCreateAppointmentInvalidSlot(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 10, 0, 0, time.UTC)

	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAppointmentUnknownDoctor(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	req := f.bookRequest(start)
	req.DoctorID = uuid.New()

	rec := f.do(t, http.MethodPost, "/appointments", req, f.patient())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateAppointmentBadBody(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{not json"))
	req = req.WithContext(auth.WithIdentity(req.Context(), *f.patient()))
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSlots(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=2026-03-09", f.doctorID), nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SlotsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "2026-03-09", resp.Date)
	require.NotEmpty(t, resp.Slots)

	var bookedSeen bool
	for _, s := range resp.Slots {
		if s.Start.Equal(start) {
			bookedSeen = true
			assert.False(t, s.Available)
		}
	}
	assert.True(t, bookedSeen)
}

func TestListSlotsBadDate(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=tomorrow", f.doctorID), nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListSlotsUnknownDoctor(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/slots?date=2026-03-09", uuid.New()), nil, f.patient())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAppointment(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	created := decodeAppointment(t, f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient()))

	rec := f.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodeAppointment(t, rec).ID)

	// Hosting doctor can see it too; strangers cannot.
	rec = f.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, f.doctor())
	assert.Equal(t, http.StatusOK, rec.Code)

	stranger := &auth.Identity{UserID: uuid.New(), Role: auth.RolePatient}
	rec = f.do(t, http.MethodGet, "/appointments/"+created.ID.String(), nil, stranger)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGetAppointmentNotFound(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/appointments/"+uuid.NewString(), nil, f.patient())
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAppointmentBadID(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, "/appointments/abc", nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConfirmAppointment(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	created := decodeAppointment(t, f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient()))

	f.clk.Set(start.Add(-time.Hour))
	rec := f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm", nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, appointments.StatusConfirmed, decodeAppointment(t, rec).Status)
}

func TestConfirmAppointmentTooEarly(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 14, 0, 0, 0, time.UTC)
	created := decodeAppointment(t, f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient()))

	rec := f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm", nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAppointment(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	created := decodeAppointment(t, f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient()))

	rec := f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil, f.doctor())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointments.StatusCancelled, decodeAppointment(t, rec).Status)

	rec = f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCompleteAppointment(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	created := decodeAppointment(t, f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient()))

	f.clk.Set(start.Add(-time.Hour))
	rec := f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm", nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/complete", nil, f.doctor())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, appointments.StatusCompleted, decodeAppointment(t, rec).Status)

	// Patients cannot complete.
	rec = f.do(t, http.MethodPost, "/appointments/"+created.ID.String()+"/complete", nil, f.patient())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestListAppointments(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments", nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentsListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 1)
}

func TestListAppointmentsMonthFilter(t *testing.T) {
	f := newFixture(t)
	start := time.Date(2026, 3, 9, 10, 0, 0, 0, time.UTC)
	rec := f.do(t, http.MethodPost, "/appointments", f.bookRequest(start), f.patient())
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments?month=2026-03", nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)
	var resp AppointmentsListResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp.Appointments, 1)

	rec = f.do(t, http.MethodGet, "/appointments?month=2026-04", nil, f.patient())
	require.Equal(t, http.StatusOK, rec.Code)
	resp = AppointmentsListResponse{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Empty(t, resp.Appointments)
}

func TestListAppointmentsBadParams(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/appointments?limit=0", nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/appointments?month=March", nil, f.patient())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/stats", f.doctorID), nil, f.doctor())
	require.Equal(t, http.StatusOK, rec.Code)

	var stats appointments.DoctorStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, f.doctorID, stats.DoctorID)
}

func TestStatsForbiddenForOtherDoctor(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/stats", uuid.New()), nil, f.doctor())
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestStatsBadGroupBy(t *testing.T) {
	f := newFixture(t)
	rec := f.do(t, http.MethodGet, fmt.Sprintf("/doctors/%s/stats?group_by=year", f.doctorID), nil, f.doctor())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
