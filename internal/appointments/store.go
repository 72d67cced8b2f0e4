package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinicbase/scheduler/internal/auth"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ListOptions narrows an appointment listing.
type ListOptions struct {
	Limit int
	// Optional half-open time range [From, To) on start. Zero values mean
	// no range filter.
	From time.Time
	To   time.Time
}

// Store is the persistence contract the engine writes through. All mutation
// of appointment rows goes through this interface; it is the sole
// transaction boundary.
type Store interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListForUser(ctx context.Context, userID uuid.UUID, role auth.Role, opts ListOptions) ([]Appointment, error)
	ListActiveForDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status, expectedVersion int64) (*Appointment, error)
	MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error)
	ListDueReminders(ctx context.Context, now, windowClose time.Time) ([]Appointment, error)
	ListOverdueScheduled(ctx context.Context, now time.Time) ([]Appointment, error)
	DoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy string, limit int) (*DoctorStats, error)
}

// PostgresStore persists appointments in Postgres. Slot uniqueness is
// enforced by a partial unique index on (doctor_id, start_at) covering only
// active rows, so create-if-free is a single atomic insert.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates an appointment store.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const apptColumns = `id, doctor_id, patient_id, start_at, end_at, reason, status, reminder_sent, version, created_at, updated_at`

// Create inserts a new appointment. A unique-index violation on the active
// slot index maps to ErrSlotConflict: the other booking won the race.
func (s *PostgresStore) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusScheduled
	}
	if a.Version == 0 {
		a.Version = 1
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, start_at, end_at, reason, status, reminder_sent, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.DoctorID, a.PatientID, a.Start, a.End, a.Reason,
		string(a.Status), a.ReminderSent, a.Version, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrSlotConflict
		}
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// GetByID loads a single appointment.
func (s *PostgresStore) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE id = $1`, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// ListForUser returns the caller's appointments, newest first. Doctors see
// the appointments they host, patients the ones they booked.
func (s *PostgresStore) ListForUser(ctx context.Context, userID uuid.UUID, role auth.Role, opts ListOptions) ([]Appointment, error) {
	column := "patient_id"
	if role == auth.RoleDoctor {
		column = "doctor_id"
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	query := `SELECT ` + apptColumns + ` FROM appointments WHERE ` + column + ` = $1`
	args := []any{userID}
	if !opts.From.IsZero() && !opts.To.IsZero() {
		query += ` AND start_at >= $2 AND start_at < $3 ORDER BY start_at DESC LIMIT $4`
		args = append(args, opts.From, opts.To, limit)
	} else {
		query += ` ORDER BY start_at DESC LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for user: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListActiveForDoctorRange returns scheduled/confirmed appointments for a
// doctor with start in [from, to). These are the busy intervals slot
// computation masks against.
func (s *PostgresStore) ListActiveForDoctorRange(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE doctor_id = $1
		  AND start_at >= $2 AND start_at < $3
		  AND status IN ('scheduled', 'confirmed')
		ORDER BY start_at ASC`, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list active: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// UpdateStatus applies a status transition with optimistic concurrency. The
// write commits only if the row still carries expectedVersion; otherwise the
// caller observed stale state and gets ErrStaleVersion.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id uuid.UUID, to Status, expectedVersion int64) (*Appointment, error) {
	now := time.Now().UTC()
	row := s.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $1, version = version + 1, updated_at = $2
		WHERE id = $3 AND version = $4
		RETURNING `+apptColumns, string(to), now, id, expectedVersion)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetByID(ctx, id); getErr != nil {
				return nil, getErr
			}
			return nil, ErrStaleVersion
		}
		return nil, fmt.Errorf("appointments: update status: %w", err)
	}
	return a, nil
}

// MarkReminderSent latches reminder_sent from false to true. Returns false when
// the reminder was already claimed, so overlapping sweeps dispatch at most
// once per appointment.
func (s *PostgresStore) MarkReminderSent(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET reminder_sent = TRUE, updated_at = $1
		WHERE id = $2 AND reminder_sent = FALSE`, time.Now().UTC(), id)
	if err != nil {
		return false, fmt.Errorf("appointments: mark reminder sent: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListDueReminders returns scheduled appointments inside the confirmation
// window that have not been reminded yet. Appointments already at/past start
// are excluded; the no-show pass picks those up.
func (s *PostgresStore) ListDueReminders(ctx context.Context, now, windowClose time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND reminder_sent = FALSE
		  AND start_at > $1
		  AND start_at <= $2
		ORDER BY start_at ASC`, now, windowClose)
	if err != nil {
		return nil, fmt.Errorf("appointments: list due reminders: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// ListOverdueScheduled returns still-scheduled appointments whose start has
// passed; these lapse to no_show.
func (s *PostgresStore) ListOverdueScheduled(ctx context.Context, now time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE status = 'scheduled'
		  AND start_at <= $1
		ORDER BY start_at ASC`, now)
	if err != nil {
		return nil, fmt.Errorf("appointments: list overdue: %w", err)
	}
	defer rows.Close()
	return scanAppointments(rows)
}

// DoctorStats aggregates a doctor's appointment counts by period.
func (s *PostgresStore) DoctorStats(ctx context.Context, doctorID uuid.UUID, groupBy string, limit int) (*DoctorStats, error) {
	format := "YYYY-MM"
	if groupBy == "day" {
		format = "YYYY-MM-DD"
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.Query(ctx, `
		SELECT to_char(start_at, $1) AS period,
		       count(*) AS total,
		       count(*) FILTER (WHERE status = 'scheduled') AS scheduled,
		       count(*) FILTER (WHERE status = 'confirmed') AS confirmed,
		       count(*) FILTER (WHERE status = 'completed') AS completed,
		       count(*) FILTER (WHERE status = 'cancelled') AS cancelled,
		       count(*) FILTER (WHERE status = 'no_show') AS no_show
		FROM appointments
		WHERE doctor_id = $2
		GROUP BY period
		ORDER BY period DESC
		LIMIT $3`, format, doctorID, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: stats: %w", err)
	}
	defer rows.Close()

	stats := &DoctorStats{DoctorID: doctorID}
	for rows.Next() {
		var p StatsPeriod
		if err := rows.Scan(&p.Period, &p.Count, &p.Scheduled, &p.Confirmed, &p.Completed, &p.Cancelled, &p.NoShow); err != nil {
			return nil, fmt.Errorf("appointments: scan stats: %w", err)
		}
		stats.Stats = append(stats.Stats, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: stats rows: %w", err)
	}

	if err := s.db.QueryRow(ctx, `
		SELECT count(*) FROM appointments WHERE doctor_id = $1`, doctorID,
	).Scan(&stats.TotalAppointments); err != nil {
		return nil, fmt.Errorf("appointments: stats total: %w", err)
	}
	return stats, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	if err := row.Scan(
		&a.ID, &a.DoctorID, &a.PatientID, &a.Start, &a.End, &a.Reason,
		&status, &a.ReminderSent, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func scanAppointments(rows pgx.Rows) ([]Appointment, error) {
	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan row: %w", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: rows: %w", err)
	}
	return out, nil
}
