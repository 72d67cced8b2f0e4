package schedule

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnknownDoctor is returned when no schedule exists for the doctor.
var ErrUnknownDoctor = errors.New("schedule: unknown doctor")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store reads doctor schedules from Postgres.
type Store struct {
	db DB
}

// NewStore creates a schedule store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// GetByDoctor loads the schedule for a doctor.
func (s *Store) GetByDoctor(ctx context.Context, doctorID uuid.UUID) (*Schedule, error) {
	var (
		slotMinutes int
		hoursJSON   []byte
	)
	err := s.db.QueryRow(ctx, `
		SELECT slot_duration_min, weekly_hours
		FROM doctors
		WHERE id = $1`, doctorID,
	).Scan(&slotMinutes, &hoursJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownDoctor
		}
		return nil, fmt.Errorf("schedule: load doctor: %w", err)
	}

	var hours WeeklyHours
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &hours); err != nil {
			return nil, fmt.Errorf("schedule: decode weekly hours: %w", err)
		}
	}

	return &Schedule{
		DoctorID:     doctorID,
		SlotDuration: time.Duration(slotMinutes) * time.Minute,
		Hours:        hours,
	}, nil
}
