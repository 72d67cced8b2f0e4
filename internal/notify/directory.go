package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrUnknownUser is returned when no contact record exists for a user.
var ErrUnknownUser = errors.New("notify: unknown user")

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresDirectory resolves contact details from the users table.
type PostgresDirectory struct {
	db DB
}

// NewPostgresDirectory creates a contact directory.
func NewPostgresDirectory(db DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

// Lookup implements Directory.
func (d *PostgresDirectory) Lookup(ctx context.Context, userID uuid.UUID) (*Contact, error) {
	var c Contact
	var phone, email *string
	err := d.db.QueryRow(ctx, `
		SELECT name, phone, email
		FROM users
		WHERE id = $1`, userID,
	).Scan(&c.Name, &phone, &email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("notify: lookup contact: %w", err)
	}
	if phone != nil {
		c.Phone = *phone
	}
	if email != nil {
		c.Email = *email
	}
	return &c, nil
}
