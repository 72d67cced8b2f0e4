// Package auth carries the verified caller identity through request context.
// Token issuance and user management live upstream; the engine only consumes
// the (userID, role) pair the session layer has already verified.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Role distinguishes the two caller kinds the engine recognizes.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Valid reports whether the role is one the engine knows.
func (r Role) Valid() bool {
	return r == RolePatient || r == RoleDoctor
}

// Identity is the verified caller passed into every engine call.
type Identity struct {
	UserID uuid.UUID
	Role   Role
}

type ctxKey string

const identityKey ctxKey = "scheduler.identity"

// WithIdentity stores the caller identity in context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the caller identity if present.
func FromContext(ctx context.Context) (Identity, bool) {
	val := ctx.Value(identityKey)
	if val == nil {
		return Identity{}, false
	}
	id, ok := val.(Identity)
	return id, ok && id.UserID != uuid.Nil && id.Role.Valid()
}
