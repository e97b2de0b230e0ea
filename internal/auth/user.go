// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// User is an account record held by the Credential Store.
type User struct {
	ID           ulid.ULID
	Name         string
	Email        string
	PasswordHash string
	PendingReset *PendingReset // nil when no reset is active
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the outward view of a User. It never carries the password
// hash or reset state.
type PublicUser struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// NewUser creates a validated User. The email is normalised.
func NewUser(name, email, passwordHash string) (*User, error) {
	name = strings.TrimSpace(name)
	email = NormalizeEmail(email)
	if name == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("name cannot be empty")
	}
	if email == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("email cannot be empty")
	}
	if passwordHash == "" {
		return nil, oops.Code(CodeInvalidInput).Errorf("password hash cannot be empty")
	}

	now := time.Now().UTC()
	return &User{
		ID:           ulid.Make(),
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// Public returns the outward view of u.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID.String(),
		Name:      u.Name,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address for case-insensitive lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// UserRepository is the Credential Store. Implementations must make
// CompleteReset atomic: of two concurrent calls for the same digest at most
// one may succeed.
type UserRepository interface {
	// Create stores a new user.
	// Returns ErrDuplicateEmail if the email is already registered.
	Create(ctx context.Context, user *User) error

	// GetByID retrieves a user by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*User, error)

	// GetByEmail retrieves a user by email (case-insensitive).
	// Returns ErrNotFound if no user has the given email.
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByResetDigest retrieves the user whose pending reset carries digest.
	// Expiry is not filtered here.
	GetByResetDigest(ctx context.Context, digest string) (*User, error)

	// Update saves name and password hash changes for an existing user.
	Update(ctx context.Context, user *User) error

	// SetResetToken records a pending reset, replacing any previous one.
	SetResetToken(ctx context.Context, id ulid.ULID, digest string, expiresAt time.Time) error

	// CompleteReset replaces the password hash and clears the pending reset in
	// one write, provided the stored digest still equals digest and has not
	// expired at now. Otherwise returns ErrResetNotPending.
	CompleteReset(ctx context.Context, id ulid.ULID, digest, passwordHash string, now time.Time) error

	// ClearResetToken removes the pending reset if it still carries digest.
	ClearResetToken(ctx context.Context, id ulid.ULID, digest string) error

	// ClearExpiredResets removes every pending reset that expired at or
	// before now and returns how many were cleared.
	ClearExpiredResets(ctx context.Context, now time.Time) (int64, error)
}
