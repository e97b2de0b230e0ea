// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package postgres provides PostgreSQL implementations of auth repositories.
package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/auth"
)

// DBTX is the subset of pgxpool.Pool the repository uses. pgxmock.PgxPoolIface
// satisfies it in tests.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const userColumns = `id, name, email, password_hash, reset_token_hash, reset_expires_at, created_at, updated_at`

// UserRepository implements auth.UserRepository using PostgreSQL.
type UserRepository struct {
	pool DBTX
}

// NewUserRepository creates a new UserRepository.
func NewUserRepository(pool DBTX) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create stores a new user.
func (r *UserRepository) Create(ctx context.Context, user *auth.User) error {
	var digest *string
	var expiresAt *time.Time
	if user.PendingReset != nil {
		digest = &user.PendingReset.TokenHash
		expiresAt = &user.PendingReset.ExpiresAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		user.ID.String(),
		user.Name,
		auth.NormalizeEmail(user.Email),
		user.PasswordHash,
		digest,
		expiresAt,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return oops.Code("USER_DUPLICATE_EMAIL").
				With("constraint", pgErr.ConstraintName).
				Wrap(auth.ErrDuplicateEmail)
		}
		return oops.Code("USER_CREATE_FAILED").
			With("operation", "insert user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a user by ID.
func (r *UserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id.String())

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_ID_FAILED").
			With("operation", "get user by id").
			With("id", id.String()).
			Wrap(err)
	}
	return user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE LOWER(email) = LOWER($1)`, email)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("email", email).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_EMAIL_FAILED").
			With("operation", "get user by email").
			Wrap(err)
	}
	return user, nil
}

// GetByResetDigest retrieves the user whose pending reset carries digest.
func (r *UserRepository) GetByResetDigest(ctx context.Context, digest string) (*auth.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE reset_token_hash = $1`, digest)

	user, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("USER_NOT_FOUND").
			With("lookup", "reset digest").
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_BY_RESET_FAILED").
			With("operation", "get user by reset digest").
			Wrap(err)
	}
	return user, nil
}

// Update saves name and password hash changes.
func (r *UserRepository) Update(ctx context.Context, user *auth.User) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET name = $2, password_hash = $3, updated_at = $4
		WHERE id = $1
	`, user.ID.String(), user.Name, user.PasswordHash, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_UPDATE_FAILED").
			With("operation", "update user").
			With("id", user.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", user.ID.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// SetResetToken records a pending reset, replacing any previous one.
func (r *UserRepository) SetResetToken(ctx context.Context, id ulid.ULID, digest string, expiresAt time.Time) error {
	if _, err := auth.NewPendingReset(digest, expiresAt); err != nil {
		return err
	}
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = $2, reset_expires_at = $3, updated_at = $4
		WHERE id = $1
	`, id.String(), digest, expiresAt, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_SET_RESET_FAILED").
			With("operation", "set reset token").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	return nil
}

// CompleteReset replaces the password hash and clears the pending reset in
// one conditional UPDATE. Concurrent callers with the same digest serialise
// on the row lock; only the first still matches the WHERE clause.
func (r *UserRepository) CompleteReset(ctx context.Context, id ulid.ULID, digest, passwordHash string, now time.Time) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE users
		SET password_hash = $3, reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $4
		WHERE id = $1 AND reset_token_hash = $2 AND reset_expires_at > $4
	`, id.String(), digest, passwordHash, now)
	if err != nil {
		return oops.Code("USER_COMPLETE_RESET_FAILED").
			With("operation", "complete reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("USER_RESET_NOT_PENDING").
			With("id", id.String()).
			Wrap(auth.ErrResetNotPending)
	}
	return nil
}

// ClearResetToken removes the pending reset if it still carries digest.
func (r *UserRepository) ClearResetToken(ctx context.Context, id ulid.ULID, digest string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $3
		WHERE id = $1 AND reset_token_hash = $2
	`, id.String(), digest, time.Now().UTC())
	if err != nil {
		return oops.Code("USER_CLEAR_RESET_FAILED").
			With("operation", "clear reset token").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// ClearExpiredResets removes every pending reset expired at now.
func (r *UserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.pool.Exec(ctx, `
		UPDATE users SET reset_token_hash = NULL, reset_expires_at = NULL, updated_at = $1
		WHERE reset_expires_at IS NOT NULL AND reset_expires_at <= $1
	`, now)
	if err != nil {
		return 0, oops.Code("USER_CLEAR_EXPIRED_FAILED").
			With("operation", "clear expired resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanUser scans a single row into a User.
// Callers are responsible for handling pgx.ErrNoRows and wrapping scan errors.
func scanUser(row pgx.Row) (*auth.User, error) {
	var (
		idStr        string
		name         string
		email        string
		passwordHash string
		digest       *string
		expiresAt    *time.Time
		createdAt    time.Time
		updatedAt    time.Time
	)

	// QueryRow defers query errors to Scan; callers attach the lookup code.
	if err := row.Scan(&idStr, &name, &email, &passwordHash, &digest, &expiresAt, &createdAt, &updatedAt); err != nil {
		return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("USER_INVALID_ID").
			With("operation", "parse user id").
			With("id", idStr).
			Wrap(err)
	}

	user := &auth.User{
		ID:           id,
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
	}

	switch {
	case digest != nil && expiresAt != nil:
		user.PendingReset = &auth.PendingReset{TokenHash: *digest, ExpiresAt: *expiresAt}
	case digest != nil || expiresAt != nil:
		return nil, oops.Code(auth.CodeResetInconsistent).
			With("id", idStr).
			With("has_digest", digest != nil).
			With("has_expiry", expiresAt != nil).
			Errorf("reset token hash and expiry must be set together")
	}

	return user, nil
}

// Compile-time interface check.
var _ auth.UserRepository = (*UserRepository)(nil)
