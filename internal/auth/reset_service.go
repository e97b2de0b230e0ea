// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/samber/oops"
)

// IssuedReset is the result of a reset request for a known account. Secret
// is the plaintext token and must only be handed to a ResetNotifier.
type IssuedReset struct {
	Secret    string
	ExpiresAt time.Time
	User      PublicUser
}

// PasswordResetService runs the single-use reset token protocol.
type PasswordResetService struct {
	users  UserRepository
	hasher PasswordHasher
	logger *slog.Logger
	expiry time.Duration
	now    func() time.Time
}

// ResetOption configures a PasswordResetService during construction.
type ResetOption func(*PasswordResetService)

// WithResetExpiry sets the reset token lifetime. Non-positive values are ignored.
func WithResetExpiry(d time.Duration) ResetOption {
	return func(s *PasswordResetService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithResetClock overrides the time source. Intended for tests.
func WithResetClock(now func() time.Time) ResetOption {
	return func(s *PasswordResetService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewPasswordResetService creates a new PasswordResetService with a no-op logger.
func NewPasswordResetService(users UserRepository, hasher PasswordHasher, opts ...ResetOption) (*PasswordResetService, error) {
	return NewPasswordResetServiceWithLogger(users, hasher, slog.New(slog.DiscardHandler), opts...)
}

// NewPasswordResetServiceWithLogger creates a new PasswordResetService with the provided logger.
func NewPasswordResetServiceWithLogger(
	users UserRepository,
	hasher PasswordHasher,
	logger *slog.Logger,
	opts ...ResetOption,
) (*PasswordResetService, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	if hasher == nil {
		return nil, oops.Errorf("password hasher is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	s := &PasswordResetService{
		users:  users,
		hasher: hasher,
		logger: logger,
		expiry: ResetTokenExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// BeginReset starts a reset for the account registered under email.
// If the account exists a fresh token replaces any pending one and the
// plaintext is returned. If it does not exist BeginReset returns (nil, nil)
// and changes nothing.
func (s *PasswordResetService) BeginReset(ctx context.Context, email string) (*IssuedReset, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, nil
	}

	// Token generation runs for unknown emails too, keeping both paths to the
	// same amount of work before the store is consulted.
	token, hash, err := GenerateResetToken()
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, storeUnavailable("get user by email", err)
	}

	expiresAt := s.now().UTC().Add(s.expiry)
	if err := s.users.SetResetToken(ctx, user.ID, hash, expiresAt); err != nil {
		if errors.Is(err, ErrNotFound) {
			// Deleted between lookup and write; indistinguishable from unknown.
			return nil, nil
		}
		return nil, storeUnavailable("set reset token", err)
	}

	s.logger.InfoContext(ctx, "password reset issued",
		"user_id", user.ID.String(),
		"expires_at", expiresAt,
	)

	return &IssuedReset{
		Secret:    token,
		ExpiresAt: expiresAt,
		User:      user.Public(),
	}, nil
}

// ConfirmReset exchanges a reset token for a new password. Wrong, consumed
// and expired tokens all fail with CodeResetTokenInvalid.
func (s *PasswordResetService) ConfirmReset(ctx context.Context, token, newPassword string) error {
	if newPassword == "" {
		return oops.Code(CodeInvalidInput).Errorf("new password cannot be empty")
	}
	if token == "" {
		return errResetTokenInvalid()
	}

	digest := HashResetToken(token)
	user, err := s.users.GetByResetDigest(ctx, digest)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return errResetTokenInvalid()
		}
		return storeUnavailable("get user by reset digest", err)
	}

	now := s.now().UTC()
	if user.PendingReset == nil || !VerifyResetToken(token, user.PendingReset.TokenHash) {
		return errResetTokenInvalid()
	}
	if user.PendingReset.IsExpiredAt(now) {
		s.clearExpired(ctx, user, digest)
		return errResetTokenInvalid()
	}

	newHash, err := s.hasher.Hash(newPassword)
	if err != nil {
		if ErrorCode(err) == CodeInvalidInput {
			return err
		}
		return recode(CodeHashingFailed, "hash new password", err)
	}

	if err := s.users.CompleteReset(ctx, user.ID, digest, newHash, now); err != nil {
		if errors.Is(err, ErrResetNotPending) || errors.Is(err, ErrNotFound) {
			// Another confirmation consumed the token first.
			return errResetTokenInvalid()
		}
		return storeUnavailable("complete reset", err)
	}

	s.logger.InfoContext(ctx, "password reset completed", "user_id", user.ID.String())
	return nil
}

// clearExpired lazily drops an expired pending reset. Failure is logged only;
// the token is rejected either way.
func (s *PasswordResetService) clearExpired(ctx context.Context, user *User, digest string) {
	if err := s.users.ClearResetToken(ctx, user.ID, digest); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.WarnContext(ctx, "best-effort expired reset cleanup failed",
			"user_id", user.ID.String(),
			"operation", "clear_reset_token",
			"error", err.Error(),
		)
	}
}
