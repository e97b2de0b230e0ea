// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/samber/oops"
)

// Session is the result of a successful signup or login.
type Session struct {
	Token     string     `json:"token"`
	ExpiresAt time.Time  `json:"expiresAt"`
	User      PublicUser `json:"user"`
}

// ResetRequested is returned by RequestPasswordReset. It has the same value
// whether or not an account exists.
type ResetRequested struct {
	Message string `json:"message"`
}

// Authenticator is the user-facing operation surface. Decorators such as
// Throttle wrap it without changing its contract.
type Authenticator interface {
	Signup(ctx context.Context, name, email, password string) (*Session, error)
	Login(ctx context.Context, email, password string) (*Session, error)
	CurrentUser(ctx context.Context, token string) (*PublicUser, error)
	RequestPasswordReset(ctx context.Context, email string) (*ResetRequested, error)
	ConfirmPasswordReset(ctx context.Context, secret, newPassword string) error
}

var _ Authenticator = (*Service)(nil)

// signupInput is validated before any store access.
type signupInput struct {
	Name     string `validate:"required,max=100"`
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required,max=1024"`
}

// Service provides authentication operations.
type Service struct {
	users    UserRepository
	hasher   PasswordHasher
	minter   *TokenMinter
	resets   *PasswordResetService
	notifier ResetNotifier
	validate *validator.Validate
	logger   *slog.Logger
}

// NewAuthService creates a new Service with a no-op logger.
func NewAuthService(
	users UserRepository,
	hasher PasswordHasher,
	minter *TokenMinter,
	notifier ResetNotifier,
	opts ...ResetOption,
) (*Service, error) {
	return NewAuthServiceWithLogger(users, hasher, minter, notifier, slog.New(slog.DiscardHandler), opts...)
}

// NewAuthServiceWithLogger creates a new Service with the provided logger.
// The ResetOptions configure the embedded PasswordResetService.
func NewAuthServiceWithLogger(
	users UserRepository,
	hasher PasswordHasher,
	minter *TokenMinter,
	notifier ResetNotifier,
	logger *slog.Logger,
	opts ...ResetOption,
) (*Service, error) {
	if minter == nil {
		return nil, oops.Errorf("token minter is required")
	}
	if notifier == nil {
		return nil, oops.Errorf("reset notifier is required")
	}
	resets, err := NewPasswordResetServiceWithLogger(users, hasher, logger, opts...)
	if err != nil {
		return nil, err
	}
	return &Service{
		users:    users,
		hasher:   hasher,
		minter:   minter,
		resets:   resets,
		notifier: notifier,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}, nil
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Signup registers a new account and issues a session for it.
func (s *Service) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	in := signupInput{
		Name:     strings.TrimSpace(name),
		Email:    NormalizeEmail(email),
		Password: password,
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, errDuplicateAccount()
	} else if !errors.Is(err, ErrNotFound) {
		return nil, storeUnavailable("get user by email", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, recode(CodeHashingFailed, "hash password", err)
	}

	user, err := NewUser(in.Name, in.Email, hash)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return nil, errDuplicateAccount()
		}
		return nil, storeUnavailable("create user", err)
	}

	s.logger.InfoContext(ctx, "user signed up", "user_id", user.ID.String())
	return s.issueSession(user)
}

// Login authenticates a user by email and password.
// Unknown emails and wrong passwords fail identically, including in cost:
// an unknown email is verified against a dummy hash.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, lookupErr := s.users.GetByEmail(ctx, NormalizeEmail(email))

	var targetHash string
	var userExists bool

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, storeUnavailable("get user by email", lookupErr)
		}
		targetHash = dummyPasswordHash
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !userExists {
			return nil, errInvalidCredentials()
		}
		return nil, recode(CodeHashingFailed, "verify password", verifyErr)
	}
	if !userExists || !valid {
		return nil, errInvalidCredentials()
	}

	if s.hasher.NeedsUpgrade(user.PasswordHash) {
		s.upgradeHash(ctx, user, password)
	}

	return s.issueSession(user)
}

// CurrentUser resolves a session token to the public view of its user.
func (s *Service) CurrentUser(ctx context.Context, token string) (*PublicUser, error) {
	userID, err := s.minter.Verify(token)
	if err != nil {
		s.logger.DebugContext(ctx, "session token rejected", "error", err.Error())
		return nil, errUnauthenticated()
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code(CodeUserNotFound).
				With("user_id", userID.String()).
				Errorf("user no longer exists")
		}
		return nil, storeUnavailable("get user by id", err)
	}

	pub := user.Public()
	return &pub, nil
}

// RequestPasswordReset starts a reset and hands the secret to the notifier.
// The response is the same for known and unknown emails. Delivery failure
// is logged and does not change the response.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (*ResetRequested, error) {
	issued, err := s.resets.BeginReset(ctx, email)
	if err != nil {
		return nil, err
	}

	if issued != nil {
		n := ResetNotification{
			User:      issued.User,
			Secret:    issued.Secret,
			ExpiresAt: issued.ExpiresAt.UTC().Format(time.RFC3339),
		}
		if err := s.notifier.NotifyReset(ctx, n); err != nil {
			s.logger.WarnContext(ctx, "best-effort reset delivery failed",
				"user_id", issued.User.ID,
				"operation", "notify_reset",
				"error", err.Error(),
			)
		}
	}

	return &ResetRequested{Message: MessageResetRequested}, nil
}

// ConfirmPasswordReset sets a new password using a reset secret.
func (s *Service) ConfirmPasswordReset(ctx context.Context, secret, newPassword string) error {
	return s.resets.ConfirmReset(ctx, secret, newPassword)
}

func (s *Service) issueSession(user *User) (*Session, error) {
	token, expiresAt, err := s.minter.Issue(user.ID)
	if err != nil {
		return nil, recode(CodeInvalidToken, "issue session token", err)
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user.Public()}, nil
}

// upgradeHash rehashes a legacy credential after a successful login.
// Login succeeds whether or not the upgrade is persisted.
func (s *Service) upgradeHash(ctx context.Context, user *User, password string) {
	newHash, err := s.hasher.Hash(password)
	if err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "hash_upgrade",
			"error", err.Error(),
		)
		return
	}
	updated := *user
	updated.PasswordHash = newHash
	updated.UpdatedAt = time.Now().UTC()
	if err := s.users.Update(ctx, &updated); err != nil {
		s.logger.WarnContext(ctx, "best-effort password hash upgrade failed",
			"user_id", user.ID.String(),
			"operation", "persist_hash_upgrade",
			"error", err.Error(),
		)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "user_id", user.ID.String())
}

func errDuplicateAccount() error {
	return oops.Code(CodeDuplicateAccount).Errorf("user already exists")
}

// validationError turns validator output into a CodeInvalidInput error naming
// the first offending field.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return oops.Code(CodeInvalidInput).Wrap(err)
	}
	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return oops.Code(CodeInvalidInput).With("field", field).Errorf("%s is required", field)
	case "email":
		return oops.Code(CodeInvalidInput).With("field", field).Errorf("%s is not a valid address", field)
	case "max":
		return oops.Code(CodeInvalidInput).With("field", field).Errorf("%s must be at most %s characters", field, fe.Param())
	default:
		return oops.Code(CodeInvalidInput).With("field", field).Errorf("%s is invalid", field)
	}
}
