// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package mocks provides testify doubles for the auth interfaces.
package mocks

import (
	"context"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/mock"

	"github.com/holomush/gatekeep/internal/auth"
)

// TestingT is the subset of *testing.T the constructors need.
type TestingT interface {
	mock.TestingT
	Cleanup(func())
}

func register(m *mock.Mock, t TestingT) {
	m.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
}

func userOrNil(v any) *auth.User {
	if v == nil {
		return nil
	}
	return v.(*auth.User)
}

// MockUserRepository is a mock auth.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

// NewMockUserRepository creates a MockUserRepository that asserts its
// expectations when the test ends.
func NewMockUserRepository(t TestingT) *MockUserRepository {
	m := &MockUserRepository{}
	register(&m.Mock, t)
	return m
}

// Create implements auth.UserRepository.
func (m *MockUserRepository) Create(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetByID implements auth.UserRepository.
func (m *MockUserRepository) GetByID(ctx context.Context, id ulid.ULID) (*auth.User, error) {
	args := m.Called(ctx, id)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByEmail implements auth.UserRepository.
func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	args := m.Called(ctx, email)
	return userOrNil(args.Get(0)), args.Error(1)
}

// GetByResetDigest implements auth.UserRepository.
func (m *MockUserRepository) GetByResetDigest(ctx context.Context, digest string) (*auth.User, error) {
	args := m.Called(ctx, digest)
	return userOrNil(args.Get(0)), args.Error(1)
}

// Update implements auth.UserRepository.
func (m *MockUserRepository) Update(ctx context.Context, user *auth.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// SetResetToken implements auth.UserRepository.
func (m *MockUserRepository) SetResetToken(ctx context.Context, id ulid.ULID, digest string, expiresAt time.Time) error {
	args := m.Called(ctx, id, digest, expiresAt)
	return args.Error(0)
}

// CompleteReset implements auth.UserRepository.
func (m *MockUserRepository) CompleteReset(ctx context.Context, id ulid.ULID, digest, passwordHash string, now time.Time) error {
	args := m.Called(ctx, id, digest, passwordHash, now)
	return args.Error(0)
}

// ClearResetToken implements auth.UserRepository.
func (m *MockUserRepository) ClearResetToken(ctx context.Context, id ulid.ULID, digest string) error {
	args := m.Called(ctx, id, digest)
	return args.Error(0)
}

// ClearExpiredResets implements auth.UserRepository.
func (m *MockUserRepository) ClearExpiredResets(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockPasswordHasher is a mock auth.PasswordHasher.
type MockPasswordHasher struct {
	mock.Mock
}

// NewMockPasswordHasher creates a MockPasswordHasher.
func NewMockPasswordHasher(t TestingT) *MockPasswordHasher {
	m := &MockPasswordHasher{}
	register(&m.Mock, t)
	return m
}

// Hash implements auth.PasswordHasher.
func (m *MockPasswordHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

// Verify implements auth.PasswordHasher.
func (m *MockPasswordHasher) Verify(password, hash string) (bool, error) {
	args := m.Called(password, hash)
	return args.Bool(0), args.Error(1)
}

// NeedsUpgrade implements auth.PasswordHasher.
func (m *MockPasswordHasher) NeedsUpgrade(hash string) bool {
	args := m.Called(hash)
	return args.Bool(0)
}

// MockResetNotifier is a mock auth.ResetNotifier.
type MockResetNotifier struct {
	mock.Mock
}

// NewMockResetNotifier creates a MockResetNotifier.
func NewMockResetNotifier(t TestingT) *MockResetNotifier {
	m := &MockResetNotifier{}
	register(&m.Mock, t)
	return m
}

// NotifyReset implements auth.ResetNotifier.
func (m *MockResetNotifier) NotifyReset(ctx context.Context, n auth.ResetNotification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

// MockFailureCounter is a mock auth.FailureCounter.
type MockFailureCounter struct {
	mock.Mock
}

// NewMockFailureCounter creates a MockFailureCounter.
func NewMockFailureCounter(t TestingT) *MockFailureCounter {
	m := &MockFailureCounter{}
	register(&m.Mock, t)
	return m
}

// Failures implements auth.FailureCounter.
func (m *MockFailureCounter) Failures(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

// RecordFailure implements auth.FailureCounter.
func (m *MockFailureCounter) RecordFailure(ctx context.Context, key string) (int, error) {
	args := m.Called(ctx, key)
	return args.Int(0), args.Error(1)
}

// Reset implements auth.FailureCounter.
func (m *MockFailureCounter) Reset(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockAuthenticator is a mock auth.Authenticator.
type MockAuthenticator struct {
	mock.Mock
}

// NewMockAuthenticator creates a MockAuthenticator.
func NewMockAuthenticator(t TestingT) *MockAuthenticator {
	m := &MockAuthenticator{}
	register(&m.Mock, t)
	return m
}

func sessionOrNil(v any) *auth.Session {
	if v == nil {
		return nil
	}
	return v.(*auth.Session)
}

// Signup implements auth.Authenticator.
func (m *MockAuthenticator) Signup(ctx context.Context, name, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, name, email, password)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

// Login implements auth.Authenticator.
func (m *MockAuthenticator) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	args := m.Called(ctx, email, password)
	return sessionOrNil(args.Get(0)), args.Error(1)
}

// CurrentUser implements auth.Authenticator.
func (m *MockAuthenticator) CurrentUser(ctx context.Context, token string) (*auth.PublicUser, error) {
	args := m.Called(ctx, token)
	if v := args.Get(0); v != nil {
		return v.(*auth.PublicUser), args.Error(1)
	}
	return nil, args.Error(1)
}

// RequestPasswordReset implements auth.Authenticator.
func (m *MockAuthenticator) RequestPasswordReset(ctx context.Context, email string) (*auth.ResetRequested, error) {
	args := m.Called(ctx, email)
	if v := args.Get(0); v != nil {
		return v.(*auth.ResetRequested), args.Error(1)
	}
	return nil, args.Error(1)
}

// ConfirmPasswordReset implements auth.Authenticator.
func (m *MockAuthenticator) ConfirmPasswordReset(ctx context.Context, secret, newPassword string) error {
	args := m.Called(ctx, secret, newPassword)
	return args.Error(0)
}

var (
	_ auth.UserRepository = (*MockUserRepository)(nil)
	_ auth.PasswordHasher = (*MockPasswordHasher)(nil)
	_ auth.ResetNotifier  = (*MockResetNotifier)(nil)
	_ auth.FailureCounter = (*MockFailureCounter)(nil)
	_ auth.Authenticator  = (*MockAuthenticator)(nil)
)
