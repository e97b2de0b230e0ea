// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package memory provides an in-process auth.UserRepository.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/auth"
)

// Store is a mutex-guarded UserRepository. Every method copies records in
// and out so callers never share memory with the store.
type Store struct {
	mu      sync.RWMutex
	byID    map[ulid.ULID]*auth.User
	byEmail map[string]ulid.ULID
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byID:    make(map[ulid.ULID]*auth.User),
		byEmail: make(map[string]ulid.ULID),
	}
}

// Create stores a new user.
func (s *Store) Create(_ context.Context, user *auth.User) error {
	email := auth.NormalizeEmail(user.Email)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byEmail[email]; ok {
		return oops.Code("USER_DUPLICATE_EMAIL").With("email", email).Wrap(auth.ErrDuplicateEmail)
	}
	if _, ok := s.byID[user.ID]; ok {
		return oops.Code("USER_DUPLICATE_ID").With("user_id", user.ID.String()).Errorf("user id already exists")
	}
	stored := clone(user)
	stored.Email = email
	s.byID[user.ID] = stored
	s.byEmail[email] = user.ID
	return nil
}

// GetByID retrieves a user by ID.
func (s *Store) GetByID(_ context.Context, id ulid.ULID) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, notFound("user_id", id.String())
	}
	return clone(u), nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (s *Store) GetByEmail(_ context.Context, email string) (*auth.User, error) {
	email = auth.NormalizeEmail(email)
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, notFound("email", email)
	}
	return clone(s.byID[id]), nil
}

// GetByResetDigest retrieves the user whose pending reset carries digest.
func (s *Store) GetByResetDigest(_ context.Context, digest string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.byID {
		if u.PendingReset != nil && u.PendingReset.TokenHash == digest {
			return clone(u), nil
		}
	}
	return nil, notFound("reset_digest", "redacted")
}

// Update saves name and password hash changes.
func (s *Store) Update(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[user.ID]
	if !ok {
		return notFound("user_id", user.ID.String())
	}
	u.Name = user.Name
	u.PasswordHash = user.PasswordHash
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// SetResetToken records a pending reset, replacing any previous one.
func (s *Store) SetResetToken(_ context.Context, id ulid.ULID, digest string, expiresAt time.Time) error {
	pending, err := auth.NewPendingReset(digest, expiresAt)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	u.PendingReset = pending
	u.UpdatedAt = time.Now().UTC()
	return nil
}

// CompleteReset swaps the password hash and clears the pending reset under
// the write lock, so at most one caller consumes a digest.
func (s *Store) CompleteReset(_ context.Context, id ulid.ULID, digest, passwordHash string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	if u.PendingReset == nil || u.PendingReset.TokenHash != digest || u.PendingReset.IsExpiredAt(now) {
		return oops.Code("USER_RESET_NOT_PENDING").With("user_id", id.String()).Wrap(auth.ErrResetNotPending)
	}
	u.PasswordHash = passwordHash
	u.PendingReset = nil
	u.UpdatedAt = now
	return nil
}

// ClearResetToken removes the pending reset if it still carries digest.
func (s *Store) ClearResetToken(_ context.Context, id ulid.ULID, digest string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return notFound("user_id", id.String())
	}
	if u.PendingReset != nil && u.PendingReset.TokenHash == digest {
		u.PendingReset = nil
		u.UpdatedAt = time.Now().UTC()
	}
	return nil
}

// ClearExpiredResets removes every pending reset expired at now.
func (s *Store) ClearExpiredResets(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, u := range s.byID {
		if u.PendingReset != nil && u.PendingReset.IsExpiredAt(now) {
			u.PendingReset = nil
			n++
		}
	}
	return n, nil
}

func notFound(key, value string) error {
	return oops.Code("USER_NOT_FOUND").With(key, value).Wrap(auth.ErrNotFound)
}

func clone(u *auth.User) *auth.User {
	c := *u
	if u.PendingReset != nil {
		p := *u.PendingReset
		c.PendingReset = &p
	}
	return &c
}

// Compile-time interface check.
var _ auth.UserRepository = (*Store)(nil)
