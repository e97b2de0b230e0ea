// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// Rate limiting configuration.
const (
	// LockoutDuration is the time a key stays locked after too many failures.
	// It is also the window after the last failure in which failures count.
	LockoutDuration = 15 * time.Minute

	// LockoutThreshold is the number of failures that triggers a lockout.
	LockoutThreshold = 7

	// MaxDelay caps the progressive delay applied before lockout.
	MaxDelay = 32 * time.Second
)

// RateLimitResult contains the result of a rate limit check.
type RateLimitResult struct {
	// Delay is the time to wait before allowing another attempt.
	Delay time.Duration

	// IsLockedOut indicates the key is temporarily locked.
	IsLockedOut bool
}

// CheckFailures evaluates the rate limit state based on failure count.
func CheckFailures(failures int) RateLimitResult {
	result := RateLimitResult{}

	// Progressive delay: 2^(failures-1) seconds, max 32s before lockout
	if failures > 0 && failures < LockoutThreshold {
		result.Delay = time.Duration(1<<(failures-1)) * time.Second
		if result.Delay > MaxDelay {
			result.Delay = MaxDelay
		}
	}

	if failures >= LockoutThreshold {
		result.IsLockedOut = true
	}

	return result
}

// FailureCounter tracks recent login failures per key. Counts expire
// LockoutDuration after the most recent failure.
type FailureCounter interface {
	// Failures returns the current failure count for key.
	Failures(ctx context.Context, key string) (int, error)

	// RecordFailure increments the count for key and returns the new count.
	RecordFailure(ctx context.Context, key string) (int, error)

	// Reset clears the count for key.
	Reset(ctx context.Context, key string) error
}

// Throttle wraps an Authenticator with progressive delay and lockout on
// failed logins. Keys are normalised emails whether or not an account exists,
// so lockout reveals nothing about registration.
type Throttle struct {
	next    Authenticator
	counter FailureCounter
	logger  *slog.Logger
	sleep   func(ctx context.Context, d time.Duration) error
}

var _ Authenticator = (*Throttle)(nil)

// ThrottleOption configures a Throttle during construction.
type ThrottleOption func(*Throttle)

// WithThrottleSleeper replaces the delay function. Intended for tests.
func WithThrottleSleeper(sleep func(ctx context.Context, d time.Duration) error) ThrottleOption {
	return func(t *Throttle) {
		if sleep != nil {
			t.sleep = sleep
		}
	}
}

// NewThrottle creates a Throttle with a no-op logger.
func NewThrottle(next Authenticator, counter FailureCounter, opts ...ThrottleOption) (*Throttle, error) {
	return NewThrottleWithLogger(next, counter, slog.New(slog.DiscardHandler), opts...)
}

// NewThrottleWithLogger creates a Throttle with the provided logger.
func NewThrottleWithLogger(next Authenticator, counter FailureCounter, logger *slog.Logger, opts ...ThrottleOption) (*Throttle, error) {
	if next == nil {
		return nil, oops.Errorf("authenticator is required")
	}
	if counter == nil {
		return nil, oops.Errorf("failure counter is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	t := &Throttle{
		next:    next,
		counter: counter,
		logger:  logger,
		sleep:   sleepContext,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Login applies the throttle before delegating. Counter errors fail open.
func (t *Throttle) Login(ctx context.Context, email, password string) (*Session, error) {
	key := NormalizeEmail(email)

	failures, err := t.counter.Failures(ctx, key)
	if err != nil {
		t.logger.WarnContext(ctx, "best-effort throttle lookup failed",
			"operation", "failures",
			"error", err.Error(),
		)
		failures = 0
	}

	result := CheckFailures(failures)
	if result.IsLockedOut {
		return nil, oops.Code(CodeAccountLocked).
			With("failures", failures).
			Errorf("too many failed login attempts")
	}
	if result.Delay > 0 {
		if err := t.sleep(ctx, result.Delay); err != nil {
			return nil, oops.With("operation", "throttle delay").Wrap(err)
		}
	}

	session, err := t.next.Login(ctx, email, password)
	switch {
	case err == nil:
		if resetErr := t.counter.Reset(ctx, key); resetErr != nil {
			t.logger.WarnContext(ctx, "best-effort throttle reset failed",
				"operation", "reset",
				"error", resetErr.Error(),
			)
		}
	case ErrorCode(err) == CodeInvalidCredentials:
		n, recErr := t.counter.RecordFailure(ctx, key)
		if recErr != nil {
			t.logger.WarnContext(ctx, "best-effort throttle record failed",
				"operation", "record_failure",
				"error", recErr.Error(),
			)
		} else if n >= LockoutThreshold {
			t.logger.WarnContext(ctx, "login locked out", "failures", n)
		}
	}
	return session, err
}

// Signup delegates unchanged.
func (t *Throttle) Signup(ctx context.Context, name, email, password string) (*Session, error) {
	return t.next.Signup(ctx, name, email, password)
}

// CurrentUser delegates unchanged.
func (t *Throttle) CurrentUser(ctx context.Context, token string) (*PublicUser, error) {
	return t.next.CurrentUser(ctx, token)
}

// RequestPasswordReset delegates unchanged.
func (t *Throttle) RequestPasswordReset(ctx context.Context, email string) (*ResetRequested, error) {
	return t.next.RequestPasswordReset(ctx, email)
}

// ConfirmPasswordReset delegates unchanged.
func (t *Throttle) ConfirmPasswordReset(ctx context.Context, secret, newPassword string) error {
	return t.next.ConfirmPasswordReset(ctx, secret, newPassword)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// MemoryFailureCounter is an in-process FailureCounter.
type MemoryFailureCounter struct {
	mu      sync.Mutex
	entries map[string]failureEntry
	window  time.Duration
	now     func() time.Time
}

type failureEntry struct {
	count   int
	expires time.Time
}

// NewMemoryFailureCounter creates a MemoryFailureCounter whose counts expire
// LockoutDuration after the last failure.
func NewMemoryFailureCounter() *MemoryFailureCounter {
	return NewMemoryFailureCounterWithClock(LockoutDuration, time.Now)
}

// NewMemoryFailureCounterWithClock creates a MemoryFailureCounter with a
// custom window and time source.
func NewMemoryFailureCounterWithClock(window time.Duration, now func() time.Time) *MemoryFailureCounter {
	if window <= 0 {
		window = LockoutDuration
	}
	if now == nil {
		now = time.Now
	}
	return &MemoryFailureCounter{
		entries: make(map[string]failureEntry),
		window:  window,
		now:     now,
	}
}

// Failures implements FailureCounter.
func (c *MemoryFailureCounter) Failures(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return 0, nil
	}
	if !e.expires.After(c.now()) {
		delete(c.entries, key)
		return 0, nil
	}
	return e.count, nil
}

// RecordFailure implements FailureCounter.
func (c *MemoryFailureCounter) RecordFailure(_ context.Context, key string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	e := c.entries[key]
	if !e.expires.After(now) {
		e = failureEntry{}
	}
	e.count++
	e.expires = now.Add(c.window)
	c.entries[key] = e
	return e.count, nil
}

// Reset implements FailureCounter.
func (c *MemoryFailureCounter) Reset(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

var _ FailureCounter = (*MemoryFailureCounter)(nil)
