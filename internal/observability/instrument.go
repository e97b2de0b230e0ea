// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"context"
	"time"

	"github.com/holomush/gatekeep/internal/auth"
)

// Operation label values.
const (
	OpSignup       = "signup"
	OpLogin        = "login"
	OpCurrentUser  = "current_user"
	OpRequestReset = "request_reset"
	OpConfirmReset = "confirm_reset"
)

type instrumented struct {
	next    auth.Authenticator
	metrics *Metrics
	now     func() time.Time
}

// InstrumentAuthenticator wraps next so every operation records a count by
// outcome and a duration.
func InstrumentAuthenticator(next auth.Authenticator, m *Metrics) auth.Authenticator {
	return &instrumented{next: next, metrics: m, now: time.Now}
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	i.metrics.OperationDuration.WithLabelValues(op).Observe(i.now().Sub(start).Seconds())
	i.metrics.OperationsTotal.WithLabelValues(op, outcomeLabel(auth.ErrorCode(err), err)).Inc()
}

func (i *instrumented) Signup(ctx context.Context, name, email, password string) (*auth.Session, error) {
	start := i.now()
	s, err := i.next.Signup(ctx, name, email, password)
	i.observe(OpSignup, start, err)
	return s, err
}

func (i *instrumented) Login(ctx context.Context, email, password string) (*auth.Session, error) {
	start := i.now()
	s, err := i.next.Login(ctx, email, password)
	i.observe(OpLogin, start, err)
	return s, err
}

func (i *instrumented) CurrentUser(ctx context.Context, token string) (*auth.PublicUser, error) {
	start := i.now()
	u, err := i.next.CurrentUser(ctx, token)
	i.observe(OpCurrentUser, start, err)
	return u, err
}

func (i *instrumented) RequestPasswordReset(ctx context.Context, email string) (*auth.ResetRequested, error) {
	start := i.now()
	r, err := i.next.RequestPasswordReset(ctx, email)
	i.observe(OpRequestReset, start, err)
	return r, err
}

func (i *instrumented) ConfirmPasswordReset(ctx context.Context, secret, newPassword string) error {
	start := i.now()
	err := i.next.ConfirmPasswordReset(ctx, secret, newPassword)
	i.observe(OpConfirmReset, start, err)
	return err
}
