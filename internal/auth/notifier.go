// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import "context"

// ResetNotification is what a ResetNotifier delivers out of band.
type ResetNotification struct {
	User      PublicUser
	Secret    string
	ExpiresAt string // RFC 3339, UTC
}

// ResetNotifier delivers a plaintext reset secret to the account holder.
// Implementations must not log Secret.
type ResetNotifier interface {
	NotifyReset(ctx context.Context, n ResetNotification) error
}

// ResetNotifierFunc adapts a function to ResetNotifier.
type ResetNotifierFunc func(ctx context.Context, n ResetNotification) error

// NotifyReset calls f.
func (f ResetNotifierFunc) NotifyReset(ctx context.Context, n ResetNotification) error {
	return f(ctx, n)
}
