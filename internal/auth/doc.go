// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides credential issuance and password recovery.
//
// # Domain Types
//
// User and PendingReset should be created using their constructors:
//   - NewUser - creates a User with validated name, normalised email and hash
//   - NewPendingReset - creates a PendingReset with validated digest and expiry
//
// Direct struct initialization bypasses validation and may create invalid state.
// UserRepository implementations receive pre-validated types from these constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - Service - signup, login, current user, reset request and confirm
//   - PasswordResetService - the single-use reset token protocol
//   - Throttle - login delay and lockout wrapped around any Authenticator
//   - ResetSweeper - periodic removal of expired pending resets
//
// Services are created with New*Service constructors that validate dependencies.
//
// # Errors
//
// Every error returned by an Authenticator carries an oops code. Use
// ErrorCode to branch on it and PublicMessage to render it for end users.
package auth
