// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"

	"github.com/samber/oops"
)

// Store-level sentinels. UserRepository implementations wrap these so the
// core can tell domain outcomes apart from infrastructure failures.
var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateEmail is returned by Create when the email is already registered.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrResetNotPending is returned by CompleteReset when the stored digest no
	// longer matches or the reset has expired.
	ErrResetNotPending = errors.New("no matching pending reset")
)

// Error codes surfaced to callers of Authenticator.
const (
	CodeDuplicateAccount   = "AUTH_DUPLICATE_ACCOUNT"
	CodeInvalidCredentials = "AUTH_INVALID_CREDENTIALS"
	CodeResetTokenInvalid  = "RESET_TOKEN_INVALID"
	CodeUnauthenticated    = "AUTH_UNAUTHENTICATED"
	CodeUserNotFound       = "AUTH_USER_NOT_FOUND"
	CodeHashingFailed      = "AUTH_HASHING_FAILED"
	CodeStoreUnavailable   = "STORE_UNAVAILABLE"
	CodeInvalidInput       = "AUTH_INVALID_INPUT"
	CodeInvalidToken       = "AUTH_INVALID_TOKEN"
	CodeAccountLocked      = "AUTH_ACCOUNT_LOCKED"
	CodeResetInconsistent  = "USER_RESET_INCONSISTENT"
)

// Caller-facing messages. Identity-hiding codes always render these exact
// strings whatever the underlying cause was.
const (
	MessageInvalidCredentials = "Invalid credentials"
	MessageResetTokenInvalid  = "Password reset token is invalid or has expired."
	MessageResetRequested     = "If an account with that email exists, you will receive a reset link."
	MessageDuplicateAccount   = "User already exists"
	MessageUnauthenticated    = "Not authenticated"
	MessageUserNotFound       = "User not found"
	MessageAccountLocked      = "Too many failed attempts, try again later"
	MessageUnavailable        = "Service unavailable"
	MessageInternal           = "Server error"
)

func errInvalidCredentials() error {
	return oops.Code(CodeInvalidCredentials).Errorf("invalid credentials")
}

func errResetTokenInvalid() error {
	return oops.Code(CodeResetTokenInvalid).Errorf("reset token is invalid or has expired")
}

func errUnauthenticated() error {
	return oops.Code(CodeUnauthenticated).Errorf("not authenticated")
}

// storeUnavailable wraps an infrastructure failure from the Credential Store.
func storeUnavailable(operation string, err error) error {
	return recode(CodeStoreUnavailable, operation, err)
}

// recode reports err under code. oops resolves Code() to the deepest code in
// a chain, so err is flattened to its message and context before wrapping.
func recode(code, operation string, err error) error {
	b := oops.Code(code).With("operation", operation)
	if inner, ok := oops.AsOops(err); ok {
		for k, v := range inner.Context() {
			if k != "operation" {
				b = b.With(k, v)
			}
		}
		if innerCode := ErrorCode(err); innerCode != "" {
			b = b.With("cause_code", innerCode)
		}
	}
	return b.Wrap(errors.New(err.Error()))
}

// ErrorCode returns the oops code attached to err, or "" if none.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	code, _ := oopsErr.Code().(string)
	return code
}

// PublicMessage renders err for an end user. Internal detail never leaks:
// unknown codes collapse to a generic server error.
func PublicMessage(err error) string {
	switch ErrorCode(err) {
	case CodeInvalidCredentials:
		return MessageInvalidCredentials
	case CodeResetTokenInvalid:
		return MessageResetTokenInvalid
	case CodeDuplicateAccount:
		return MessageDuplicateAccount
	case CodeUnauthenticated:
		return MessageUnauthenticated
	case CodeUserNotFound:
		return MessageUserNotFound
	case CodeAccountLocked:
		return MessageAccountLocked
	case CodeStoreUnavailable:
		return MessageUnavailable
	case CodeInvalidInput:
		if oopsErr, ok := oops.AsOops(err); ok {
			return oopsErr.Error()
		}
		return "invalid input"
	default:
		return MessageInternal
	}
}
