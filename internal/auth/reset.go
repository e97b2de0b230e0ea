// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"

	"github.com/samber/oops"
)

// Reset token configuration.
const (
	ResetTokenBytes  = 32               // 32 bytes = 64 hex chars
	ResetTokenExpiry = 15 * time.Minute // 15 minute expiry
)

// PendingReset is the stored half of a reset token. TokenHash and ExpiresAt
// are always set and cleared together.
type PendingReset struct {
	TokenHash string
	ExpiresAt time.Time
}

// NewPendingReset creates a validated PendingReset.
func NewPendingReset(tokenHash string, expiresAt time.Time) (*PendingReset, error) {
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	if expiresAt.IsZero() {
		return nil, oops.Code("RESET_INVALID_EXPIRY").Errorf("expiry time cannot be zero")
	}
	return &PendingReset{TokenHash: tokenHash, ExpiresAt: expiresAt}, nil
}

// IsExpired returns true if the reset token has expired.
func (r *PendingReset) IsExpired() bool {
	return r.IsExpiredAt(time.Now())
}

// IsExpiredAt reports whether the reset is no longer valid at t. A reset is
// valid only while its expiry is strictly after t.
func (r *PendingReset) IsExpiredAt(t time.Time) bool {
	return !r.ExpiresAt.After(t)
}

// GenerateResetToken creates a secure random token and its hash.
// Returns (plaintext_token, sha256_hash, error).
// The plaintext token is delivered to the user; only the hash is stored.
func GenerateResetToken() (token, hash string, err error) {
	tokenBytes := make([]byte, ResetTokenBytes)
	if _, err = rand.Read(tokenBytes); err != nil {
		return "", "", oops.Code(CodeHashingFailed).
			With("operation", "crypto/rand.Read").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}

	token = hex.EncodeToString(tokenBytes)
	hash = HashResetToken(token)

	return token, hash, nil
}

// HashResetToken computes the unsalted SHA256 digest of a reset token.
func HashResetToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// VerifyResetToken checks if the plaintext token matches the stored hash.
// Uses constant-time comparison to prevent timing attacks.
func VerifyResetToken(token, hash string) bool {
	if token == "" || hash == "" {
		return false
	}
	computed := HashResetToken(token)
	// Both are hex-encoded SHA256 hashes (64 chars), use constant-time compare
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}
