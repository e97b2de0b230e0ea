// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	SessionTokenExpiry   = time.Hour // 1 hour expiry
	MinSessionSecretSize = 32        // bytes
	DefaultTokenIssuer   = "gatekeep"
)

// SessionClaims are the JWT claims carried by a session token.
type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// TokenMinter issues and verifies signed, stateless session tokens.
// It is immutable after construction and safe for concurrent use.
type TokenMinter struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// TokenMinterOption configures a TokenMinter during construction.
type TokenMinterOption func(*TokenMinter)

// WithTokenTTL sets the session lifetime. Non-positive values are ignored.
func WithTokenTTL(ttl time.Duration) TokenMinterOption {
	return func(m *TokenMinter) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithTokenIssuer sets the iss claim written and required by the minter.
func WithTokenIssuer(issuer string) TokenMinterOption {
	return func(m *TokenMinter) {
		if issuer != "" {
			m.issuer = issuer
		}
	}
}

// WithTokenClock overrides the time source. Intended for tests.
func WithTokenClock(now func() time.Time) TokenMinterOption {
	return func(m *TokenMinter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewTokenMinter creates a TokenMinter signing with secret (HS256).
// The secret is copied; later changes to the caller's slice have no effect.
func NewTokenMinter(secret []byte, opts ...TokenMinterOption) (*TokenMinter, error) {
	if len(secret) < MinSessionSecretSize {
		return nil, oops.Code(CodeInvalidInput).
			With("min_bytes", MinSessionSecretSize).
			Errorf("session secret must be at least %d bytes", MinSessionSecretSize)
	}
	m := &TokenMinter{
		secret: append([]byte(nil), secret...),
		ttl:    SessionTokenExpiry,
		issuer: DefaultTokenIssuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Issue produces a signed token for userID and returns it with its expiry.
func (m *TokenMinter) Issue(userID ulid.ULID) (string, time.Time, error) {
	if userID.Compare(ulid.ULID{}) == 0 {
		return "", time.Time{}, oops.Code(CodeInvalidInput).Errorf("user ID cannot be zero")
	}

	now := m.now().UTC()
	expiresAt := now.Add(m.ttl)
	claims := SessionClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        ulid.Make().String(),
			Issuer:    m.issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, oops.Code(CodeInvalidToken).With("operation", "sign").Wrap(err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of token and returns the embedded
// user ID. Every failure carries CodeInvalidToken; the "reason" context
// distinguishes malformed, bad signature and expired for logs only.
func (m *TokenMinter) Verify(token string) (ulid.ULID, error) {
	if strings.TrimSpace(token) == "" {
		return ulid.ULID{}, invalidToken("empty")
	}

	var claims SessionClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	_, err := parser.ParseWithClaims(token, &claims, func(_ *jwt.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return ulid.ULID{}, invalidToken("expired")
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return ulid.ULID{}, invalidToken("bad signature")
		default:
			return ulid.ULID{}, invalidToken("malformed")
		}
	}

	if claims.Subject == "" || claims.Subject != claims.UserID {
		return ulid.ULID{}, invalidToken("subject mismatch")
	}
	userID, err := ulid.Parse(claims.UserID)
	if err != nil {
		return ulid.ULID{}, invalidToken("malformed subject")
	}
	return userID, nil
}

func invalidToken(reason string) error {
	return oops.Code(CodeInvalidToken).With("reason", reason).Errorf("invalid session token")
}
