// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/auth/memory"
)

// clearFailingStore is a memory store whose ClearResetToken always fails.
type clearFailingStore struct {
	*memory.Store
	clearErr error
}

func (s *clearFailingStore) ClearResetToken(_ context.Context, _ ulid.ULID, _ string) error {
	return s.clearErr
}

func TestPasswordResetService_ConfirmReset_LogsCleanupFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := now

	store := &clearFailingStore{Store: memory.NewStore(), clearErr: errors.New("cleanup connection refused")}
	user := seedUser(t, store, "alice@example.com")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc, err := auth.NewPasswordResetServiceWithLogger(store, legacyHasher{}, logger,
		auth.WithResetClock(func() time.Time { return clock }))
	require.NoError(t, err)

	issued, err := svc.BeginReset(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, issued)

	clock = issued.ExpiresAt.Add(time.Second)
	err = svc.ConfirmReset(ctx, issued.Secret, "NewPass1!")
	require.Error(t, err)
	assert.Equal(t, auth.CodeResetTokenInvalid, auth.ErrorCode(err))

	warns := entriesAt(t, &buf, "WARN")
	require.Len(t, warns, 1)
	assert.Contains(t, warns[0].Msg, "best-effort")
	assert.Equal(t, "clear_reset_token", warns[0].Operation)
	assert.Equal(t, user.ID.String(), warns[0].UserID)
	assert.Contains(t, warns[0].Error, "cleanup connection refused")
	assert.NotContains(t, buf.String(), issued.Secret)
}

func TestPasswordResetService_ConfirmReset_LogsCompletion(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	user := seedUser(t, store, "alice@example.com")

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	svc, err := auth.NewPasswordResetServiceWithLogger(store, legacyHasher{}, logger)
	require.NoError(t, err)

	issued, err := svc.BeginReset(ctx, "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, svc.ConfirmReset(ctx, issued.Secret, "NewPass1!"))

	infos := entriesAt(t, &buf, "INFO")
	require.Len(t, infos, 2)
	assert.Equal(t, "password reset issued", infos[0].Msg)
	assert.Equal(t, "password reset completed", infos[1].Msg)
	assert.Equal(t, user.ID.String(), infos[1].UserID)
	assert.NotContains(t, buf.String(), issued.Secret)
}
