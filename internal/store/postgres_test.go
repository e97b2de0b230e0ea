// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/pkg/errutil"
)

type fakePinger struct {
	failures int
	calls    int
}

func (f *fakePinger) Ping(_ context.Context) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("connection refused")
	}
	return nil
}

func TestPingWithRetry(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)

	t.Run("succeeds first try", func(t *testing.T) {
		p := &fakePinger{}
		err := pingWithRetry(context.Background(), p, 3, time.Millisecond, logger)
		require.NoError(t, err)
		assert.Equal(t, 1, p.calls)
	})

	t.Run("retries until success", func(t *testing.T) {
		p := &fakePinger{failures: 2}
		err := pingWithRetry(context.Background(), p, 3, time.Millisecond, logger)
		require.NoError(t, err)
		assert.Equal(t, 3, p.calls)
	})

	t.Run("gives up after attempts", func(t *testing.T) {
		p := &fakePinger{failures: 10}
		err := pingWithRetry(context.Background(), p, 3, time.Millisecond, logger)
		require.Error(t, err)
		assert.Equal(t, 3, p.calls)
		errutil.AssertErrorCode(t, err, "STORE_UNAVAILABLE")
		errutil.AssertErrorContext(t, err, "attempts", 3)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		p := &fakePinger{failures: 10}
		err := pingWithRetry(ctx, p, 5, time.Second, logger)
		require.Error(t, err)
		assert.LessOrEqual(t, p.calls, 1)
	})
}

func TestConnect_InvalidDSN(t *testing.T) {
	_, err := Connect(context.Background(), "://not a url")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "STORE_INVALID_DSN")
}
