// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/pkg/errutil"
)

// fakeObservability stands in for observability.Server.
type fakeObservability struct {
	metrics  *observability.Metrics
	startErr error

	mu      sync.Mutex
	started bool
	stopped bool
	errCh   chan error
}

func newFakeObservability() *fakeObservability {
	return &fakeObservability{
		metrics: observability.NewMetrics(prometheus.NewRegistry()),
		errCh:   make(chan error, 1),
	}
}

func (f *fakeObservability) Start() (<-chan error, error) {
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	return f.errCh, nil
}

func (f *fakeObservability) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeObservability) Addr() string                    { return "127.0.0.1:0" }
func (f *fakeObservability) Metrics() *observability.Metrics { return f.metrics }

func (f *fakeObservability) state() (started, stopped bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.stopped
}

func seedExpiredReset(t *testing.T, tc *testCLI, email string) *auth.User {
	t.Helper()
	ctx := context.Background()
	u, err := auth.NewUser("User", email, "hash")
	require.NoError(t, err)
	require.NoError(t, tc.users.Create(ctx, u))
	require.NoError(t, tc.users.SetResetToken(ctx, u.ID, "digest-"+email, time.Now().Add(-time.Minute)))
	return u
}

func TestJanitorCmd_Once(t *testing.T) {
	tc := newTestCLI(t)
	seedExpiredReset(t, tc, "a@x.com")
	seedExpiredReset(t, tc, "b@x.com")

	out, _, err := tc.run(t, "", "janitor", "--once")
	require.NoError(t, err)
	assert.Equal(t, "cleared 2 expired resets\n", out)

	out, _, err = tc.run(t, "", "janitor", "--once")
	require.NoError(t, err)
	assert.Equal(t, "cleared 0 expired resets\n", out)
}

func TestJanitorCmd_RunsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t)

	tc := newTestCLI(t)
	u := seedExpiredReset(t, tc, "a@x.com")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, _, err := tc.runContext(ctx, t, "", "janitor", "--interval", "10ms")
		done <- err
	}()

	require.Eventually(t, func() bool {
		got, err := tc.users.GetByID(context.Background(), u.ID)
		return err == nil && got.PendingReset == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}

	started, stopped := tc.obs.state()
	assert.True(t, started)
	assert.True(t, stopped)
	assert.InDelta(t, 1, testutil.ToFloat64(tc.obs.metrics.ResetsSweptTotal), 0)
}

func TestJanitorCmd_ServerErrorStopsJanitor(t *testing.T) {
	defer goleak.VerifyNone(t)

	tc := newTestCLI(t)
	tc.obs.errCh <- errors.New("listener closed")

	_, _, err := tc.run(t, "", "janitor", "--interval", "1h")
	require.NoError(t, err)

	_, stopped := tc.obs.state()
	assert.True(t, stopped)
}

func TestJanitorCmd_StartFailure(t *testing.T) {
	tc := newTestCLI(t)
	tc.obs.startErr = errors.New("address in use")

	_, _, err := tc.run(t, "", "janitor")
	errutil.AssertErrorCode(t, err, "OBSERVABILITY_START_FAILED")
}

func TestJanitorCmd_MetricsDisabled(t *testing.T) {
	tc := newTestCLI(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, _, err := tc.runContext(ctx, t, "", "janitor", "--metrics-addr", "", "--interval", "10ms")
	require.NoError(t, err)

	started, _ := tc.obs.state()
	assert.False(t, started)
}
