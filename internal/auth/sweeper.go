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

// DefaultSweepInterval is how often ResetSweeper runs when unset.
const DefaultSweepInterval = 5 * time.Minute

// ResetSweeper periodically clears expired pending resets. Confirmation
// rejects expired tokens on its own; the sweeper only keeps rows tidy.
type ResetSweeper struct {
	users    UserRepository
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
	onSweep  func(cleared int64, err error)

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweeperOption configures a ResetSweeper.
type SweeperOption func(*ResetSweeper)

// WithSweepInterval sets the sweep period. Non-positive values are ignored.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *ResetSweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweepLogger sets the logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *ResetSweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepClock overrides the time source. Intended for tests.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *ResetSweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepHook registers a callback invoked after every sweep.
func WithSweepHook(fn func(cleared int64, err error)) SweeperOption {
	return func(s *ResetSweeper) {
		s.onSweep = fn
	}
}

// NewResetSweeper creates a ResetSweeper.
func NewResetSweeper(users UserRepository, opts ...SweeperOption) (*ResetSweeper, error) {
	if users == nil {
		return nil, oops.Errorf("user repository is required")
	}
	s := &ResetSweeper{
		users:    users,
		interval: DefaultSweepInterval,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SweepOnce clears every reset that has expired and returns the count.
func (s *ResetSweeper) SweepOnce(ctx context.Context) (int64, error) {
	cleared, err := s.users.ClearExpiredResets(ctx, s.now().UTC())
	if err != nil {
		err = storeUnavailable("clear expired resets", err)
	}
	if s.onSweep != nil {
		s.onSweep(cleared, err)
	}
	return cleared, err
}

// Start runs sweeps in the background until Stop is called or ctx ends.
// Calling Start on a running sweeper is a no-op.
func (s *ResetSweeper) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
}

// Stop halts the background loop and waits for it to exit.
func (s *ResetSweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *ResetSweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleared, err := s.SweepOnce(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.logger.WarnContext(ctx, "reset sweep failed", "error", err.Error())
				continue
			}
			if cleared > 0 {
				s.logger.InfoContext(ctx, "expired resets cleared", "count", cleared)
			}
		}
	}
}
