// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package store bootstraps PostgreSQL connectivity and schema.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Connection defaults.
const (
	DefaultConnectAttempts = 5
	DefaultConnectBackoff  = 500 * time.Millisecond
	maxConnectBackoff      = 10 * time.Second
)

// pinger abstracts pool health checks so retry behaviour is testable.
type pinger interface {
	Ping(ctx context.Context) error
}

type connectConfig struct {
	attempts uint64
	backoff  time.Duration
	logger   *slog.Logger
	maxConns int32
}

// ConnectOption configures Connect.
type ConnectOption func(*connectConfig)

// WithConnectAttempts sets how many times the initial ping is tried.
func WithConnectAttempts(n uint64) ConnectOption {
	return func(c *connectConfig) {
		if n > 0 {
			c.attempts = n
		}
	}
}

// WithConnectBackoff sets the base delay of the exponential backoff.
func WithConnectBackoff(d time.Duration) ConnectOption {
	return func(c *connectConfig) {
		if d > 0 {
			c.backoff = d
		}
	}
}

// WithConnectLogger sets the logger used for retry attempts.
func WithConnectLogger(logger *slog.Logger) ConnectOption {
	return func(c *connectConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) ConnectOption {
	return func(c *connectConfig) {
		if n > 0 {
			c.maxConns = n
		}
	}
}

// Connect opens a pgx pool for dsn and waits until the database answers a
// ping, retrying with exponential backoff. Failures carry STORE_UNAVAILABLE.
func Connect(ctx context.Context, dsn string, opts ...ConnectOption) (*pgxpool.Pool, error) {
	cfg := connectConfig{
		attempts: DefaultConnectAttempts,
		backoff:  DefaultConnectBackoff,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, oops.Code("STORE_INVALID_DSN").With("operation", "parse database url").Wrap(err)
	}
	if cfg.maxConns > 0 {
		poolCfg.MaxConns = cfg.maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, oops.Code("STORE_UNAVAILABLE").With("operation", "create pool").Wrap(err)
	}

	if err := pingWithRetry(ctx, pool, cfg.attempts, cfg.backoff, cfg.logger); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func pingWithRetry(ctx context.Context, p pinger, attempts uint64, base time.Duration, logger *slog.Logger) error {
	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(maxConnectBackoff, backoff)
	// WithMaxRetries counts retries, not attempts.
	backoff = retry.WithMaxRetries(attempts-1, backoff)

	var attempt int
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if err := p.Ping(ctx); err != nil {
			logger.WarnContext(ctx, "database ping failed", "attempt", attempt, "error", err.Error())
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", "ping database").
			With("attempts", attempt).
			Wrap(err)
	}
	return nil
}
