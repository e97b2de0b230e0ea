// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis provides a Redis-backed auth.FailureCounter.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/auth"
)

// recordFailureScript increments the counter and refreshes its TTL so the
// window slides with the most recent failure.
const recordFailureScript = `
local current = redis.call("INCR", KEYS[1])
redis.call("EXPIRE", KEYS[1], ARGV[1])
return current
`

// DefaultKeyPrefix namespaces counter keys.
const DefaultKeyPrefix = "gatekeep:login:fail:"

// client is the subset of redis.Cmdable the counter uses.
type client interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// FailureCounter implements auth.FailureCounter on Redis.
type FailureCounter struct {
	client client
	window time.Duration
	prefix string
}

// NewFailureCounter creates a FailureCounter whose counts expire window after
// the last failure. A non-positive window uses auth.LockoutDuration.
func NewFailureCounter(rdb redis.Cmdable, window time.Duration) (*FailureCounter, error) {
	if rdb == nil {
		return nil, oops.Errorf("redis client is required")
	}
	return newFailureCounter(rdb, window), nil
}

func newFailureCounter(c client, window time.Duration) *FailureCounter {
	if window <= 0 {
		window = auth.LockoutDuration
	}
	return &FailureCounter{client: c, window: window, prefix: DefaultKeyPrefix}
}

// Failures implements auth.FailureCounter.
func (c *FailureCounter) Failures(ctx context.Context, key string) (int, error) {
	n, err := c.client.Get(ctx, c.prefix+key).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, oops.Code("THROTTLE_COUNTER_FAILED").With("operation", "get").Wrap(err)
	}
	return n, nil
}

// RecordFailure implements auth.FailureCounter.
func (c *FailureCounter) RecordFailure(ctx context.Context, key string) (int, error) {
	seconds := int(c.window.Seconds())
	if seconds <= 0 {
		seconds = 1
	}
	n, err := c.client.Eval(ctx, recordFailureScript, []string{c.prefix + key}, seconds).Int()
	if err != nil {
		return 0, oops.Code("THROTTLE_COUNTER_FAILED").With("operation", "incr").Wrap(err)
	}
	return n, nil
}

// Reset implements auth.FailureCounter.
func (c *FailureCounter) Reset(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return oops.Code("THROTTLE_COUNTER_FAILED").With("operation", "del").Wrap(err)
	}
	return nil
}

// Compile-time interface check.
var _ auth.FailureCounter = (*FailureCounter)(nil)
