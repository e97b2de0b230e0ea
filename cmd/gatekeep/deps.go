// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/term"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/auth/postgres"
	"github.com/holomush/gatekeep/internal/auth/redis"
	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/notify"
	"github.com/holomush/gatekeep/internal/observability"
	"github.com/holomush/gatekeep/internal/store"
)

// Deps contains injectable dependencies for the CLI.
// All fields with nil values will use their default implementations.
type Deps struct {
	// Stdin is read by --password-stdin.
	// Default: os.Stdin
	Stdin io.Reader

	// IsTerminal reports whether stdin can show a hidden password prompt.
	// Default: term.IsTerminal on os.Stdin
	IsTerminal func() bool

	// ReadPassword reads a line from the terminal without echo.
	// Default: term.ReadPassword on os.Stdin
	ReadPassword func() ([]byte, error)

	// OpenUsers opens the Credential Store. The returned func releases it.
	// Default: store.Connect + postgres.NewUserRepository
	OpenUsers func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserRepository, func(), error)

	// OpenCounter creates the login throttle counter. The returned func releases it.
	// An unreachable Redis is not an error here; the throttle fails open per call.
	// Default: Redis when throttle.redis_addr is set, otherwise in-process
	OpenCounter func(cfg *config.Config) (auth.FailureCounter, func(), error)

	// NewNotifier creates the reset secret delivery collaborator. console is
	// where the development notifier writes.
	// Default: SMTP when smtp.host is set, otherwise notify.ConsoleNotifier
	NewNotifier func(cfg *config.Config, console io.Writer) (auth.ResetNotifier, error)

	// NewMigrator creates a schema migrator.
	// Default: store.NewMigrator
	NewMigrator func(databaseURL string, logger *slog.Logger) (Migrator, error)

	// NewObservabilityServer creates the metrics and health server.
	// Default: observability.NewServer
	NewObservabilityServer func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer
}

// Migrator wraps the methods used from store.Migrator.
type Migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Force(version int) error
	Status() (*store.Status, error)
	Close() error
}

// ObservabilityServer wraps the methods used from observability.Server.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

func (d Deps) withDefaults() Deps {
	if d.Stdin == nil {
		d.Stdin = os.Stdin
	}
	if d.IsTerminal == nil {
		d.IsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) } //nolint:gosec // fd fits in int
	}
	if d.ReadPassword == nil {
		d.ReadPassword = func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) } //nolint:gosec // fd fits in int
	}
	if d.OpenUsers == nil {
		d.OpenUsers = openPostgresUsers
	}
	if d.OpenCounter == nil {
		d.OpenCounter = openFailureCounter
	}
	if d.NewNotifier == nil {
		d.NewNotifier = newNotifier
	}
	if d.NewMigrator == nil {
		d.NewMigrator = func(databaseURL string, logger *slog.Logger) (Migrator, error) {
			return store.NewMigrator(databaseURL, store.WithMigrateLogger(logger))
		}
	}
	if d.NewObservabilityServer == nil {
		d.NewObservabilityServer = func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, ready, logger)
		}
	}
	return d
}

func openPostgresUsers(ctx context.Context, cfg *config.Config, logger *slog.Logger) (auth.UserRepository, func(), error) {
	pool, err := store.Connect(ctx, cfg.DatabaseURL, store.WithConnectLogger(logger))
	if err != nil {
		return nil, nil, err
	}
	return postgres.NewUserRepository(pool), pool.Close, nil
}

func openFailureCounter(cfg *config.Config) (auth.FailureCounter, func(), error) {
	if cfg.Throttle.RedisAddr == "" {
		return auth.NewMemoryFailureCounter(), func() {}, nil
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Throttle.RedisAddr,
		Password: cfg.Throttle.RedisPassword,
		DB:       cfg.Throttle.RedisDB,
	})
	counter, err := redis.NewFailureCounter(client, auth.LockoutDuration)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return counter, func() { _ = client.Close() }, nil
}

func newNotifier(cfg *config.Config, console io.Writer) (auth.ResetNotifier, error) {
	if cfg.SMTP.Host == "" {
		return notify.NewConsoleNotifier(console), nil
	}
	return notify.NewSMTPNotifier(notify.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.Username,
		Password: cfg.SMTP.Password,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
		UseTLS:   cfg.SMTP.UseTLS,
		LinkBase: cfg.Reset.LinkBase,
	})
}
