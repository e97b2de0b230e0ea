// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/config"
)

const janitorShutdownTimeout = 5 * time.Second

func (c *cli) newJanitorCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Clear expired password resets on an interval",
		Long: `Run the expired-reset sweeper until interrupted, serving /metrics,
/healthz/liveness and /healthz/readiness on --metrics-addr (empty disables it).
Expired tokens are rejected whether or not the janitor runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runJanitor(cmd, once)
		},
	}
	cmd.Flags().Duration("interval", auth.DefaultSweepInterval, "time between sweeps")
	cmd.Flags().String("metrics-addr", "127.0.0.1:9100", "observability server address")
	cmd.Flags().BoolVar(&once, "once", false, "sweep once, print the count and exit")
	return cmd
}

func (c *cli) runJanitor(cmd *cobra.Command, once bool) error {
	cfg, err := c.loadConfig(cmd, slog.LevelInfo)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").
			With("field", "database_url").
			Errorf("database_url is required (or set %s)", config.EnvDatabaseURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	users, closeUsers, err := c.deps.OpenUsers(ctx, cfg, c.logger)
	if err != nil {
		return err
	}
	defer closeUsers()

	if once {
		sweeper, err := auth.NewResetSweeper(users, auth.WithSweepLogger(c.logger))
		if err != nil {
			return err
		}
		cleared, err := sweeper.SweepOnce(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(cmd.OutOrStdout(), "cleared %d expired resets\n", cleared)
		return err
	}

	var ready atomic.Bool
	hooks := []func(int64, error){func(_ int64, err error) {
		if err == nil {
			ready.Store(true)
		}
	}}

	var obs ObservabilityServer
	if cfg.MetricsAddr != "" {
		obs = c.deps.NewObservabilityServer(cfg.MetricsAddr, ready.Load, c.logger)
		hooks = append(hooks, obs.Metrics().RecordSweep)
	}

	sweeper, err := auth.NewResetSweeper(users,
		auth.WithSweepInterval(cfg.Janitor.Interval),
		auth.WithSweepLogger(c.logger),
		auth.WithSweepHook(func(cleared int64, err error) {
			for _, h := range hooks {
				h(cleared, err)
			}
		}),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if obs != nil {
		errCh, err := obs.Start()
		if err != nil {
			return oops.Code("OBSERVABILITY_START_FAILED").With("addr", cfg.MetricsAddr).Wrap(err)
		}
		go monitorServerErrors(ctx, cancel, errCh, "observability", c.logger)
		c.logger.Info("observability server started", "addr", obs.Addr())
	}

	// First sweep runs immediately so readiness reflects store health.
	if _, err := sweeper.SweepOnce(ctx); err != nil {
		c.logger.Warn("initial reset sweep failed", "error", err.Error())
	}
	sweeper.Start(ctx)
	c.logger.Info("janitor started", "interval", cfg.Janitor.Interval.String())

	<-ctx.Done()
	c.logger.Info("shutting down janitor")
	sweeper.Stop()

	if obs != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), janitorShutdownTimeout)
		defer cancelShutdown()
		if err := obs.Stop(shutdownCtx); err != nil {
			c.logger.Warn("error stopping observability server", "error", err.Error())
		}
	}
	c.logger.Info("shutdown complete")
	return nil
}

// monitorServerErrors cancels the janitor when a server reports an error.
// It exits when an error is received, the channel is closed, or ctx ends.
func monitorServerErrors(ctx context.Context, cancel context.CancelFunc, errCh <-chan error, serverName string, logger *slog.Logger) {
	select {
	case err, ok := <-errCh:
		if !ok {
			return
		}
		if err != nil {
			logger.Error("server error, triggering shutdown",
				"server", serverName,
				"error", err.Error(),
			)
			cancel()
		}
	case <-ctx.Done():
	}
}
