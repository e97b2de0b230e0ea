// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/logging"
	"github.com/holomush/gatekeep/internal/xdg"
)

const serviceName = "gatekeep"

// cli carries state shared by every subcommand of one invocation.
type cli struct {
	deps       Deps
	configFile string
	logLevel   string
	logger     *slog.Logger

	metricsTextfile string
}

// NewRootCmd creates the root command for the gatekeep CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(Deps{})
}

func newRootCmd(deps Deps) *cobra.Command {
	c := &cli{deps: deps.withDefaults(), logger: slog.New(slog.DiscardHandler)}

	cmd := &cobra.Command{
		Use:   "gatekeep",
		Short: "gatekeep - credential issuance and password reset",
		Long: `gatekeep registers accounts, verifies passwords, issues signed session
tokens and runs the single-use password reset protocol.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file path (default $XDG_CONFIG_HOME/gatekeep/config.yaml)")
	flags.String("database-url", "", "PostgreSQL connection URL (or set DATABASE_URL)")
	flags.String("log-format", "json", "log format (json or text)")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("throttle", true, "apply the login failure throttle")
	flags.String("redis-addr", "", "Redis address for shared throttle counters")
	flags.StringVar(&c.metricsTextfile, "metrics-textfile", "", "write operation metrics to this file for the node_exporter textfile collector")

	cmd.AddCommand(c.newSignupCmd())
	cmd.AddCommand(c.newLoginCmd())
	cmd.AddCommand(c.newWhoamiCmd())
	cmd.AddCommand(c.newResetCmd())
	cmd.AddCommand(c.newMigrateCmd())
	cmd.AddCommand(c.newJanitorCmd())
	cmd.AddCommand(c.newConfigCmd())

	return cmd
}

// loadConfig resolves configuration for cmd and configures logging on stderr
// at defaultLevel unless --log-level is set. An explicit --config must exist;
// the XDG default is optional.
func (c *cli) loadConfig(cmd *cobra.Command, defaultLevel slog.Level) (*config.Config, error) {
	path, required := c.configFile, c.configFile != ""
	if path == "" {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}

	cfg, err := config.Load(path, required, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level := defaultLevel
	if c.logLevel != "" {
		level = logging.ParseLevel(c.logLevel)
	}
	c.logger = logging.SetupWithLevel(serviceName, version, cfg.LogFormat, level, cmd.ErrOrStderr())
	return cfg, nil
}
