// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/observability"
)

// authEnv is an Authenticator assembled for one command.
type authEnv struct {
	auth.Authenticator
	registry *prometheus.Registry
	closers  []func()
}

func (e *authEnv) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openAuth loads configuration and assembles the decorated Authenticator:
// core service, then the login throttle, then instrumentation.
func (c *cli) openAuth(cmd *cobra.Command) (*authEnv, error) {
	cfg, err := c.loadConfig(cmd, slog.LevelWarn)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateForAuth(); err != nil {
		return nil, err
	}

	env := &authEnv{registry: prometheus.NewRegistry()}
	ok := false
	defer func() {
		if !ok {
			env.close()
		}
	}()

	users, closeUsers, err := c.deps.OpenUsers(cmd.Context(), cfg, c.logger)
	if err != nil {
		return nil, err
	}
	env.closers = append(env.closers, closeUsers)

	minter, err := auth.NewTokenMinter([]byte(cfg.Session.Secret),
		auth.WithTokenTTL(cfg.Session.TTL),
		auth.WithTokenIssuer(cfg.Session.Issuer),
	)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "session.secret").Wrap(err)
	}

	notifier, err := c.deps.NewNotifier(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("field", "smtp").Wrap(err)
	}

	svc, err := auth.NewAuthServiceWithLogger(users, auth.NewArgon2idHasher(), minter, notifier, c.logger,
		auth.WithResetExpiry(cfg.Reset.TTL))
	if err != nil {
		return nil, err
	}

	var a auth.Authenticator = svc
	if cfg.Throttle.Enabled {
		counter, closeCounter, err := c.deps.OpenCounter(cfg)
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, closeCounter)

		throttle, err := auth.NewThrottleWithLogger(a, counter, c.logger)
		if err != nil {
			return nil, err
		}
		a = throttle
	}

	env.Authenticator = observability.InstrumentAuthenticator(a, observability.NewMetrics(env.registry))
	ok = true
	return env, nil
}

// finish writes operation metrics for the textfile collector when requested.
func (c *cli) finish(env *authEnv) {
	if c.metricsTextfile == "" {
		return
	}
	if err := prometheus.WriteToTextfile(c.metricsTextfile, env.registry); err != nil {
		c.logger.Warn("best-effort metrics textfile write failed",
			"path", c.metricsTextfile,
			"error", err.Error(),
		)
	}
}

func (c *cli) newSignupCmd() *cobra.Command {
	var (
		name, email   string
		passwordStdin bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Register an account and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword(cmd, passwordStdin, "Password: ")
			if err != nil {
				return err
			}
			env, err := c.openAuth(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			defer c.finish(env)

			session, err := env.Signup(cmd.Context(), name, email, password)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), session, asJSON)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full session as JSON")
	cmd.Flags().Duration("session-ttl", auth.SessionTokenExpiry, "session token lifetime")
	_ = cmd.MarkFlagRequired("name")  //nolint:errcheck // flag is defined above
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) newLoginCmd() *cobra.Command {
	var (
		email         string
		passwordStdin bool
		asJSON        bool
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Verify credentials and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword(cmd, passwordStdin, "Password: ")
			if err != nil {
				return err
			}
			env, err := c.openAuth(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			defer c.finish(env)

			session, err := env.Login(cmd.Context(), email, password)
			if err != nil {
				return err
			}
			return printSession(cmd.OutOrStdout(), session, asJSON)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full session as JSON")
	cmd.Flags().Duration("session-ttl", auth.SessionTokenExpiry, "session token lifetime")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) newWhoamiCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Print the account a session token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.openAuth(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			defer c.finish(env)

			user, err := env.CurrentUser(cmd.Context(), token)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), user)
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "session token")
	_ = cmd.MarkFlagRequired("token") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Request or confirm a password reset",
	}
	cmd.AddCommand(c.newResetRequestCmd())
	cmd.AddCommand(c.newResetConfirmCmd())
	return cmd
}

func (c *cli) newResetRequestCmd() *cobra.Command {
	var email string
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Send a single-use reset token to an account's email",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := c.openAuth(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			defer c.finish(env)

			resp, err := env.RequestPasswordReset(cmd.Context(), email)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return err
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().Duration("reset-ttl", auth.ResetTokenExpiry, "reset token lifetime")
	_ = cmd.MarkFlagRequired("email") //nolint:errcheck // flag is defined above
	return cmd
}

func (c *cli) newResetConfirmCmd() *cobra.Command {
	var (
		token         string
		passwordStdin bool
	)
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Set a new password using a reset token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			password, err := c.readPassword(cmd, passwordStdin, "New password: ")
			if err != nil {
				return err
			}
			env, err := c.openAuth(cmd)
			if err != nil {
				return err
			}
			defer env.close()
			defer c.finish(env)

			if err := env.ConfirmPasswordReset(cmd.Context(), token, password); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "Password updated")
			return err
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "reset token")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the new password from stdin")
	_ = cmd.MarkFlagRequired("token") //nolint:errcheck // flag is defined above
	return cmd
}

func printSession(w io.Writer, s *auth.Session, asJSON bool) error {
	if asJSON {
		return writeJSON(w, s)
	}
	_, err := fmt.Fprintln(w, s.Token)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return oops.Code("CLI_OUTPUT_FAILED").Wrap(err)
	}
	return nil
}
