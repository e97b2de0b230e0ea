// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/samber/oops"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/internal/auth/memory"
	"github.com/holomush/gatekeep/internal/config"
	"github.com/holomush/gatekeep/internal/observability"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// mailbox records reset notifications delivered by the CLI.
type mailbox struct {
	mu   sync.Mutex
	sent []auth.ResetNotification
}

func (m *mailbox) NotifyReset(_ context.Context, n auth.ResetNotification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, n)
	return nil
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *mailbox) lastSecret(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1].Secret
}

// testCLI runs gatekeep commands against an in-memory Credential Store
// shared across invocations.
type testCLI struct {
	users    *memory.Store
	mail     *mailbox
	migrator *fakeMigrator
	obs      *fakeObservability
	terminal bool
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvSessionSecret, testSecret)
	t.Setenv(config.EnvDatabaseURL, "postgres://unused/gatekeep")
	return &testCLI{
		users:    memory.NewStore(),
		mail:     &mailbox{},
		migrator: &fakeMigrator{},
		obs:      newFakeObservability(),
	}
}

func (tc *testCLI) deps(stdin string) Deps {
	return Deps{
		Stdin:        strings.NewReader(stdin),
		IsTerminal:   func() bool { return tc.terminal },
		ReadPassword: func() ([]byte, error) { return []byte("Termin4l!"), nil },
		OpenUsers: func(context.Context, *config.Config, *slog.Logger) (auth.UserRepository, func(), error) {
			return tc.users, func() {}, nil
		},
		NewNotifier: func(*config.Config, io.Writer) (auth.ResetNotifier, error) {
			return tc.mail, nil
		},
		NewMigrator: func(string, *slog.Logger) (Migrator, error) {
			return tc.migrator, nil
		},
		NewObservabilityServer: func(string, observability.ReadinessChecker, *slog.Logger) ObservabilityServer {
			return tc.obs
		},
	}
}

func (tc *testCLI) run(t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	return tc.runContext(context.Background(), t, stdin, args...)
}

func (tc *testCLI) runContext(ctx context.Context, t *testing.T, stdin string, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	cmd := newRootCmd(tc.deps(stdin))
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd()
	names := make(map[string]bool)
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"signup", "login", "whoami", "reset", "migrate", "janitor", "config"} {
		assert.True(t, names[want], "missing %q subcommand", want)
	}
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	cmd := NewRootCmd()
	for _, name := range []string{"config", "database-url", "log-format", "log-level", "throttle", "redis-addr", "metrics-textfile"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing --%s", name)
	}
}

func TestRootCmd_MissingExplicitConfigFails(t *testing.T) {
	tc := newTestCLI(t)
	_, _, err := tc.run(t, "", "--config", "/nonexistent/gatekeep.yaml", "migrate", "version")
	require.Error(t, err)
	assert.Equal(t, "CONFIG_LOAD_FAILED", auth.ErrorCode(err))
}

func TestRootCmd_InvalidLogFormatFails(t *testing.T) {
	tc := newTestCLI(t)
	_, _, err := tc.run(t, "", "--log-format", "xml", "migrate", "version")
	require.Error(t, err)
	assert.Equal(t, "CONFIG_INVALID", auth.ErrorCode(err))
}

func TestReportError(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		want    string
		wantLog bool
	}{
		{
			name: "identity hiding code prints fixed message",
			err:  oops.Code(auth.CodeInvalidCredentials).Errorf("no such user alice@example.com"),
			want: "Error: " + auth.MessageInvalidCredentials,
		},
		{
			name: "config errors print verbatim",
			err:  oops.Code("CONFIG_INVALID").Errorf("log_format must be 'json' or 'text'"),
			want: "Error: log_format must be 'json' or 'text'",
		},
		{
			name: "uncoded errors print verbatim",
			err:  oops.Errorf(`unknown flag: --bogus`),
			want: "Error: unknown flag: --bogus",
		},
		{
			name:    "internal errors are hidden and logged",
			err:     oops.Code("USER_SCAN_FAILED").Errorf("column 3 is null"),
			want:    "Error: " + auth.MessageInternal,
			wantLog: true,
		},
		{
			name:    "store outages are logged",
			err:     oops.Code(auth.CodeStoreUnavailable).Errorf("connection refused"),
			want:    "Error: " + auth.MessageUnavailable,
			wantLog: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, logs bytes.Buffer
			reportError(&out, slog.New(slog.NewJSONHandler(&logs, nil)), tt.err)
			assert.Equal(t, tt.want+"\n", out.String())
			if tt.wantLog {
				assert.Contains(t, logs.String(), "command failed")
			} else {
				assert.Empty(t, logs.String())
			}
		})
	}
}

func TestConfigCmd(t *testing.T) {
	tc := newTestCLI(t)
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("log_format: text\n"), 0o600))
	out, _, err := tc.run(t, "", "config", "validate", good)
	require.NoError(t, err)
	assert.Equal(t, good+": ok\n", out)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("log_fromat: text\n"), 0o600))
	_, _, err = tc.run(t, "", "config", "validate", bad)
	assert.Equal(t, "CONFIG_SCHEMA_INVALID", auth.ErrorCode(err))

	out, _, err = tc.run(t, "", "config", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, config.SchemaID)
}
