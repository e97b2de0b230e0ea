// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package main is the entry point for the gatekeep CLI.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/holomush/gatekeep/internal/auth"
	"github.com/holomush/gatekeep/pkg/errutil"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd := NewRootCmd()
	cmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := cmd.Execute(); err != nil {
		reportError(os.Stderr, slog.Default(), err)
		os.Exit(1)
	}
}

// reportError prints what an end user may see and logs the full error.
// Configuration and usage errors are the caller's own input and print verbatim.
func reportError(w io.Writer, logger *slog.Logger, err error) {
	code := auth.ErrorCode(err)
	switch {
	case code == "" || strings.HasPrefix(code, "CONFIG_") || strings.HasPrefix(code, "CLI_"):
		_, _ = fmt.Fprintln(w, "Error:", err.Error())
	default:
		_, _ = fmt.Fprintln(w, "Error:", auth.PublicMessage(err))
		if auth.PublicMessage(err) == auth.MessageInternal || code == auth.CodeStoreUnavailable {
			errutil.LogError(logger, "command failed", err)
		}
	}
}
