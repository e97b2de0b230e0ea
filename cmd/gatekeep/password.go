// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
)

// readPassword reads one password, from the first line of stdin when
// fromStdin is set and from a hidden terminal prompt otherwise.
func (c *cli) readPassword(cmd *cobra.Command, fromStdin bool, prompt string) (string, error) {
	if fromStdin {
		line, err := bufio.NewReader(c.deps.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", oops.Code("CLI_PASSWORD_READ_FAILED").With("source", "stdin").Wrap(err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if !c.deps.IsTerminal() {
		return "", oops.Code("CLI_PASSWORD_REQUIRED").Errorf("stdin is not a terminal; use --password-stdin")
	}

	_, _ = fmt.Fprint(cmd.ErrOrStderr(), prompt)
	raw, err := c.deps.ReadPassword()
	_, _ = fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", oops.Code("CLI_PASSWORD_READ_FAILED").With("source", "terminal").Wrap(err)
	}
	return string(raw), nil
}
