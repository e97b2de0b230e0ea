// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/auth"
)

// ConsoleNotifier writes reset secrets to a stream. Development use only.
type ConsoleNotifier struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleNotifier creates a ConsoleNotifier writing to w.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{w: w}
}

// NotifyReset implements auth.ResetNotifier.
func (n *ConsoleNotifier) NotifyReset(_ context.Context, msg auth.ResetNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "reset token for %s (expires %s): %s\n", msg.User.Email, msg.ExpiresAt, msg.Secret)
	if err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").With("sink", "console").Wrap(err)
	}
	return nil
}

var _ auth.ResetNotifier = (*ConsoleNotifier)(nil)
