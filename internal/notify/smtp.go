// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package notify delivers password reset secrets out of band.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/smtp"
	"net/url"
	"strings"

	"github.com/samber/oops"

	"github.com/holomush/gatekeep/internal/auth"
)

// SMTPConfig configures SMTPNotifier.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	UseTLS   bool
	// LinkBase, when set, is a URL the secret is appended to as ?token=.
	LinkBase string
}

// sendFunc matches smtp.SendMail.
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier mails reset secrets.
type SMTPNotifier struct {
	cfg  SMTPConfig
	send sendFunc
}

// NewSMTPNotifier creates an SMTPNotifier. Port defaults to 587.
func NewSMTPNotifier(cfg SMTPConfig) (*SMTPNotifier, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp host is required")
	}
	if strings.TrimSpace(cfg.From) == "" {
		return nil, oops.Code("NOTIFY_INVALID_CONFIG").Errorf("smtp from is required")
	}
	if cfg.LinkBase != "" {
		if _, err := url.Parse(cfg.LinkBase); err != nil {
			return nil, oops.Code("NOTIFY_INVALID_CONFIG").With("field", "link_base").Wrap(err)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	n := &SMTPNotifier{cfg: cfg}
	n.send = smtp.SendMail
	if cfg.UseTLS {
		n.send = n.sendTLS
	}
	return n, nil
}

// NotifyReset implements auth.ResetNotifier.
func (n *SMTPNotifier) NotifyReset(ctx context.Context, msg auth.ResetNotification) error {
	if strings.TrimSpace(msg.User.Email) == "" {
		return oops.Code("NOTIFY_NO_RECIPIENT").Errorf("recipient email is required")
	}
	if err := ctx.Err(); err != nil {
		return oops.Code("NOTIFY_CANCELLED").Wrap(err)
	}

	body := resetBody(msg, n.cfg.LinkBase)
	raw := buildMessage(n.cfg.From, n.cfg.FromName, msg.User.Email, "Password reset", body)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var a smtp.Auth
	if n.cfg.Username != "" {
		a = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	if err := n.send(addr, a, n.cfg.From, []string{msg.User.Email}, []byte(raw)); err != nil {
		return oops.Code("NOTIFY_SEND_FAILED").
			With("host", n.cfg.Host).
			With("user_id", msg.User.ID).
			Wrap(err)
	}
	return nil
}

// sendTLS delivers over implicit TLS (port 465 style).
func (n *SMTPNotifier) sendTLS(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: n.cfg.Host, MinVersion: tls.VersionTLS12})
	if err != nil {
		return err
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, n.cfg.Host)
	if err != nil {
		return err
	}
	defer client.Quit() //nolint:errcheck // message already accepted or failed

	if a != nil {
		if err := client.Auth(a); err != nil {
			return err
		}
	}
	if err := client.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := client.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func resetBody(msg auth.ResetNotification, linkBase string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", msg.User.Name)
	b.WriteString("A password reset was requested for your account.\n")
	if linkBase != "" {
		fmt.Fprintf(&b, "Open this link to choose a new password:\n%s\n", resetLink(linkBase, msg.Secret))
	} else {
		fmt.Fprintf(&b, "Your reset token is:\n%s\n", msg.Secret)
	}
	fmt.Fprintf(&b, "\nIt expires at %s and can be used once.\n", msg.ExpiresAt)
	b.WriteString("If you did not ask for this, ignore this message.\n")
	return b.String()
}

func resetLink(base, secret string) string {
	u, err := url.Parse(base)
	if err != nil {
		return base + secret
	}
	q := u.Query()
	q.Set("token", secret)
	u.RawQuery = q.Encode()
	return u.String()
}

func buildMessage(from, fromName, to, subject, body string) string {
	fromHeader := from
	if strings.TrimSpace(fromName) != "" {
		fromHeader = fmt.Sprintf("%s <%s>", fromName, from)
	}

	headers := []string{
		"From: " + fromHeader,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		`Content-Type: text/plain; charset="UTF-8"`,
	}

	return strings.Join(headers, "\r\n") + "\r\n\r\n" + body
}

var _ auth.ResetNotifier = (*SMTPNotifier)(nil)
