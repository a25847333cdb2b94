// Copyright (C) 2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package notify mails the log of a rebalance run to an operator.
package notify

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/datawire/dlib/dlog"
	"github.com/wneessen/go-mail"
)

// Mailer sends messages through an SMTP relay, without
// authentication or TLS.
type Mailer struct {
	Sender   string
	Receiver string
	// Relay is "host" or "host:port"; the port defaults to 25.
	Relay string
}

// Configured returns whether all of the addressing is filled in; a
// Mailer that is not configured must not be used to Send.
func (m Mailer) Configured() bool {
	return m.Sender != "" && m.Receiver != "" && m.Relay != ""
}

func (m Mailer) relay() (host string, port int, err error) {
	host, portStr, err := net.SplitHostPort(m.Relay)
	if err != nil {
		return m.Relay, 25, nil
	}
	port, err = strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("notify: relay %q: invalid port", m.Relay)
	}
	return host, port, nil
}

// Message builds a plain-text message carrying body.
//
// The addresses must each be a single RFC 5322 address; anything else
// (such as a value with an embedded line break) is an error.  The body
// is quoted-printable encoded, so arbitrarily long log lines are
// folded.
func (m Mailer) Message(now time.Time, body string) (*mail.Msg, error) {
	msg := mail.NewMsg(
		mail.WithCharset(mail.CharsetUTF8),
		mail.WithEncoding(mail.EncodingQP),
	)
	if err := msg.From(m.Sender); err != nil {
		return nil, fmt.Errorf("notify: sender %q: %w", m.Sender, err)
	}
	if err := msg.To(m.Receiver); err != nil {
		return nil, fmt.Errorf("notify: receiver %q: %w", m.Receiver, err)
	}
	msg.Subject("Filesystem balance update " + now.Format(time.RFC3339))
	msg.SetDateWithValue(now)
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}

// Send mails body to the receiver.
func (m Mailer) Send(ctx context.Context, body string) error {
	msg, err := m.Message(time.Now(), body)
	if err != nil {
		return err
	}
	host, port, err := m.relay()
	if err != nil {
		return err
	}
	client, err := mail.NewClient(host,
		mail.WithPort(port),
		mail.WithTLSPolicy(mail.NoTLS))
	if err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	dlog.Infof(ctx, "Mailing run log to %s via %s", m.Receiver, net.JoinHostPort(host, strconv.Itoa(port)))
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
