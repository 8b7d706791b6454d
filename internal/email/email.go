// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

// Package email sends the service's notification mail over SMTP.
// Delivery is fire-and-log: a failure is recorded and never propagates
// into an auth flow.
package email

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"net/url"
	"strings"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/crypto"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/logging"
	"github.com/mjsherwood76-dev/centerpiece-auth/internal/metrics"
)

// sendTimeout bounds one SMTP conversation.
const sendTimeout = 30 * time.Second

// Mailer delivers notification email.
type Mailer interface {
	// SendWelcome greets a newly registered user.
	SendWelcome(ctx context.Context, to, name string)

	// SendPasswordReset delivers the reset link carrying the one-time
	// token.
	SendPasswordReset(ctx context.Context, to, resetURL string)
}

// New returns an SMTP mailer, or a logging no-op when no SMTP host is
// configured (the normal development setup).
func New(cfg config.EmailConfig) Mailer {
	if cfg.SMTPHost == "" {
		return &noopMailer{}
	}
	return &smtpMailer{cfg: cfg}
}

type smtpMailer struct {
	cfg config.EmailConfig
}

func (m *smtpMailer) SendWelcome(ctx context.Context, to, name string) {
	greeting := name
	if greeting == "" {
		greeting = "there"
	}
	body := fmt.Sprintf(
		"Hi %s,\r\n\r\nYour Centerpiece account is ready. You can sign in to any participating store with this address.\r\n\r\nIf you did not create this account, you can safely ignore this message.\r\n",
		greeting)
	m.send(ctx, "welcome", to, "Welcome to Centerpiece", body)
}

func (m *smtpMailer) SendPasswordReset(ctx context.Context, to, resetURL string) {
	body := fmt.Sprintf(
		"A password reset was requested for this address.\r\n\r\nReset your password within the next hour:\r\n%s\r\n\r\nIf you did not request this, no action is needed; the link expires on its own.\r\n",
		resetURL)
	m.send(ctx, "password_reset", to, "Reset your Centerpiece password", body)
}

// send hands the message to a background goroutine and returns at once;
// an auth response never waits on an SMTP conversation. The outcome is
// logged and counted from the goroutine.
func (m *smtpMailer) send(ctx context.Context, kind, to, subject, body string) {
	msg := m.buildMessage(to, subject, body)
	addr := net.JoinHostPort(m.cfg.SMTPHost, fmt.Sprintf("%d", m.cfg.SMTPPort))

	// The request context ends with the response; only its logger
	// survives into the delivery goroutine.
	log := logging.Ctx(ctx)

	go func() {
		done := make(chan error, 1)
		go func() {
			var auth smtp.Auth
			if m.cfg.SMTPUser != "" {
				auth = smtp.PlainAuth("", m.cfg.SMTPUser, m.cfg.SMTPPass, m.cfg.SMTPHost)
			}
			done <- smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg))
		}()

		timer := time.NewTimer(sendTimeout)
		defer timer.Stop()

		var err error
		select {
		case err = <-done:
		case <-timer.C:
			err = fmt.Errorf("smtp send timed out after %s", sendTimeout)
		}

		if err != nil {
			metrics.EmailSends.WithLabelValues(kind, "error").Inc()
			log.Warn().Err(err).Str("kind", kind).Msg("Email delivery failed")
			return
		}
		metrics.EmailSends.WithLabelValues(kind, "ok").Inc()
		log.Debug().Str("kind", kind).Msg("Email delivered")
	}()
}

func (m *smtpMailer) buildMessage(to, subject, body string) string {
	var b strings.Builder
	from := m.cfg.From
	if m.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.cfg.FromName, m.cfg.From)
	}
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// noopMailer logs what would have been sent.
type noopMailer struct{}

func (n *noopMailer) SendWelcome(ctx context.Context, to, _ string) {
	logging.Ctx(ctx).Debug().Str("to", to).Str("kind", "welcome").Msg("Email suppressed (no SMTP host)")
}

func (n *noopMailer) SendPasswordReset(ctx context.Context, to, resetURL string) {
	// The reset URL embeds the one-time token; only its hash is loggable.
	tokenHash := ""
	if u, err := url.Parse(resetURL); err == nil {
		tokenHash = crypto.SHA256Hex(u.Query().Get("token"))
	}
	logging.Ctx(ctx).Debug().Str("to", to).Str("kind", "password_reset").
		Str("token_sha256", tokenHash).Msg("Email suppressed (no SMTP host)")
}
