// Centerpiece Auth - Multi-Tenant Identity and Session Service
// Copyright 2026 M. Sherwood (mjsherwood76-dev)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/mjsherwood76-dev/centerpiece-auth

package email

import (
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mjsherwood76-dev/centerpiece-auth/internal/config"
)

func TestNewSelectsNoopWithoutHost(t *testing.T) {
	m := New(config.EmailConfig{From: "no-reply@centerpiece.shop"})
	if _, ok := m.(*noopMailer); !ok {
		t.Fatalf("mailer without SMTP host = %T, want noop", m)
	}
	// Must not panic or block.
	m.SendWelcome(context.Background(), "a@example.com", "A")
	m.SendPasswordReset(context.Background(), "a@example.com", "https://auth/reset?token=x")
}

func TestSendReturnsBeforeDelivery(t *testing.T) {
	// A server that accepts and never sends the SMTP greeting, so the
	// delivery goroutine stays parked while the caller must return.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listening: %v", err)
	}
	t.Cleanup(func() { ln.Close() })
	connCh := make(chan net.Conn, 1)
	go func() {
		if conn, err := ln.Accept(); err == nil {
			connCh <- conn
		}
	}()
	t.Cleanup(func() {
		select {
		case conn := <-connCh:
			conn.Close()
		default:
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	m := &smtpMailer{cfg: config.EmailConfig{
		From:     "no-reply@centerpiece.shop",
		SMTPHost: addr.IP.String(),
		SMTPPort: addr.Port,
	}}

	start := time.Now()
	m.SendPasswordReset(context.Background(), "user@example.com", "https://auth/reset?token=x")
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("SendPasswordReset blocked the caller for %s", elapsed)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	m := &smtpMailer{cfg: config.EmailConfig{
		From:     "no-reply@centerpiece.shop",
		FromName: "Centerpiece",
	}}

	msg := m.buildMessage("user@example.com", "Subject line", "Body text\r\n")

	headerEnd := strings.Index(msg, "\r\n\r\n")
	if headerEnd < 0 {
		t.Fatal("no header/body separator")
	}
	headers := msg[:headerEnd]

	for _, want := range []string{
		"From: Centerpiece <no-reply@centerpiece.shop>",
		"To: user@example.com",
		"Subject: Subject line",
		"Content-Type: text/plain; charset=utf-8",
	} {
		if !strings.Contains(headers, want) {
			t.Errorf("headers missing %q:\n%s", want, headers)
		}
	}
	if !strings.HasSuffix(msg, "Body text\r\n") {
		t.Error("body not appended after headers")
	}
}
