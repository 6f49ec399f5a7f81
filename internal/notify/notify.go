// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package notify sends a plain-text email after a run has published its artifacts.
package notify

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"reportforge/cli/internal/publish"

	"go.uber.org/zap"
)

// Settings is the notify section of the run config.
type Settings struct {
	SMTPHost       string   `yaml:"smtp_host,omitempty" json:"smtp_host,omitempty"`
	SMTPPort       int      `yaml:"smtp_port,omitempty" json:"smtp_port,omitempty"`
	From           string   `yaml:"from,omitempty" json:"from,omitempty"`
	To             []string `yaml:"to,omitempty" json:"to,omitempty"`
	UsernameSecret string   `yaml:"username_secret,omitempty" json:"username_secret,omitempty"`
	PasswordSecret string   `yaml:"password_secret,omitempty" json:"password_secret,omitempty"`
	// Timeout bounds the whole SMTP session; zero means DefaultTimeout.
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultTimeout bounds an SMTP session when the run file sets none.
const DefaultTimeout = 30 * time.Second

// Enabled reports whether a notification should be sent.
func (s Settings) Enabled() bool { return s.SMTPHost != "" && len(s.To) > 0 }

// SecretNames returns the credentials needed to authenticate.
func (s Settings) SecretNames() []string {
	if !s.Enabled() {
		return nil
	}
	var names []string
	for _, n := range []string{s.UsernameSecret, s.PasswordSecret} {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Mailer delivers run notifications over SMTP.
type Mailer struct {
	settings Settings
	username string
	password string
	now      func() time.Time
	logger   *zap.Logger
}

// NewMailer resolves credentials through secret, which returns "" for unknown names.
func NewMailer(s Settings, secret func(name string) string, logger *zap.Logger) *Mailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Mailer{settings: s, now: time.Now, logger: logger.Named("notify")}
	if s.UsernameSecret != "" {
		m.username = secret(s.UsernameSecret)
	}
	if s.PasswordSecret != "" {
		m.password = secret(s.PasswordSecret)
	}
	return m
}

// Summary is what the email reports.
type Summary struct {
	Report   string
	RunID    string
	Started  time.Time
	Finished time.Time
	Locators []publish.Locator
}

// Send delivers the summary to every recipient.
func (m *Mailer) Send(ctx context.Context, s Summary) error {
	if !m.settings.Enabled() {
		return nil
	}
	msg := m.message(s)
	if err := m.deliver(ctx, msg); err != nil {
		return fmt.Errorf("send notification via %s: %w", m.settings.SMTPHost, err)
	}
	m.logger.Info("notification sent", zap.Strings("to", m.settings.To), zap.String("run_id", s.RunID))
	return nil
}

func (m *Mailer) message(s Summary) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "From: %s\r\n", m.settings.From)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(m.settings.To, ", "))
	fmt.Fprintf(&b, "Subject: [reportforge] %s published (%d artifacts)\r\n", s.Report, len(s.Locators))
	fmt.Fprintf(&b, "Date: %s\r\n", m.now().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "Report %s finished run %s in %s.\r\n\r\n", s.Report, s.RunID, s.Finished.Sub(s.Started).Round(time.Second))
	for _, loc := range s.Locators {
		fmt.Fprintf(&b, "  %s\r\n", loc.URI)
	}
	return b.Bytes()
}

func (m *Mailer) deliver(ctx context.Context, msg []byte) error {
	port := m.settings.SMTPPort
	if port == 0 {
		port = 587
	}
	host := m.settings.SMTPHost
	addr := net.JoinHostPort(host, strconv.Itoa(port))

	timeout := m.settings.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	if err := conn.SetDeadline(deadline); err != nil {
		conn.Close()
		return err
	}
	// cancellation of the run also ends a stalled session
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if m.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", m.username, m.password, host)); err != nil {
				return err
			}
		}
	}
	if err := c.Mail(m.settings.From); err != nil {
		return err
	}
	for _, to := range m.settings.To {
		if err := c.Rcpt(to); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
