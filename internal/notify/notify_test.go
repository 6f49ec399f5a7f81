// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package notify

import (
	"bufio"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"reportforge/cli/internal/publish"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// smtpSink accepts one session on a local listener and records the envelope and body.
type smtpSink struct {
	ln   net.Listener
	wg   sync.WaitGroup
	mu   sync.Mutex
	rcpt []string
	data string
}

func newSMTPSink(t *testing.T) *smtpSink {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &smtpSink{ln: ln}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(func() {
		ln.Close()
		s.wg.Wait()
	})
	return s
}

func (s *smtpSink) port() int { return s.ln.Addr().(*net.TCPAddr).Port }

func (s *smtpSink) serve() {
	defer s.wg.Done()
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = conn.Write([]byte(line + "\r\n")) }

	reply("220 localhost ESMTP")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.ToUpper(strings.TrimSpace(line))
		switch {
		case strings.HasPrefix(cmd, "EHLO"), strings.HasPrefix(cmd, "HELO"):
			reply("250 localhost")
		case strings.HasPrefix(cmd, "MAIL FROM"):
			reply("250 OK")
		case strings.HasPrefix(cmd, "RCPT TO"):
			s.mu.Lock()
			s.rcpt = append(s.rcpt, strings.TrimSpace(line[len("RCPT TO:"):]))
			s.mu.Unlock()
			reply("250 OK")
		case cmd == "DATA":
			reply("354 go ahead")
			var b strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				b.WriteString(l)
			}
			s.mu.Lock()
			s.data = b.String()
			s.mu.Unlock()
			reply("250 queued")
		case cmd == "QUIT":
			reply("221 bye")
			return
		default:
			reply("250 OK")
		}
	}
}

func TestSendDeliversSummary(t *testing.T) {
	sink := newSMTPSink(t)
	m := NewMailer(Settings{
		SMTPHost: "127.0.0.1",
		SMTPPort: sink.port(),
		From:     "reports@example.com",
		To:       []string{"ops@example.com", "finance@example.com"},
	}, func(string) string { return "" }, nil)
	m.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }

	start := time.Date(2025, 3, 1, 7, 59, 0, 0, time.UTC)
	err := m.Send(context.Background(), Summary{
		Report:   "sales",
		RunID:    "a1b2c3d4",
		Started:  start,
		Finished: start.Add(42 * time.Second),
		Locators: []publish.Locator{{URI: "s3://reports/sales-20250301T075900Z.xlsx"}},
	})
	require.NoError(t, err)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, []string{"<ops@example.com>", "<finance@example.com>"}, sink.rcpt)
	assert.Contains(t, sink.data, "Subject: [reportforge] sales published (1 artifacts)")
	assert.Contains(t, sink.data, "finished run a1b2c3d4 in 42s")
	assert.Contains(t, sink.data, "s3://reports/sales-20250301T075900Z.xlsx")
}

func TestDisabledMailerIsNoop(t *testing.T) {
	m := NewMailer(Settings{}, func(string) string { return "" }, nil)
	assert.NoError(t, m.Send(context.Background(), Summary{}))
	assert.Nil(t, Settings{UsernameSecret: "u"}.SecretNames())
}

func TestSendFailsWhenServerIsDown(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	m := NewMailer(Settings{SMTPHost: "127.0.0.1", SMTPPort: port, From: "a@b", To: []string{"c@d"}}, func(string) string { return "" }, nil)
	err = m.Send(context.Background(), Summary{Report: "sales"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1")
}

func TestSendGivesUpOnSilentServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	var held []net.Conn
	var mu sync.Mutex
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			held = append(held, c)
			mu.Unlock()
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		<-done
		mu.Lock()
		for _, c := range held {
			c.Close()
		}
		mu.Unlock()
	})

	m := NewMailer(Settings{
		SMTPHost: "127.0.0.1",
		SMTPPort: ln.Addr().(*net.TCPAddr).Port,
		From:     "a@b",
		To:       []string{"c@d"},
		Timeout:  200 * time.Millisecond,
	}, func(string) string { return "" }, nil)

	start := time.Now()
	err = m.Send(context.Background(), Summary{Report: "sales"})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
