// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package httperrors

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		want      Class
		transient bool
	}{
		{name: "nil", err: nil, want: None},
		{name: "deadline exceeded", err: fmt.Errorf("dial: %w", context.DeadlineExceeded), want: Timeout, transient: true},
		{name: "canceled", err: fmt.Errorf("query: %w", context.Canceled), want: None},
		{name: "dns", err: &net.DNSError{Err: "no such host", Name: "db.internal"}, want: DNS, transient: true},
		{name: "refused op error", err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: Refused, transient: true},
		{name: "refused text", err: errors.New("dial tcp 10.0.0.1:5432: connection refused"), want: Refused, transient: true},
		{name: "reset", err: errors.New("read: connection reset by peer"), want: Reset, transient: true},
		{name: "handshake", err: errors.New("remote error: tls: handshake failure"), want: Handshake, transient: true},
		{name: "untrusted certificate", err: fmt.Errorf("get: %w", x509.UnknownAuthorityError{}), want: Certificate},
		{name: "server status", err: errors.New("vault returned status 503"), want: Server, transient: true},
		{name: "permission", err: errors.New("permission denied"), want: None},
		{name: "syntax", err: errors.New(`syntax error at or near "selec"`), want: None},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			if got != tt.want {
				t.Fatalf("Classify() = %s, want %s", got, tt.want)
			}
			if IsTransient(tt.err) != tt.transient {
				t.Errorf("IsTransient() = %v, want %v", !tt.transient, tt.transient)
			}
			if (got.Hint() == "") != (got == None) {
				t.Errorf("Hint() = %q for %s", got.Hint(), got)
			}
		})
	}
}

func TestIsServerStatus(t *testing.T) {
	for code, want := range map[int]bool{200: false, 403: false, 404: false, 429: true, 500: true, 503: true} {
		if got := IsServerStatus(code); got != want {
			t.Errorf("IsServerStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestHostOf(t *testing.T) {
	if got := HostOf("https://myvault.vault.azure.net/secrets/x"); got != "myvault.vault.azure.net" {
		t.Errorf("HostOf() = %q", got)
	}
	if got := HostOf("::bad"); got != "server" {
		t.Errorf("HostOf() = %q, want server", got)
	}
}
