// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package httperrors classifies network failures seen by the vault, database and
// storage clients. The retry classifiers use it to decide what deserves another
// attempt, and the failure presenter uses it to print a hint.
package httperrors

import (
	"context"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// Class is the network failure category of an error.
type Class int

const (
	None Class = iota
	Timeout
	DNS
	Refused
	Reset
	Handshake
	Certificate
	Server
)

var classNames = [...]string{"none", "timeout", "dns", "refused", "reset", "handshake", "certificate", "server"}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "unknown"
}

// Transient reports whether a failure of this class may succeed on another attempt.
// A certificate the client does not trust will not start being trusted.
func (c Class) Transient() bool {
	return c != None && c != Certificate
}

// Hint is a one-line suggestion for the user, or "" for None.
func (c Class) Hint() string {
	switch c {
	case Timeout:
		return "The remote side took too long to respond; consider raising the matching value under 'timeouts'"
	case DNS:
		return "The host name could not be resolved; check its spelling and the DNS settings of this machine"
	case Refused:
		return "Nothing is accepting connections at the configured address; check host, port and that the service is up"
	case Reset:
		return "The connection was dropped by the remote side or a proxy in between"
	case Handshake:
		return "The secure connection could not be set up; check sslmode / use_ssl and proxy settings"
	case Certificate:
		return "The server certificate is not trusted; check the CA bundle and the system clock"
	case Server:
		return "The remote service reported an internal error; retrying later usually helps"
	}
	return ""
}

// Classify returns the network failure class of err. Context cancellation is None.
func Classify(err error) Class {
	if err == nil || errors.Is(err, context.Canceled) {
		return None
	}
	msg := strings.ToLower(err.Error())

	var (
		netErr  net.Error
		dnsErr  *net.DNSError
		unknown x509.UnknownAuthorityError
		invalid x509.CertificateInvalidError
		host    x509.HostnameError
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout(),
		strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return Timeout
	case errors.As(err, &dnsErr), strings.Contains(msg, "no such host"):
		return DNS
	case errors.Is(err, syscall.ECONNREFUSED), strings.Contains(msg, "connection refused"):
		return Refused
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE),
		strings.Contains(msg, "connection reset"), strings.Contains(msg, "broken pipe"):
		return Reset
	case errors.As(err, &unknown), errors.As(err, &invalid), errors.As(err, &host),
		strings.Contains(msg, "x509:"), strings.Contains(msg, "certificate"):
		return Certificate
	case strings.Contains(msg, "tls"), strings.Contains(msg, "handshake"):
		return Handshake
	case serverText(msg):
		return Server
	}
	return None
}

// IsTransient reports whether err looks like a temporary network condition.
func IsTransient(err error) bool { return Classify(err).Transient() }

// IsServerStatus reports whether an HTTP status code is worth retrying.
func IsServerStatus(code int) bool {
	return code == 429 || (code >= 500 && code <= 599)
}

func serverText(msg string) bool {
	for _, s := range []string{
		"internal server error", "bad gateway", "service unavailable",
		"status 500", "status 502", "status 503", "status 504",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// HostOf returns the host of a URL for messages, or "server" when there is none.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "server"
	}
	return u.Host
}
