// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package secrets

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// idle keep-alive connections of the key vault client
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		// the session bus connection opened by the OS keyring lives for the process
		goleak.IgnoreAnyFunction("github.com/godbus/dbus.(*Conn).inWorker"),
		goleak.IgnoreAnyFunction("github.com/godbus/dbus.(*Conn).outWorker"),
	)
}

// fakeBackend serves values from a map and can fail the first N calls per name.
type fakeBackend struct {
	mu       sync.Mutex
	values   map[string]string
	failures map[string]error
	failN    map[string]int
	calls    map[string]int
	expiry   *time.Time
}

func newFakeBackend(values map[string]string) *fakeBackend {
	return &fakeBackend{values: values, failures: map[string]error{}, failN: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Get(ctx context.Context, name string) (string, *time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if err, ok := f.failures[name]; ok && f.calls[name] <= f.failN[name] {
		return "", nil, err
	}
	v, ok := f.values[name]
	if !ok {
		return "", nil, ErrSecretNotFound
	}
	return v, f.expiry, nil
}

func (f *fakeBackend) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 2 * time.Millisecond}
}

func TestResolveAll(t *testing.T) {
	b := newFakeBackend(map[string]string{"db-password": "pw", "smtp-password": "mail"})
	r := NewResolver(b, testPolicy(), zaptest.NewLogger(t))

	creds, err := r.Resolve(context.Background(), []string{"db-password", "smtp-password", "db-password", " "})
	require.NoError(t, err)
	assert.Equal(t, []string{"db-password", "smtp-password"}, creds.Names())
	assert.Equal(t, "pw", creds.Value("db-password"))
	assert.Equal(t, 1, b.callCount("db-password"))
}

func TestResolveRetriesTransientFailures(t *testing.T) {
	b := newFakeBackend(map[string]string{"db-password": "pw"})
	b.failures["db-password"] = errors.New("dial tcp: i/o timeout")
	b.failN["db-password"] = 2
	r := NewResolver(b, testPolicy(), nil)

	creds, err := r.Resolve(context.Background(), []string{"db-password"})
	require.NoError(t, err)
	assert.Equal(t, "pw", creds.Value("db-password"))
	assert.Equal(t, 3, b.callCount("db-password"))
}

func TestResolveExhaustedIsSecretUnavailable(t *testing.T) {
	b := newFakeBackend(map[string]string{"db-password": "pw"})
	b.failures["db-password"] = errors.New("vault returned status 503: service unavailable")
	b.failN["db-password"] = 10
	r := NewResolver(b, testPolicy(), nil)

	_, err := r.Resolve(context.Background(), []string{"db-password"})
	require.Error(t, err)
	e, ok := errs.As(err)
	require.True(t, ok)
	assert.Equal(t, errs.SecretUnavailable, e.Kind)
	assert.True(t, e.Exhausted)
	assert.Equal(t, 3, e.Attempts)
}

func TestResolveDeterministicFailuresAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind errs.Kind
	}{
		{name: "missing", err: ErrSecretNotFound, kind: errs.SecretUnavailable},
		{name: "forbidden", err: fmt.Errorf("status 403: %w", ErrPermissionDenied), kind: errs.AuthFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend(map[string]string{"x": "v"})
			b.failures["x"] = tt.err
			b.failN["x"] = 10
			r := NewResolver(b, testPolicy(), nil)

			_, err := r.Resolve(context.Background(), []string{"x"})
			require.Error(t, err)
			assert.Equal(t, tt.kind, errs.KindOf(err))
			assert.Equal(t, 1, b.callCount("x"))
		})
	}
}

func TestResolveRejectsEmptyAndExpired(t *testing.T) {
	b := newFakeBackend(map[string]string{"empty": ""})
	r := NewResolver(b, testPolicy(), nil)
	_, err := r.Resolve(context.Background(), []string{"empty"})
	assert.Equal(t, errs.SecretUnavailable, errs.KindOf(err))

	past := time.Now().Add(-time.Hour)
	b = newFakeBackend(map[string]string{"old": "v"})
	b.expiry = &past
	r = NewResolver(b, testPolicy(), nil)
	_, err = r.Resolve(context.Background(), []string{"old"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expired")
}

func TestCredentialsScrub(t *testing.T) {
	cs := NewCredentials()
	c := NewCredential("db-password", "hunter2", nil)
	cs.put(c)
	assert.NotContains(t, fmt.Sprintf("%v %+v %#v", c, c, c), "hunter2")

	cs.Scrub()
	assert.Equal(t, "", c.Value())
	assert.Equal(t, 0, cs.Len())
}

func TestEnvBackend(t *testing.T) {
	b := &EnvBackend{Prefix: "RF_", lookup: func(k string) (string, bool) {
		if k == "RF_DB_PASSWORD" {
			return "pw", true
		}
		return "", false
	}}
	v, _, err := b.Get(context.Background(), "db-password")
	require.NoError(t, err)
	assert.Equal(t, "pw", v)

	_, _, err = b.Get(context.Background(), "other")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}
