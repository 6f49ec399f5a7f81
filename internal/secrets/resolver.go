// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package secrets resolves named credentials from a secret vault.
//
// A Backend performs a single read-only lookup. The VaultResolver adds the run-level
// policy on top: names are resolved concurrently, transient vault failures are retried
// with backoff, and missing or forbidden secrets fail immediately.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/httperrors"
	"reportforge/cli/internal/retry"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrSecretNotFound is returned by a Backend when the name has no value.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrPermissionDenied is returned by a Backend when the caller may not read the name.
	ErrPermissionDenied = errors.New("permission denied")
)

// Backend reads a single secret by name.
type Backend interface {
	Name() string
	Get(ctx context.Context, name string) (value string, expiry *time.Time, err error)
}

// Resolver resolves a set of names into credentials.
type Resolver interface {
	Resolve(ctx context.Context, names []string) (*Credentials, error)
}

// VaultResolver resolves names against one Backend.
type VaultResolver struct {
	backend Backend
	retrier *retry.Retrier
	logger  *zap.Logger
	now     func() time.Time
}

// NewResolver creates a resolver over backend. policy.Timeout bounds each vault call.
func NewResolver(backend Backend, policy retry.Policy, logger *zap.Logger) *VaultResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "secrets"), zap.String("vault", backend.Name()))
	return &VaultResolver{
		backend: backend,
		retrier: retry.New(policy, logger),
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve fetches every name concurrently. The first definitive failure cancels the
// remaining lookups and is returned as a SecretUnavailable or AuthFailure error.
// Duplicate and blank names are ignored.
func (r *VaultResolver) Resolve(ctx context.Context, names []string) (*Credentials, error) {
	creds := NewCredentials()
	unique := dedupe(names)
	if len(unique) == 0 {
		return creds, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, name := range unique {
		eg.Go(func() error {
			c, err := r.resolveOne(egCtx, name)
			if err != nil {
				return err
			}
			creds.put(c)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		creds.Scrub()
		if ctx.Err() != nil {
			return nil, errs.Wrap(errs.Canceled, "secret resolution cancelled", ctx.Err()).In("secrets")
		}
		return nil, err
	}

	r.logger.Info("secrets resolved", zap.Strings("names", creds.Names()))
	return creds, nil
}

func (r *VaultResolver) resolveOne(ctx context.Context, name string) (*Credential, error) {
	var (
		value  string
		expiry *time.Time
	)
	stats, err := r.retrier.Do(ctx, "get secret "+name, isTransientVaultError, func(ctx context.Context) error {
		v, exp, err := r.backend.Get(ctx, name)
		if err != nil {
			return err
		}
		value, expiry = v, exp
		return nil
	})
	if err != nil {
		return nil, classify(name, err, stats)
	}
	if value == "" {
		return nil, errs.Newf(errs.SecretUnavailable, "secret %q resolved to an empty value", name).In("secrets")
	}
	c := NewCredential(name, value, expiry)
	if c.Expired(r.now()) {
		c.Scrub()
		return nil, errs.Newf(errs.SecretUnavailable, "secret %q expired at %s", name, expiry.Format(time.RFC3339)).In("secrets")
	}
	return c, nil
}

// isTransientVaultError keeps not-found and permission errors out of the retry loop.
func isTransientVaultError(err error) bool {
	if errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrPermissionDenied) {
		return false
	}
	return httperrors.IsTransient(err)
}

func classify(name string, err error, stats retry.Stats) error {
	if errors.Is(err, context.Canceled) {
		return errs.Wrap(errs.Canceled, fmt.Sprintf("resolving %q cancelled", name), err).In("secrets")
	}
	if errors.Is(err, ErrPermissionDenied) {
		return errs.Wrap(errs.AuthFailure, fmt.Sprintf("not allowed to read secret %q", name), err).
			In("secrets").WithAttempts(stats.Attempts, false)
	}
	msg := fmt.Sprintf("secret %q unavailable", name)
	if errors.Is(err, ErrSecretNotFound) {
		msg = fmt.Sprintf("secret %q does not exist", name)
	}
	return errs.Wrap(errs.SecretUnavailable, msg, err).In("secrets").WithAttempts(stats.Attempts, stats.Exhausted)
}

func dedupe(names []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
