// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package datasource

import (
	"context"
	"errors"
	"fmt"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/httperrors"
	"reportforge/cli/internal/retry"
	"reportforge/cli/internal/table"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// Opener opens a driver connection from a complete connection string.
type Opener func(ctx context.Context, connString string, maxRows int) (Handle, error)

// Options configures a Connector.
type Options struct {
	Retry          retry.Policy
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration
	// MaxRows caps every query result. Zero disables the cap.
	MaxRows int
	Logger  *zap.Logger
}

// Connector is the DataSource used by runs. It retries transient connection failures
// and classifies every failure into the run error taxonomy.
type Connector struct {
	opts    Options
	logger  *zap.Logger
	openers map[Driver]Opener
}

// NewConnector creates a Connector with the built-in drivers.
func NewConnector(opts Options) *Connector {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Connector{
		opts:   opts,
		logger: logger.Named("datasource"),
		openers: map[Driver]Opener{
			Postgres: openPostgres,
			SQLite:   openSQLite,
		},
	}
}

// WithOpener replaces the opener for a driver.
func (c *Connector) WithOpener(d Driver, fn Opener) *Connector {
	c.openers[d] = fn
	return c
}

// Connect opens a connection for cfg.
func (c *Connector) Connect(ctx context.Context, cfg ConnectionConfig) (Handle, error) {
	open, ok := c.openers[cfg.Driver()]
	if !ok {
		return nil, errs.Newf(errs.ConfigError, "no driver for %q", cfg.Driver())
	}
	connString, err := cfg.ConnString()
	if err != nil {
		if _, ok := errs.As(err); ok {
			return nil, err
		}
		return nil, errs.Wrap(errs.ConnectionError, "invalid connection settings", err).In("datasource")
	}

	log := c.logger.With(zap.String("driver", string(cfg.Driver())), zap.String("target", cfg.Describe()))
	log.Debug("connecting")

	var h Handle
	policy := c.opts.Retry.WithTimeout(c.opts.ConnectTimeout)
	stats, err := retry.New(policy, log).Do(ctx, "connect", isTransientConnectError, func(ctx context.Context) error {
		var err error
		h, err = open(ctx, connString, c.opts.MaxRows)
		return err
	})
	if err != nil {
		return nil, classifyConnectError(ctx, err, stats)
	}
	log.Info("connected", zap.Int("attempts", stats.Attempts))
	return &retryingHandle{inner: h, opts: c.opts, logger: log}, nil
}

// retryingHandle adds timeouts, retries and error classification to a driver handle.
type retryingHandle struct {
	inner  Handle
	opts   Options
	logger *zap.Logger
}

// Execute runs q. Read queries are idempotent, so transient network failures and
// timeouts are retried; errors reported by the database are not.
func (h *retryingHandle) Execute(ctx context.Context, q QuerySpec) (table.Table, error) {
	log := h.logger.With(zap.String("query", q.Name))
	start := time.Now()

	var out table.Table
	policy := h.opts.Retry.WithTimeout(h.opts.QueryTimeout)
	stats, err := retry.New(policy, log).Do(ctx, "query "+q.Name, isTransientQueryError, func(ctx context.Context) error {
		var err error
		out, err = h.inner.Execute(ctx, q)
		return err
	})
	if err != nil {
		return table.Table{}, classifyQueryError(ctx, q.Name, err, stats)
	}
	log.Info("query finished", zap.Int("rows", out.Len()), zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

func (h *retryingHandle) Close() { h.inner.Close() }

// authCodes are SQLSTATEs for rejected credentials.
var authCodes = map[string]bool{
	"28000": true, // invalid_authorization_specification
	"28P01": true, // invalid_password
}

func isAuthError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && authCodes[pgErr.Code]
}

// isTransientPgError matches server states that clear up on their own:
// connection exceptions, shutdowns in progress and connection limits.
func isTransientPgError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case "53300", "57P01", "57P02", "57P03":
		return true
	}
	return len(pgErr.Code) == 5 && pgErr.Code[:2] == "08"
}

func isTransientConnectError(err error) bool {
	if _, ok := errs.As(err); ok || isAuthError(err) {
		return false
	}
	return isTransientPgError(err) || httperrors.IsTransient(err)
}

func isTransientQueryError(err error) bool {
	if _, ok := errs.As(err); ok {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return isTransientPgError(err)
	}
	return httperrors.IsTransient(err)
}

func classifyConnectError(ctx context.Context, err error, stats retry.Stats) error {
	if e, ok := errs.As(err); ok {
		return e
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.Canceled, "connect canceled", ctx.Err()).In("datasource")
	}
	if isAuthError(err) {
		return errs.Wrap(errs.AuthFailure, "database rejected the credential", err).In("datasource")
	}
	return errs.Wrap(errs.ConnectionError, "cannot connect to database", err).
		In("datasource").
		WithAttempts(stats.Attempts, stats.Exhausted)
}

func classifyQueryError(ctx context.Context, name string, err error, stats retry.Stats) error {
	if e, ok := errs.As(err); ok {
		return e
	}
	if ctx.Err() != nil {
		return errs.Wrap(errs.Canceled, fmt.Sprintf("query %q canceled", name), ctx.Err()).In("datasource")
	}
	if isAuthError(err) {
		return errs.Wrap(errs.AuthFailure, fmt.Sprintf("query %q was not authorized", name), err).In("datasource")
	}
	if isTransientQueryError(err) || errors.Is(err, context.DeadlineExceeded) {
		return errs.Wrap(errs.ConnectionError, fmt.Sprintf("query %q lost the database", name), err).
			In("datasource").
			WithAttempts(stats.Attempts, stats.Exhausted)
	}
	return errs.Wrap(errs.QueryError, fmt.Sprintf("query %q failed", name), err).In("datasource")
}
