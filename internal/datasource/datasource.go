// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package datasource opens authenticated database connections and runs parameterized
// read queries, returning typed tables.
//
// Two drivers are supported: PostgreSQL through a pgx connection pool and SQLite through
// database/sql. Connecting is retried on transient failures; query errors reported by the
// database are returned at once. Every query reads at most MaxRows rows and fails with
// ResultTooLarge rather than truncating.
package datasource

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"reportforge/cli/internal/dsn"
	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/secrets"
	"reportforge/cli/internal/table"
)

// Driver names a database driver.
type Driver string

const (
	Postgres Driver = "postgres"
	SQLite   Driver = "sqlite"
)

// AuthMode says how the resolved credential is used.
type AuthMode string

const (
	// AuthPassword uses the credential as the password for User.
	AuthPassword AuthMode = "password"
	// AuthDSN uses the credential as a complete connection string.
	AuthDSN AuthMode = "dsn"
	// AuthNone connects without a credential.
	AuthNone AuthMode = "none"
)

// Settings is the database section of the run config.
type Settings struct {
	Driver  Driver            `yaml:"driver" json:"driver"`
	Host    string            `yaml:"host,omitempty" json:"host,omitempty"`
	Port    int               `yaml:"port,omitempty" json:"port,omitempty"`
	Name    string            `yaml:"name,omitempty" json:"name,omitempty"`
	User    string            `yaml:"user,omitempty" json:"user,omitempty"`
	SSLMode string            `yaml:"sslmode,omitempty" json:"sslmode,omitempty"`
	Auth    AuthMode          `yaml:"auth,omitempty" json:"auth,omitempty"`
	Params  map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
	// Credential names the secret used according to Auth.
	Credential string `yaml:"credential,omitempty" json:"credential,omitempty"`
	MaxRows    int    `yaml:"max_rows,omitempty" json:"max_rows,omitempty"`
}

// ConnectionConfig is built once per run from Settings and the resolved credential.
// It is immutable; the credential is referenced, not copied, so scrubbing the run's
// credentials also empties it.
type ConnectionConfig struct {
	driver     Driver
	host       string
	port       string
	database   string
	user       string
	sslMode    string
	auth       AuthMode
	params     map[string]string
	credential *secrets.Credential
}

// NewConnectionConfig validates s against the credential it needs.
func NewConnectionConfig(s Settings, cred *secrets.Credential) (ConnectionConfig, error) {
	auth := s.Auth
	if auth == "" {
		auth = AuthPassword
		if s.Driver == SQLite {
			auth = AuthNone
		}
	}
	c := ConnectionConfig{
		driver:     s.Driver,
		host:       strings.TrimSpace(s.Host),
		database:   strings.TrimSpace(s.Name),
		user:       s.User,
		sslMode:    s.SSLMode,
		auth:       auth,
		params:     map[string]string{},
		credential: cred,
	}
	if s.Port > 0 {
		c.port = strconv.Itoa(s.Port)
	}
	for k, v := range s.Params {
		c.params[k] = v
	}

	switch c.driver {
	case Postgres, SQLite:
	default:
		return ConnectionConfig{}, errs.Newf(errs.ConfigError, "unknown database driver %q", s.Driver)
	}
	switch c.auth {
	case AuthPassword, AuthDSN:
		if cred == nil {
			return ConnectionConfig{}, errs.Newf(errs.SecretUnavailable, "database auth %q needs a resolved credential", c.auth).In("datasource")
		}
	case AuthNone:
	default:
		return ConnectionConfig{}, errs.Newf(errs.ConfigError, "unknown database auth mode %q", s.Auth)
	}
	if c.auth != AuthDSN && c.database == "" {
		return ConnectionConfig{}, errs.New(errs.ConfigError, "database name is required")
	}
	return c, nil
}

func (c ConnectionConfig) Driver() Driver     { return c.driver }
func (c ConnectionConfig) Host() string       { return c.host }
func (c ConnectionConfig) Database() string   { return c.database }
func (c ConnectionConfig) AuthMode() AuthMode { return c.auth }

// ConnString builds the driver connection string. The result contains the secret and
// must not be logged; use Describe for display.
func (c ConnectionConfig) ConnString() (string, error) {
	if c.auth == AuthDSN {
		raw := c.credential.Value()
		if raw == "" {
			return "", errs.New(errs.SecretUnavailable, "connection string credential is empty").In("datasource")
		}
		info, err := dsn.Parse(raw)
		if err != nil {
			return "", errs.Wrap(errs.ConnectionError, "connection string secret", err).In("datasource")
		}
		if want := driverType(c.driver); info.Type != want {
			return "", errs.Newf(errs.ConnectionError, "connection string secret is for %s but database.driver is %s", info.Type, c.driver).In("datasource")
		}
		return info.ConnString(), nil
	}

	switch c.driver {
	case SQLite:
		info, err := dsn.ParseSQLite(c.database)
		if err != nil {
			return "", errs.Wrap(errs.ConnectionError, "database.name", err).In("datasource")
		}
		for k, v := range c.params {
			info.Params[k] = v
		}
		return info.ConnString(), nil
	default:
		password := ""
		if c.auth == AuthPassword {
			password = c.credential.Value()
			if password == "" {
				return "", errs.New(errs.SecretUnavailable, "database password credential is empty").In("datasource")
			}
		}
		params := map[string]string{"sslmode": c.sslMode}
		for k, v := range c.params {
			params[k] = v
		}
		info, err := dsn.FromParts(c.host, c.port, c.database, c.user, password, params)
		if err != nil {
			return "", errs.Wrap(errs.ConnectionError, "database settings", err).In("datasource")
		}
		return info.ConnString(), nil
	}
}

func driverType(d Driver) dsn.DBType {
	if d == SQLite {
		return dsn.SQLite
	}
	return dsn.Postgres
}

// Describe returns a display form of the connection with secrets masked.
func (c ConnectionConfig) Describe() string {
	if c.auth == AuthDSN {
		if info, err := dsn.Parse(c.credential.Value()); err == nil {
			return info.String()
		}
		return fmt.Sprintf("%s (connection string from secret)", c.driver)
	}
	if c.driver == SQLite {
		return "sqlite://" + c.database
	}
	port := c.port
	if port == "" {
		port = "5432"
	}
	user := c.user
	if c.auth == AuthPassword {
		user += ":***"
	}
	return fmt.Sprintf("postgresql://%s@%s:%s/%s", user, c.host, port, c.database)
}

// QuerySpec is a named, parameterized query from the run config. Parameters are bound
// by name (@name in the SQL text) and never interpolated.
type QuerySpec struct {
	Name   string         `yaml:"name" json:"name"`
	SQL    string         `yaml:"query" json:"query"`
	Params map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// DataSource opens connections.
type DataSource interface {
	Connect(ctx context.Context, cfg ConnectionConfig) (Handle, error)
}

// Handle is an open connection owned by one run. It is safe for concurrent Execute calls.
type Handle interface {
	Execute(ctx context.Context, q QuerySpec) (table.Table, error)
	Close()
}
