// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package dsn parses database connection strings kept in the vault and builds
// canonical connection strings from the discrete settings of a run file.
//
// PostgreSQL strings may be URLs (postgres://, postgresql://) or libpq keyword/value
// lists. Passwords copied from a vault are often not URL-encoded, so the URL form is
// parsed leniently. SQLite strings are file paths or file: URIs.
package dsn

import (
	"fmt"
	"strings"
)

// DBType is the database family a connection string belongs to.
type DBType string

const (
	Postgres DBType = "postgresql"
	SQLite   DBType = "sqlite"
	Unknown  DBType = "unknown"
)

// Info is a parsed connection string.
type Info struct {
	Type     DBType
	Host     string
	Port     string
	User     string
	Password string
	Database string
	Params   map[string]string
}

// String describes the connection with the password masked.
func (i *Info) String() string {
	if i.Type == SQLite {
		return "sqlite://" + i.Database
	}
	user := i.User
	if i.Password != "" {
		user += ":***"
	}
	host := i.Host
	if i.Port != "" {
		host += ":" + i.Port
	}
	return fmt.Sprintf("%s://%s@%s/%s", i.Type, user, host, i.Database)
}

// ConnString renders the canonical driver connection string. It contains the password.
func (i *Info) ConnString() string {
	if i.Type == SQLite {
		return sqliteConnString(i)
	}
	return postgresConnString(i)
}

// ParseError describes a malformed connection string. It never carries the input,
// which may hold a password.
type ParseError struct {
	Reason string
	Hint   string
}

func (e *ParseError) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("invalid connection string: %s (%s)", e.Reason, e.Hint)
	}
	return "invalid connection string: " + e.Reason
}

func parseErr(reason, hint string) *ParseError {
	return &ParseError{Reason: reason, Hint: hint}
}

// Detect guesses the database family of raw.
func Detect(raw string) DBType {
	lower := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres
	case strings.HasPrefix(lower, "sqlite://"), strings.HasPrefix(lower, "file:"),
		strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), lower == ":memory:":
		return SQLite
	case looksLikeKeywords(lower):
		return Postgres
	}
	return Unknown
}

// Parse parses a connection string of any supported family.
func Parse(raw string) (*Info, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, parseErr("empty connection string", "")
	}
	switch Detect(raw) {
	case Postgres:
		return ParsePostgres(raw)
	case SQLite:
		return ParseSQLite(raw)
	}
	return nil, parseErr("unrecognized format", "use postgres://, host=... dbname=..., sqlite:// or a file: path")
}
