// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package datasource

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"reportforge/cli/internal/table"

	_ "modernc.org/sqlite"
)

// sqliteHandle executes queries against a SQLite database file.
type sqliteHandle struct {
	db      *sql.DB
	maxRows int
}

func openSQLite(ctx context.Context, connString string, maxRows int) (Handle, error) {
	if connString != ":memory:" && !strings.Contains(connString, "mode=") {
		if strings.Contains(connString, "?") {
			connString += "&mode=ro"
		} else {
			connString += "?mode=ro"
		}
	}
	db, err := sql.Open("sqlite", connString)
	if err != nil {
		return nil, err
	}
	if connString == ":memory:" || strings.Contains(connString, "mode=memory") {
		// every connection would see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &sqliteHandle{db: db, maxRows: maxRows}, nil
}

func (h *sqliteHandle) Execute(ctx context.Context, q QuerySpec) (table.Table, error) {
	keys := make([]string, 0, len(q.Params))
	for k := range q.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys))
	for _, k := range keys {
		args = append(args, sql.Named(k, q.Params[k]))
	}

	rows, err := h.db.QueryContext(ctx, q.SQL, args...)
	if err != nil {
		return table.Table{}, err
	}
	defer rows.Close()

	cts, err := rows.ColumnTypes()
	if err != nil {
		return table.Table{}, err
	}
	names := make([]string, len(cts))
	declared := make([]table.Type, len(cts))
	for i, ct := range cts {
		names[i] = ct.Name()
		declared[i] = declaredType(ct.DatabaseTypeName())
	}

	b := newBuilder(q.Name, names, declared, h.maxRows)
	dest := make([]any, len(cts))
	ptrs := make([]any, len(cts))
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return table.Table{}, err
		}
		if err := b.add(dest); err != nil {
			return table.Table{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, err
	}
	return b.table()
}

func (h *sqliteHandle) Close() { _ = h.db.Close() }
