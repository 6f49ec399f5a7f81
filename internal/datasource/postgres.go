// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package datasource

import (
	"context"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgHandle executes queries over a pgx connection pool.
type pgHandle struct {
	pool    *pgxpool.Pool
	maxRows int
}

func openPostgres(ctx context.Context, connString string, maxRows int) (Handle, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, errs.Wrap(errs.ConnectionError, "invalid postgres connection settings", err).In("datasource")
	}
	rp := cfg.ConnConfig.RuntimeParams
	if rp["application_name"] == "" {
		rp["application_name"] = "reportforge"
	}
	// reports never write
	rp["default_transaction_read_only"] = "on"

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &pgHandle{pool: pool, maxRows: maxRows}, nil
}

func (h *pgHandle) Execute(ctx context.Context, q QuerySpec) (table.Table, error) {
	var args []any
	if len(q.Params) > 0 {
		args = append(args, pgx.NamedArgs(q.Params))
	}
	rows, err := h.pool.Query(ctx, q.SQL, args...)
	if err != nil {
		return table.Table{}, err
	}
	defer rows.Close()

	fds := rows.FieldDescriptions()
	names := make([]string, len(fds))
	declared := make([]table.Type, len(fds))
	for i, fd := range fds {
		names[i] = fd.Name
		declared[i] = oidType(fd.DataTypeOID)
	}

	b := newBuilder(q.Name, names, declared, h.maxRows)
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return table.Table{}, err
		}
		if err := b.add(vals); err != nil {
			return table.Table{}, err
		}
	}
	if err := rows.Err(); err != nil {
		return table.Table{}, err
	}
	return b.table()
}

func (h *pgHandle) Close() { h.pool.Close() }

// oidType maps a column type OID onto a table type. Unknown OIDs are inferred from values.
func oidType(oid uint32) table.Type {
	switch oid {
	case pgtype.Int2OID, pgtype.Int4OID, pgtype.Int8OID, pgtype.Float4OID, pgtype.Float8OID, pgtype.NumericOID:
		return table.Number
	case pgtype.DateOID, pgtype.TimestampOID, pgtype.TimestamptzOID:
		return table.Date
	case pgtype.TextOID, pgtype.VarcharOID, pgtype.BPCharOID, pgtype.NameOID, pgtype.UUIDOID, pgtype.BoolOID:
		return table.String
	default:
		return ""
	}
}
