// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package dsn

import (
	"net/url"
	"strings"
)

// ParseSQLite accepts sqlite:///abs/path.db, sqlite://rel.db, file:path.db?mode=ro,
// a bare path or :memory:.
func ParseSQLite(raw string) (*Info, error) {
	rest := strings.TrimSpace(raw)
	if rest == "" {
		return nil, parseErr("missing database path", "")
	}
	lower := strings.ToLower(rest)
	switch {
	case strings.HasPrefix(lower, "sqlite://"):
		rest = rest[len("sqlite://"):]
	case strings.HasPrefix(lower, "file:"):
		rest = rest[len("file:"):]
	}

	info := &Info{Type: SQLite, Params: map[string]string{}}
	path, query, _ := strings.Cut(rest, "?")
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, parseErr("invalid query parameters", "use key=value pairs joined by &")
		}
		for k, v := range values {
			info.Params[k] = v[0]
		}
	}
	info.Database = strings.TrimSpace(path)
	if info.Database == "" {
		return nil, parseErr("missing database path", "format is sqlite:///path/to/file.db")
	}
	return info, nil
}

func sqliteConnString(i *Info) string {
	if i.Database == ":memory:" && len(i.Params) == 0 {
		return ":memory:"
	}
	if len(i.Params) == 0 {
		return "file:" + i.Database
	}
	q := url.Values{}
	for k, v := range i.Params {
		q.Set(k, v)
	}
	return "file:" + i.Database + "?" + q.Encode()
}
