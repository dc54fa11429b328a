package store

import (
	"context"
	"database/sql"
	"strconv"
	"strings"

	"planharvest/internal/db"
)

// rebind rewrites '?' placeholders outside of quoted literals into postgres' $n form.
func rebind(query string) string {
	var out strings.Builder
	out.Grow(len(query) + 8)

	n := 0
	var quote rune
	for _, r := range query {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
			}
		case r == '\'' || r == '"':
			quote = r
		case r == '?':
			n++
			out.WriteByte('$')
			out.WriteString(strconv.Itoa(n))
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

type rebindDBTX struct {
	inner db.DBTX
}

func (r rebindDBTX) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return r.inner.ExecContext(ctx, rebind(query), args...)
}

func (r rebindDBTX) PrepareContext(ctx context.Context, query string) (*sql.Stmt, error) {
	return r.inner.PrepareContext(ctx, rebind(query))
}

func (r rebindDBTX) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return r.inner.QueryContext(ctx, rebind(query), args...)
}

func (r rebindDBTX) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return r.inner.QueryRowContext(ctx, rebind(query), args...)
}
