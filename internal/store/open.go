// Package store persists application records. The writer guarantees at most one row per
// council reference, the readers back the records commands of the cli.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"planharvest/internal/db"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const DefaultFile = "data.sqlite"

type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectLibsql
	DialectPostgres
)

func (d Dialect) String() string {
	switch d {
	case DialectSQLite:
		return "sqlite"
	case DialectLibsql:
		return "libsql"
	case DialectPostgres:
		return "postgres"
	}
	return fmt.Sprintf("Dialect(%d)", int(d))
}

type Config struct {
	// Driver is one of "sqlite" (the default), "libsql" or "postgres".
	Driver    string `json:"driver"`
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

// Store is an open database with the application schema applied.
type Store struct {
	db      *sql.DB
	dialect Dialect
	qry     *db.Queries
}

func wrapOpen(err error) error {
	return fmt.Errorf("open store: %w", err)
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, config Config) (*Store, error) {
	var (
		database *sql.DB
		dialect  Dialect
		err      error
	)
	switch config.Driver {
	case "", "sqlite":
		dialect = DialectSQLite
		database, err = openSQLite(config.File)
	case "libsql":
		dialect = DialectLibsql
		database, err = openLibsql(config.Url, config.AuthToken)
	case "postgres":
		dialect = DialectPostgres
		if config.Url == "" {
			return nil, wrapOpen(fmt.Errorf("postgres requires a url"))
		}
		database, err = sql.Open("pgx", config.Url)
	default:
		return nil, wrapOpen(fmt.Errorf("unknown driver %q", config.Driver))
	}
	if err != nil {
		return nil, wrapOpen(err)
	}

	s := &Store{db: database, dialect: dialect}
	s.qry = db.New(s.wrap(database))

	err = s.migrate(ctx)
	if err != nil {
		database.Close()
		return nil, wrapOpen(err)
	}
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path == "" {
		path = DefaultFile
	}
	if path != ":memory:" {
		err := os.MkdirAll(filepath.Dir(path), 0777)
		if err != nil {
			return nil, err
		}
	}

	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// see this stackoverflow post for information on why the following
	// lines exist: https://stackoverflow.com/questions/35804884/sqlite-concurrent-writing-performance
	database.SetMaxOpenConns(1)
	_, err = database.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}

func openLibsql(rawUrl, authToken string) (*sql.DB, error) {
	if rawUrl == "" {
		return nil, fmt.Errorf("libsql requires a url")
	}
	if authToken == "" {
		return sql.Open("libsql", rawUrl)
	}

	u, err := url.Parse(rawUrl)
	if err != nil {
		return nil, fmt.Errorf("parse libsql url: %w", err)
	}
	query := u.Query()
	query.Set("authToken", authToken)
	u.RawQuery = query.Encode()
	return sql.Open("libsql", u.String())
}

func (s *Store) migrate(ctx context.Context) error {
	schema := db.Schema
	if s.dialect == DialectPostgres {
		schema = db.PostgresSchema
	}
	// statements go one at a time, remote drivers reject batches
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := s.db.ExecContext(ctx, stmt)
		if err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// wrap adapts a connection or transaction to the placeholder style of the dialect.
func (s *Store) wrap(conn db.DBTX) db.DBTX {
	if s.dialect == DialectPostgres {
		return rebindDBTX{inner: conn}
	}
	return conn
}

func (s *Store) Dialect() Dialect {
	return s.dialect
}

func (s *Store) Close() error {
	return s.db.Close()
}
