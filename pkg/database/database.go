// Package database wraps database/sql with the two backends the system
// supports: SQLite (pure Go driver, default) and Postgres.
package database

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"  // Postgres driver
	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/plaenen/iamcore/pkg/domain"
)

// Dialect identifies the SQL flavor of the connected backend.
type Dialect int8

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// DB is a database handle that knows its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// config holds connection settings.
type config struct {
	maxOpenConns int
	maxIdleConns int
	walMode      bool
}

func defaultConfig() config {
	return config{
		maxOpenConns: 25,
		maxIdleConns: 5,
		walMode:      true,
	}
}

// Option configures a connection.
type Option func(*config)

// WithMaxOpenConns sets the maximum number of open connections.
func WithMaxOpenConns(n int) Option {
	return func(c *config) { c.maxOpenConns = n }
}

// WithMaxIdleConns sets the maximum number of idle connections.
func WithMaxIdleConns(n int) Option {
	return func(c *config) { c.maxIdleConns = n }
}

// WithWALMode toggles write-ahead logging on SQLite.
// Recommended for production, unavailable for :memory: databases.
func WithWALMode(enabled bool) Option {
	return func(c *config) { c.walMode = enabled }
}

// Connect opens a database by DSN. DSNs starting with "postgres://" or
// "postgresql://" use the Postgres driver; everything else is treated as a
// SQLite file path (":memory:" for in-memory).
func Connect(dsn string, opts ...Option) (*DB, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	dialect := DialectSQLite
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialect = DialectPostgres
		driver = "postgres"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, domain.NewUnavailable(err, "DATAB-9kLm2", "unable to open database")
	}

	if dialect == DialectSQLite && dsn == ":memory:" {
		// Each connection gets its own in-memory database, so pin one.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		db.SetMaxOpenConns(cfg.maxOpenConns)
		db.SetMaxIdleConns(cfg.maxIdleConns)
	}
	db.SetConnMaxLifetime(time.Hour)

	wrapped := &DB{DB: db, dialect: dialect}

	if dialect == DialectSQLite && cfg.walMode && dsn != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode = WAL; PRAGMA synchronous = NORMAL; PRAGMA foreign_keys = ON;"); err != nil {
			db.Close()
			return nil, domain.NewUnavailable(err, "DATAB-wA4lp", "unable to enable WAL mode")
		}
	}

	return wrapped, nil
}

// Wrap adopts an already opened connection.
func Wrap(db *sql.DB, dialect Dialect) *DB {
	return &DB{DB: db, dialect: dialect}
}

// Dialect returns the SQL flavor of the backend.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind rewrites "?" placeholders into the backend's placeholder style.
// Statements are written with "?" throughout the codebase.
func (db *DB) Rebind(query string) string {
	return Rebind(db.dialect, query)
}

// Rebind rewrites "?" placeholders for the given dialect.
func Rebind(dialect Dialect, query string) string {
	if dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] != '?' {
			b.WriteByte(query[i])
			continue
		}
		n++
		b.WriteByte('$')
		b.WriteString(strconv.Itoa(n))
	}
	return b.String()
}

// Ping verifies connectivity.
func (db *DB) Ping(ctx context.Context) error {
	if err := db.DB.PingContext(ctx); err != nil {
		return domain.NewUnavailable(err, "DATAB-H2xQe", "database unreachable")
	}
	return nil
}
