// Package sql implements the eventstore repository on a relational backend.
// A single schema serves both SQLite and Postgres; statements use "?"
// placeholders and are rebound per dialect.
package sql

import (
	"context"
	"time"

	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
)

// globalCommitRow is the single row in commit_positions carrying the commit
// sequence. A global sequence keeps positions strictly increasing per
// instance while giving projections one total order to drain.
const globalCommitRow = "global"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id TEXT NOT NULL,
		instance_id TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		aggregate_version BIGINT NOT NULL,
		event_type TEXT NOT NULL,
		revision SMALLINT NOT NULL,
		payload TEXT,
		creator TEXT NOT NULL,
		owner TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		position_pos BIGINT NOT NULL,
		position_in_tx BIGINT NOT NULL,
		PRIMARY KEY (instance_id, aggregate_id, aggregate_version)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS events_position_idx
		ON events (instance_id, position_pos, position_in_tx)`,
	`CREATE INDEX IF NOT EXISTS events_type_idx
		ON events (aggregate_type, event_type, position_pos, position_in_tx)`,
	`CREATE TABLE IF NOT EXISTS unique_constraints (
		instance_id TEXT NOT NULL,
		unique_type TEXT NOT NULL,
		unique_field TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		PRIMARY KEY (instance_id, unique_type, unique_field)
	)`,
	`CREATE TABLE IF NOT EXISTS commit_positions (
		id TEXT PRIMARY KEY,
		position BIGINT NOT NULL
	)`,
}

// Storage implements eventstore.Repository.
type Storage struct {
	db  *database.DB
	now func() time.Time
}

// storageConfig holds internal settings.
type storageConfig struct {
	autoMigrate bool
}

// Option configures a Storage.
type Option func(*storageConfig)

// WithAutoMigrate toggles schema creation on startup. Enabled by default.
func WithAutoMigrate(enabled bool) Option {
	return func(c *storageConfig) { c.autoMigrate = enabled }
}

// NewStorage creates the eventstore repository on db.
func NewStorage(db *database.DB, opts ...Option) (*Storage, error) {
	cfg := storageConfig{autoMigrate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Storage{
		db:  db,
		now: time.Now,
	}

	if cfg.autoMigrate {
		for _, stmt := range schema {
			if _, err := db.Exec(stmt); err != nil {
				return nil, domain.NewUnavailable(err, "SQL-mGr4t", "unable to create eventstore schema")
			}
		}
	}

	return s, nil
}

// DB returns the underlying handle so projections can share the connection
// and run their checkpoint updates in the same database.
func (s *Storage) DB() *database.DB {
	return s.db
}

// Health reports whether the backend is reachable.
func (s *Storage) Health(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the underlying connection pool.
func (s *Storage) Close() error {
	return s.db.DB.Close()
}
