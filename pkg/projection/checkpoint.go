package projection

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
)

// Checkpoint tracks the progress of one projection.
type Checkpoint struct {
	Name         string
	Position     domain.Position
	UpdatedAt    time.Time
	FailureCount uint32
	LastError    string
}

var checkpointSchema = []string{
	`CREATE TABLE IF NOT EXISTS current_states (
		projection_name TEXT PRIMARY KEY,
		position_pos BIGINT NOT NULL DEFAULT 0,
		position_in_tx BIGINT NOT NULL DEFAULT 0,
		updated_at BIGINT NOT NULL DEFAULT 0,
		failure_count BIGINT NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		lease_owner TEXT NOT NULL DEFAULT '',
		lease_until BIGINT NOT NULL DEFAULT 0
	)`,
}

// CheckpointStore persists projection checkpoints in the same database as
// the projection tables, so a checkpoint update can join the statement
// transaction. That is what turns at-least-once delivery into exactly-once
// effect.
type CheckpointStore struct {
	db  *database.DB
	now func() time.Time
}

// NewCheckpointStore creates the store and its schema.
func NewCheckpointStore(db *database.DB) (*CheckpointStore, error) {
	for _, stmt := range checkpointSchema {
		if _, err := db.Exec(stmt); err != nil {
			return nil, domain.NewUnavailable(err, "PROJ-cpSch", "unable to create checkpoint schema")
		}
	}
	return &CheckpointStore{db: db, now: time.Now}, nil
}

// Register ensures a checkpoint row exists for the projection.
func (s *CheckpointStore) Register(ctx context.Context, name string) error {
	query := s.db.Rebind(`INSERT INTO current_states (projection_name, updated_at)
		VALUES (?, ?) ON CONFLICT (projection_name) DO NOTHING`)
	if _, err := s.db.ExecContext(ctx, query, name, s.now().UnixMicro()); err != nil {
		return domain.NewUnavailable(err, "PROJ-cpReg", "unable to register checkpoint")
	}
	return nil
}

// Load returns the checkpoint of a projection.
func (s *CheckpointStore) Load(ctx context.Context, name string) (*Checkpoint, error) {
	query := s.db.Rebind(`SELECT position_pos, position_in_tx, updated_at, failure_count, last_error
		FROM current_states WHERE projection_name = ?`)
	row := s.db.QueryRowContext(ctx, query, name)

	var (
		cp        = Checkpoint{Name: name}
		updatedAt int64
	)
	err := row.Scan(&cp.Position.Pos, &cp.Position.InTxOrder, &updatedAt, &cp.FailureCount, &cp.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "PROJ-cpNf", "projection not registered")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "PROJ-cpLd", "unable to load checkpoint")
	}
	cp.UpdatedAt = time.UnixMicro(updatedAt).UTC()
	return &cp, nil
}

// AcquireLease claims the projection for owner until now+ttl. It returns
// false when another live owner holds the lease. Leases keep concurrent
// workers from double-processing; reducers stay idempotent regardless.
func (s *CheckpointStore) AcquireLease(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := s.now()
	query := s.db.Rebind(`UPDATE current_states
		SET lease_owner = ?, lease_until = ?
		WHERE projection_name = ? AND (lease_owner = ? OR lease_owner = '' OR lease_until < ?)`)
	res, err := s.db.ExecContext(ctx, query, owner, now.Add(ttl).UnixMicro(), name, owner, now.UnixMicro())
	if err != nil {
		return false, domain.NewUnavailable(err, "PROJ-cpLs", "unable to acquire lease")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewUnavailable(err, "PROJ-cpLsA", "unable to acquire lease")
	}
	return affected == 1, nil
}

// ReleaseLease gives the lease up early. Only the owner's lease is cleared.
func (s *CheckpointStore) ReleaseLease(ctx context.Context, name, owner string) error {
	query := s.db.Rebind(`UPDATE current_states SET lease_owner = '', lease_until = 0
		WHERE projection_name = ? AND lease_owner = ?`)
	if _, err := s.db.ExecContext(ctx, query, name, owner); err != nil {
		return domain.NewUnavailable(err, "PROJ-cpRl", "unable to release lease")
	}
	return nil
}

// SaveInTx advances the checkpoint inside the statement transaction and
// clears any recorded failure.
func (s *CheckpointStore) SaveInTx(ctx context.Context, tx *sql.Tx, name string, pos domain.Position) error {
	query := s.db.Rebind(`UPDATE current_states
		SET position_pos = ?, position_in_tx = ?, updated_at = ?, failure_count = 0, last_error = ''
		WHERE projection_name = ?`)
	if _, err := tx.ExecContext(ctx, query, pos.Pos, pos.InTxOrder, s.now().UnixMicro(), name); err != nil {
		return domain.NewUnavailable(err, "PROJ-cpSv", "unable to save checkpoint")
	}
	return nil
}

// RecordFailure increments the failure counter after a rolled-back batch and
// returns the new count.
func (s *CheckpointStore) RecordFailure(ctx context.Context, name string, cause error) (uint32, error) {
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	query := s.db.Rebind(`UPDATE current_states
		SET failure_count = failure_count + 1, last_error = ?, updated_at = ?
		WHERE projection_name = ?`)
	if _, err := s.db.ExecContext(ctx, query, message, s.now().UnixMicro(), name); err != nil {
		return 0, domain.NewUnavailable(err, "PROJ-cpFl", "unable to record failure")
	}
	cp, err := s.Load(ctx, name)
	if err != nil {
		return 0, err
	}
	return cp.FailureCount, nil
}

// Skip moves the checkpoint past a poison event without applying it and
// resets the failure counter. Operator action, exposed on the admin API.
func (s *CheckpointStore) Skip(ctx context.Context, name string, past domain.Position) error {
	query := s.db.Rebind(`UPDATE current_states
		SET position_pos = ?, position_in_tx = ?, failure_count = 0, last_error = '', updated_at = ?
		WHERE projection_name = ?
		AND (position_pos < ? OR (position_pos = ? AND position_in_tx < ?))`)
	if _, err := s.db.ExecContext(ctx, query,
		past.Pos, past.InTxOrder, s.now().UnixMicro(), name,
		past.Pos, past.Pos, past.InTxOrder,
	); err != nil {
		return domain.NewUnavailable(err, "PROJ-cpSk", "unable to skip position")
	}
	return nil
}
