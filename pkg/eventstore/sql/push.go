package sql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/plaenen/iamcore/pkg/domain"
)

const (
	allocatePositionQuery = `INSERT INTO commit_positions (id, position) VALUES (?, 1)
		ON CONFLICT (id) DO UPDATE SET position = commit_positions.position + 1
		RETURNING position`

	currentVersionQuery = `SELECT COALESCE(MAX(aggregate_version), 0), COALESCE(MAX(owner), '')
		FROM events WHERE instance_id = ? AND aggregate_id = ?`

	insertEventQuery = `INSERT INTO events (
		id, instance_id, aggregate_type, aggregate_id, aggregate_version,
		event_type, revision, payload, creator, owner, created_at,
		position_pos, position_in_tx
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	insertUniqueQuery = `INSERT INTO unique_constraints
		(instance_id, unique_type, unique_field, aggregate_id) VALUES (?, ?, ?, ?)`

	deleteUniqueQuery = `DELETE FROM unique_constraints
		WHERE instance_id = ? AND unique_type = ? AND unique_field = ?`

	deleteInstanceUniqueQuery = `DELETE FROM unique_constraints WHERE instance_id = ?`
)

// Push appends all commands in one transaction. The commit sequence, the
// per-aggregate version checks, the event rows and the unique-constraint
// side table all change together or not at all.
func (s *Storage) Push(ctx context.Context, commands []*domain.Command) (_ []*domain.Event, err error) {
	for _, command := range commands {
		if err := validateCommand(command); err != nil {
			return nil, err
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewUnavailable(err, "SQL-9cT2w", "unable to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	pos, err := s.allocatePosition(ctx, tx)
	if err != nil {
		return nil, err
	}

	events, err := s.insertEvents(ctx, tx, pos, commands)
	if err != nil {
		return nil, err
	}

	if err := s.applyUniqueConstraints(ctx, tx, commands); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err, "SQL-fJ9dj")
	}
	return events, nil
}

func validateCommand(command *domain.Command) error {
	switch {
	case command.InstanceID == "":
		return domain.NewInvalidArgument(nil, "SQL-Cmd1i", "command misses instance id")
	case command.AggregateType == "":
		return domain.NewInvalidArgument(nil, "SQL-Cmd2t", "command misses aggregate type")
	case command.AggregateID == "":
		return domain.NewInvalidArgument(nil, "SQL-Cmd3a", "command misses aggregate id")
	case command.EventType == "":
		return domain.NewInvalidArgument(nil, "SQL-Cmd4e", "command misses event type")
	case command.Revision == 0:
		return domain.NewInvalidArgument(nil, "SQL-Cmd5r", fmt.Sprintf("revision of %s must be >= 1", command.EventType))
	}
	return nil
}

func (s *Storage) allocatePosition(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var pos uint64
	err := tx.QueryRowContext(ctx, s.db.Rebind(allocatePositionQuery), globalCommitRow).Scan(&pos)
	if err != nil {
		return 0, domain.NewUnavailable(err, "SQL-pZ5hF", "unable to allocate commit position")
	}
	return pos, nil
}

func (s *Storage) insertEvents(ctx context.Context, tx *sql.Tx, pos uint64, commands []*domain.Command) ([]*domain.Event, error) {
	type aggregateState struct {
		version uint64
		owner   string
	}
	states := make(map[string]*aggregateState)
	createdAt := s.now().UTC()

	events := make([]*domain.Event, len(commands))
	for i, command := range commands {
		key := command.InstanceID + "/" + command.AggregateID

		state, ok := states[key]
		if !ok {
			state = &aggregateState{}
			err := tx.QueryRowContext(ctx, s.db.Rebind(currentVersionQuery), command.InstanceID, command.AggregateID).
				Scan(&state.version, &state.owner)
			if err != nil {
				return nil, domain.NewUnavailable(err, "SQL-vB7kQ", "unable to read aggregate version")
			}
			states[key] = state
		}

		if command.ExpectedVersion != nil && *command.ExpectedVersion != state.version {
			return nil, domain.NewFailedPrecondition(nil, "SQL-cnC2r",
				fmt.Sprintf("concurrency conflict on %s %s: expected version %d, current %d",
					command.AggregateType, command.AggregateID, *command.ExpectedVersion, state.version))
		}

		// The first event of an aggregate pins its owner; later events keep it.
		owner := state.owner
		if owner == "" {
			owner = command.Owner
			if owner == "" {
				owner = command.InstanceID
			}
			state.owner = owner
		}

		payload, err := marshalPayload(command.Payload)
		if err != nil {
			return nil, domain.NewInvalidArgument(err, "SQL-pLd8m", fmt.Sprintf("unable to marshal payload of %s", command.EventType))
		}

		state.version++
		event := &domain.Event{
			ID:               uuid.NewString(),
			EventType:        command.EventType,
			AggregateType:    command.AggregateType,
			AggregateID:      command.AggregateID,
			AggregateVersion: state.version,
			Revision:         command.Revision,
			Payload:          payload,
			Creator:          command.Creator,
			Owner:            owner,
			InstanceID:       command.InstanceID,
			CreatedAt:        createdAt,
			Position:         domain.Position{Pos: pos, InTxOrder: uint32(i)},
		}

		_, err = tx.ExecContext(ctx, s.db.Rebind(insertEventQuery),
			event.ID, event.InstanceID, event.AggregateType, event.AggregateID,
			event.AggregateVersion, event.EventType, event.Revision,
			nullablePayload(event.Payload), event.Creator, event.Owner,
			event.CreatedAt.UnixMicro(), event.Position.Pos, event.Position.InTxOrder,
		)
		if err != nil {
			return nil, translateError(err, "SQL-iEv5n")
		}
		events[i] = event
	}
	return events, nil
}

func (s *Storage) applyUniqueConstraints(ctx context.Context, tx *sql.Tx, commands []*domain.Command) error {
	for _, command := range commands {
		for _, constraint := range command.UniqueConstraints {
			var err error
			switch constraint.Action {
			case domain.UniqueConstraintAdd:
				_, err = tx.ExecContext(ctx, s.db.Rebind(insertUniqueQuery),
					command.InstanceID, constraint.UniqueType, constraint.UniqueField, command.AggregateID)
			case domain.UniqueConstraintRemove:
				_, err = tx.ExecContext(ctx, s.db.Rebind(deleteUniqueQuery),
					command.InstanceID, constraint.UniqueType, constraint.UniqueField)
			case domain.UniqueConstraintRemoveAll:
				_, err = tx.ExecContext(ctx, s.db.Rebind(deleteInstanceUniqueQuery), command.InstanceID)
			}
			if err != nil {
				if isUniqueViolation(err) {
					message := constraint.ErrorMessage
					if message == "" {
						message = fmt.Sprintf("%s %q already taken", constraint.UniqueType, constraint.UniqueField)
					}
					return domain.NewAlreadyExists(err, "SQL-unQ3v", message)
				}
				return translateError(err, "SQL-unX9b")
			}
		}
	}
	return nil
}

func marshalPayload(payload any) ([]byte, error) {
	switch p := payload.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	default:
		return json.Marshal(p)
	}
}

func nullablePayload(payload []byte) any {
	if len(payload) == 0 {
		return nil
	}
	return string(payload)
}
