package tables

import (
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/projection"
)

// UsersHandler projects user events into the users table. Removed users are
// deleted; locked users stay visible with their state.
type UsersHandler struct{}

func NewUsersHandler() *UsersHandler { return &UsersHandler{} }

func (*UsersHandler) Name() string { return "users" }

func (*UsersHandler) AggregateTypes() []string {
	return []string{domain.UserAggregateType}
}

func (*UsersHandler) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS users (
			instance_id TEXT NOT NULL,
			id TEXT NOT NULL,
			resource_owner TEXT NOT NULL,
			username TEXT NOT NULL,
			first_name TEXT NOT NULL DEFAULT '',
			last_name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			state SMALLINT NOT NULL,
			created_at BIGINT NOT NULL,
			changed_at BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS users_owner_idx ON users (instance_id, resource_owner)`,
		`CREATE INDEX IF NOT EXISTS users_username_idx ON users (instance_id, username)`,
	}
}

func (h *UsersHandler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	switch domain.NormalizeEventType(event.EventType) {
	case domain.HumanAddedType:
		var payload domain.HumanAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL: `INSERT INTO users (instance_id, id, resource_owner, username, first_name, last_name, email, state, created_at, changed_at, sequence)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (instance_id, id) DO UPDATE SET
					username = excluded.username, first_name = excluded.first_name,
					last_name = excluded.last_name, email = excluded.email,
					state = excluded.state, changed_at = excluded.changed_at,
					sequence = excluded.sequence`,
			Args: []any{
				event.InstanceID, event.AggregateID, event.Owner,
				payload.Username, payload.FirstName, payload.LastName, payload.Email,
				int(domain.UserStateActive),
				event.CreatedAt.UnixMicro(), event.CreatedAt.UnixMicro(), event.AggregateVersion,
			},
		}}, nil
	case domain.HumanProfileChangedType:
		var payload domain.HumanProfileChangedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{
			userUpdate(event, "first_name = ?, last_name = ?", payload.FirstName, payload.LastName),
		}, nil
	case domain.HumanEmailChangedType:
		var payload domain.HumanEmailChangedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{
			userUpdate(event, "email = ?", payload.Email),
		}, nil
	case domain.UserUsernameChangedType:
		var payload domain.UsernameChangedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{
			userUpdate(event, "username = ?", payload.Username),
		}, nil
	case domain.UserLockedType:
		return []projection.Statement{
			userUpdate(event, "state = ?", int(domain.UserStateLocked)),
		}, nil
	case domain.UserUnlockedType:
		return []projection.Statement{
			userUpdate(event, "state = ?", int(domain.UserStateActive)),
		}, nil
	case domain.UserRemovedType:
		return []projection.Statement{{
			SQL:  `DELETE FROM users WHERE instance_id = ? AND id = ?`,
			Args: []any{event.InstanceID, event.AggregateID},
		}}, nil
	}
	return nil, nil
}

func userUpdate(event *domain.Event, set string, values ...any) projection.Statement {
	args := append(values, event.CreatedAt.UnixMicro(), event.AggregateVersion, event.InstanceID, event.AggregateID)
	return projection.Statement{
		SQL:  `UPDATE users SET ` + set + `, changed_at = ?, sequence = ? WHERE instance_id = ? AND id = ?`,
		Args: args,
	}
}
