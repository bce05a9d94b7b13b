// Package tables holds the projection handlers that maintain the read-side
// tables consumed by the query layer.
package tables

import (
	"encoding/json"

	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/projection"
)

// OrgsHandler projects org and membership events into the orgs and
// org_members tables.
type OrgsHandler struct{}

func NewOrgsHandler() *OrgsHandler { return &OrgsHandler{} }

func (*OrgsHandler) Name() string { return "orgs" }

func (*OrgsHandler) AggregateTypes() []string {
	return []string{domain.OrgAggregateType}
}

func (*OrgsHandler) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS orgs (
			instance_id TEXT NOT NULL,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			state SMALLINT NOT NULL,
			created_at BIGINT NOT NULL,
			changed_at BIGINT NOT NULL,
			sequence BIGINT NOT NULL,
			PRIMARY KEY (instance_id, id)
		)`,
		`CREATE INDEX IF NOT EXISTS orgs_name_idx ON orgs (instance_id, name)`,
		`CREATE TABLE IF NOT EXISTS org_members (
			instance_id TEXT NOT NULL,
			org_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			roles TEXT NOT NULL,
			changed_at BIGINT NOT NULL,
			PRIMARY KEY (instance_id, org_id, user_id)
		)`,
	}
}

func (h *OrgsHandler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	switch domain.NormalizeEventType(event.EventType) {
	case domain.OrgAddedType:
		var payload domain.OrgAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{{
			SQL: `INSERT INTO orgs (instance_id, id, name, state, created_at, changed_at, sequence)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (instance_id, id) DO UPDATE SET
					name = excluded.name, state = excluded.state,
					changed_at = excluded.changed_at, sequence = excluded.sequence`,
			Args: []any{
				event.InstanceID, event.AggregateID, payload.Name, int(domain.OrgStateActive),
				event.CreatedAt.UnixMicro(), event.CreatedAt.UnixMicro(), event.AggregateVersion,
			},
		}}, nil
	case domain.OrgChangedType:
		var payload domain.OrgChangedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{
			orgUpdate(event, "name = ?", payload.Name),
		}, nil
	case domain.OrgDeactivatedType:
		return []projection.Statement{
			orgUpdate(event, "state = ?", int(domain.OrgStateInactive)),
		}, nil
	case domain.OrgReactivatedType:
		return []projection.Statement{
			orgUpdate(event, "state = ?", int(domain.OrgStateActive)),
		}, nil
	case domain.OrgMemberAddedType:
		var payload domain.OrgMemberAddedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		roles, err := json.Marshal(payload.Roles)
		if err != nil {
			return nil, domain.NewInternal(err, "PROJ-orgRl", "unable to encode member roles")
		}
		return []projection.Statement{
			{
				SQL: `INSERT INTO org_members (instance_id, org_id, user_id, roles, changed_at)
					VALUES (?, ?, ?, ?, ?)
					ON CONFLICT (instance_id, org_id, user_id) DO UPDATE SET
						roles = excluded.roles, changed_at = excluded.changed_at`,
				Args: []any{event.InstanceID, event.AggregateID, payload.UserID, string(roles), event.CreatedAt.UnixMicro()},
			},
			orgTouch(event),
		}, nil
	case domain.OrgMemberRemovedType:
		var payload domain.OrgMemberRemovedPayload
		if err := event.Unmarshal(&payload); err != nil {
			return nil, err
		}
		return []projection.Statement{
			{
				SQL:  `DELETE FROM org_members WHERE instance_id = ? AND org_id = ? AND user_id = ?`,
				Args: []any{event.InstanceID, event.AggregateID, payload.UserID},
			},
			orgTouch(event),
		}, nil
	}
	return nil, nil
}

func orgUpdate(event *domain.Event, set string, value any) projection.Statement {
	return projection.Statement{
		SQL:  `UPDATE orgs SET ` + set + `, changed_at = ?, sequence = ? WHERE instance_id = ? AND id = ?`,
		Args: []any{value, event.CreatedAt.UnixMicro(), event.AggregateVersion, event.InstanceID, event.AggregateID},
	}
}

func orgTouch(event *domain.Event) projection.Statement {
	return projection.Statement{
		SQL:  `UPDATE orgs SET changed_at = ?, sequence = ? WHERE instance_id = ? AND id = ?`,
		Args: []any{event.CreatedAt.UnixMicro(), event.AggregateVersion, event.InstanceID, event.AggregateID},
	}
}
