package query

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// Org is the read model of an organization.
type Org struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	State     domain.OrgState `json:"state"`
	CreatedAt time.Time       `json:"createdAt"`
	ChangedAt time.Time       `json:"changedAt"`
	Sequence  uint64          `json:"sequence"`
}

// Searchable org columns.
var (
	OrgColumnID    = Column{Table: "orgs", Name: "id"}
	OrgColumnName  = Column{Table: "orgs", Name: "name"}
	OrgColumnState = Column{Table: "orgs", Name: "state"}

	orgColumnInstance = Column{Table: "orgs", Name: "instance_id"}
)

const selectOrgColumns = `SELECT orgs.id, orgs.name, orgs.state, orgs.created_at, orgs.changed_at, orgs.sequence FROM orgs`

// OrgByID returns one org of the caller's instance.
func (q *Queries) OrgByID(ctx context.Context, orgID string) (*Org, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := q.db.Rebind(selectOrgColumns + ` WHERE orgs.instance_id = ? AND orgs.id = ?`)
	org, err := scanOrg(q.db.QueryRowContext(ctx, query, instanceID, orgID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "QUERY-orgNf", "org not found")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-orgLd", "unable to load org")
	}
	return org, nil
}

// SearchOrgs lists orgs of the caller's instance matching the filters.
func (q *Queries) SearchOrgs(ctx context.Context, req SearchRequest, filters ...Filter) ([]*Org, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	tail, args, err := assemble(orgColumnInstance, instanceID, req, filters...)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, q.db.Rebind(selectOrgColumns+tail), args...)
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-orgSr", "unable to search orgs")
	}
	defer rows.Close()

	var orgs []*Org
	for rows.Next() {
		org, err := scanOrg(rows)
		if err != nil {
			return nil, domain.NewUnavailable(err, "QUERY-orgSc", "unable to scan org")
		}
		orgs = append(orgs, org)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-orgRw", "unable to search orgs")
	}
	return orgs, nil
}

// OrgMember is one membership row of an org.
type OrgMember struct {
	OrgID     string    `json:"orgId"`
	UserID    string    `json:"userId"`
	Roles     string    `json:"roles"`
	ChangedAt time.Time `json:"changedAt"`
}

// OrgMembers lists the members of an org.
func (q *Queries) OrgMembers(ctx context.Context, orgID string) ([]*OrgMember, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := q.db.Rebind(`SELECT org_id, user_id, roles, changed_at FROM org_members
		WHERE instance_id = ? AND org_id = ? ORDER BY user_id`)
	rows, err := q.db.QueryContext(ctx, query, instanceID, orgID)
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-orgMb", "unable to load org members")
	}
	defer rows.Close()

	var members []*OrgMember
	for rows.Next() {
		var (
			m         OrgMember
			changedAt int64
		)
		if err := rows.Scan(&m.OrgID, &m.UserID, &m.Roles, &changedAt); err != nil {
			return nil, domain.NewUnavailable(err, "QUERY-orgMs", "unable to scan org member")
		}
		m.ChangedAt = time.UnixMicro(changedAt).UTC()
		members = append(members, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-orgMr", "unable to load org members")
	}
	return members, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrg(row rowScanner) (*Org, error) {
	var (
		org       Org
		createdAt int64
		changedAt int64
		state     int16
	)
	if err := row.Scan(&org.ID, &org.Name, &state, &createdAt, &changedAt, &org.Sequence); err != nil {
		return nil, err
	}
	org.State = domain.OrgState(state)
	org.CreatedAt = time.UnixMicro(createdAt).UTC()
	org.ChangedAt = time.UnixMicro(changedAt).UTC()
	return &org, nil
}
