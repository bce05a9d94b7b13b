package query

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// User is the read model of a user.
type User struct {
	ID            string           `json:"id"`
	ResourceOwner string           `json:"resourceOwner"`
	Username      string           `json:"userName"`
	FirstName     string           `json:"firstName,omitempty"`
	LastName      string           `json:"lastName,omitempty"`
	Email         string           `json:"email,omitempty"`
	State         domain.UserState `json:"state"`
	CreatedAt     time.Time        `json:"createdAt"`
	ChangedAt     time.Time        `json:"changedAt"`
	Sequence      uint64           `json:"sequence"`
}

// Searchable user columns.
var (
	UserColumnID        = Column{Table: "users", Name: "id"}
	UserColumnOwner     = Column{Table: "users", Name: "resource_owner"}
	UserColumnUsername  = Column{Table: "users", Name: "username"}
	UserColumnFirstName = Column{Table: "users", Name: "first_name"}
	UserColumnLastName  = Column{Table: "users", Name: "last_name"}
	UserColumnEmail     = Column{Table: "users", Name: "email"}
	UserColumnState     = Column{Table: "users", Name: "state"}

	userColumnInstance = Column{Table: "users", Name: "instance_id"}
)

const selectUserColumns = `SELECT users.id, users.resource_owner, users.username, users.first_name, users.last_name, users.email, users.state, users.created_at, users.changed_at, users.sequence FROM users`

// UserByID returns one user of the caller's instance.
func (q *Queries) UserByID(ctx context.Context, userID string) (*User, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := q.db.Rebind(selectUserColumns + ` WHERE users.instance_id = ? AND users.id = ?`)
	user, err := scanUser(q.db.QueryRowContext(ctx, query, instanceID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "QUERY-usrNf", "user not found")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-usrLd", "unable to load user")
	}
	return user, nil
}

// UserByLoginName resolves a user by org and username, case-insensitively.
func (q *Queries) UserByLoginName(ctx context.Context, orgID, username string) (*User, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}

	query := q.db.Rebind(selectUserColumns +
		` WHERE users.instance_id = ? AND users.resource_owner = ? AND LOWER(users.username) = LOWER(?)`)
	user, err := scanUser(q.db.QueryRowContext(ctx, query, instanceID, orgID, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFound(err, "QUERY-usrLn", "user not found")
	}
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-usrLl", "unable to load user")
	}
	return user, nil
}

// SearchUsers lists users of the caller's instance matching the filters.
func (q *Queries) SearchUsers(ctx context.Context, req SearchRequest, filters ...Filter) ([]*User, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	tail, args, err := assemble(userColumnInstance, instanceID, req, filters...)
	if err != nil {
		return nil, err
	}

	rows, err := q.db.QueryContext(ctx, q.db.Rebind(selectUserColumns+tail), args...)
	if err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-usrSr", "unable to search users")
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, domain.NewUnavailable(err, "QUERY-usrSc", "unable to scan user")
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewUnavailable(err, "QUERY-usrRw", "unable to search users")
	}
	return users, nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user      User
		createdAt int64
		changedAt int64
		state     int16
	)
	if err := row.Scan(&user.ID, &user.ResourceOwner, &user.Username, &user.FirstName,
		&user.LastName, &user.Email, &state, &createdAt, &changedAt, &user.Sequence); err != nil {
		return nil, err
	}
	user.State = domain.UserState(state)
	user.CreatedAt = time.UnixMicro(createdAt).UTC()
	user.ChangedAt = time.UnixMicro(changedAt).UTC()
	return &user, nil
}
