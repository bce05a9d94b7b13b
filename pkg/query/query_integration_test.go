package query_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/command"
	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	essql "github.com/plaenen/iamcore/pkg/eventstore/sql"
	"github.com/plaenen/iamcore/pkg/id"
	"github.com/plaenen/iamcore/pkg/projection"
	"github.com/plaenen/iamcore/pkg/projection/tables"
	"github.com/plaenen/iamcore/pkg/query"
)

type allowAll struct{}

func (allowAll) CheckPermission(context.Context, string, string) error { return nil }

// env wires command, projection and query sides on one in-memory database.
type env struct {
	cmds     *command.Commands
	queries  *query.Queries
	registry *projection.Registry
}

func (e *env) catchUp(t *testing.T, ctx context.Context) {
	t.Helper()
	require.NoError(t, e.registry.CatchUpAll(ctx))
}

func newEnv(t *testing.T) (*env, context.Context) {
	t.Helper()
	ctx := authz.WithInstanceID(context.Background(), "inst-1")
	ctx = authz.WithPrincipal(ctx, authz.Principal{UserID: "admin-1"})

	db, err := database.Connect(":memory:", database.WithWALMode(false))
	require.NoError(t, err)

	storage, err := essql.NewStorage(db)
	require.NoError(t, err)
	es := eventstore.NewEventstore(storage)
	t.Cleanup(func() { es.Close() })

	gen, err := id.NewGenerator(1)
	require.NoError(t, err)

	registry, err := projection.NewRegistry(es, db, nil)
	require.NoError(t, err)
	require.NoError(t, registry.Register(ctx, tables.NewOrgsHandler()))
	require.NoError(t, registry.Register(ctx, tables.NewUsersHandler()))
	require.NoError(t, registry.Register(ctx, tables.NewLabelPoliciesHandler()))
	require.NoError(t, registry.Register(ctx, tables.NewLoginPoliciesHandler()))

	return &env{
		cmds:     command.NewCommands(es, gen, allowAll{}, nil, nil),
		queries:  query.NewQueries(db, nil),
		registry: registry,
	}, ctx
}

func TestOrgQueries(t *testing.T) {
	t.Run("ByIDAndSearch", func(t *testing.T) {
		e, ctx := newEnv(t)
		acme, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		_, err = e.cmds.AddOrg(ctx, "Globex")
		require.NoError(t, err)
		e.catchUp(t, ctx)

		org, err := e.queries.OrgByID(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, "Acme", org.Name)
		assert.Equal(t, domain.OrgStateActive, org.State)
		assert.Equal(t, uint64(1), org.Sequence)

		orgs, err := e.queries.SearchOrgs(ctx, query.SearchRequest{
			SortingColumn: query.OrgColumnName, Asc: true,
		}, query.TextContains(query.OrgColumnName, "glob"))
		require.NoError(t, err)
		require.Len(t, orgs, 1)
		assert.Equal(t, "Globex", orgs[0].Name)
	})

	t.Run("StateFollowsLifecycle", func(t *testing.T) {
		e, ctx := newEnv(t)
		acme, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		_, err = e.cmds.DeactivateOrg(ctx, acme.ID)
		require.NoError(t, err)
		e.catchUp(t, ctx)

		org, err := e.queries.OrgByID(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.OrgStateInactive, org.State)
	})

	t.Run("MembersFollowAddRemove", func(t *testing.T) {
		e, ctx := newEnv(t)
		result, err := e.cmds.SetUpOrg(ctx, &command.SetUpOrgRequest{
			Name:  "Acme",
			Admin: command.AddHumanRequest{Username: "root"},
		})
		require.NoError(t, err)
		e.catchUp(t, ctx)

		members, err := e.queries.OrgMembers(ctx, result.OrgID)
		require.NoError(t, err)
		require.Len(t, members, 1)
		assert.Equal(t, result.AdminUserID, members[0].UserID)
		assert.Contains(t, members[0].Roles, command.OrgAdminRole)

		_, err = e.cmds.RemoveOrgMember(ctx, result.OrgID, result.AdminUserID)
		require.NoError(t, err)
		e.catchUp(t, ctx)

		members, err = e.queries.OrgMembers(ctx, result.OrgID)
		require.NoError(t, err)
		assert.Empty(t, members)
	})

	t.Run("OtherInstanceSeesNothing", func(t *testing.T) {
		e, ctx := newEnv(t)
		acme, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		e.catchUp(t, ctx)

		otherCtx := authz.WithInstanceID(context.Background(), "inst-2")
		_, err = e.queries.OrgByID(otherCtx, acme.ID)
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})
}

func TestUserQueries(t *testing.T) {
	t.Run("ByLoginNameIsCaseInsensitive", func(t *testing.T) {
		e, ctx := newEnv(t)
		org, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		created, err := e.cmds.AddHumanUser(ctx, &command.AddHumanRequest{
			OrgID: org.ID, Username: "Alice", Email: "alice@acme.test",
		})
		require.NoError(t, err)
		e.catchUp(t, ctx)

		user, err := e.queries.UserByLoginName(ctx, org.ID, "ALICE")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
		assert.Equal(t, "Alice", user.Username)
	})

	t.Run("RemovedUserDisappears", func(t *testing.T) {
		e, ctx := newEnv(t)
		org, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		created, err := e.cmds.AddHumanUser(ctx, &command.AddHumanRequest{OrgID: org.ID, Username: "alice"})
		require.NoError(t, err)
		_, err = e.cmds.RemoveUser(ctx, org.ID, created.ID)
		require.NoError(t, err)
		e.catchUp(t, ctx)

		_, err = e.queries.UserByID(ctx, created.ID)
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("SearchByOwnerAndState", func(t *testing.T) {
		e, ctx := newEnv(t)
		org, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		alice, err := e.cmds.AddHumanUser(ctx, &command.AddHumanRequest{OrgID: org.ID, Username: "alice"})
		require.NoError(t, err)
		_, err = e.cmds.AddHumanUser(ctx, &command.AddHumanRequest{OrgID: org.ID, Username: "bob"})
		require.NoError(t, err)
		_, err = e.cmds.LockUser(ctx, org.ID, alice.ID)
		require.NoError(t, err)
		e.catchUp(t, ctx)

		locked, err := e.queries.SearchUsers(ctx, query.SearchRequest{},
			query.TextEquals(query.UserColumnOwner, org.ID),
			query.NumberEquals(query.UserColumnState, int64(domain.UserStateLocked)))
		require.NoError(t, err)
		require.Len(t, locked, 1)
		assert.Equal(t, "alice", locked[0].Username)
	})
}

func TestPolicyResolution(t *testing.T) {
	t.Run("LabelPolicyInheritance", func(t *testing.T) {
		e, ctx := newEnv(t)
		org, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		e.catchUp(t, ctx)

		// nothing configured: builtin default
		policy, err := e.queries.ActiveLabelPolicy(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, policy.IsDefault)

		// instance default configured
		_, err = e.cmds.AddDefaultLabelPolicy(ctx, &command.LabelPolicy{PrimaryColor: "#111111"})
		require.NoError(t, err)
		e.catchUp(t, ctx)

		policy, err = e.queries.ActiveLabelPolicy(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, policy.IsDefault)
		assert.Equal(t, "#111111", policy.PrimaryColor)

		// org override wins
		_, err = e.cmds.AddLabelPolicy(ctx, org.ID, &command.LabelPolicy{PrimaryColor: "#222222"})
		require.NoError(t, err)
		e.catchUp(t, ctx)

		policy, err = e.queries.ActiveLabelPolicy(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, policy.IsDefault)
		assert.Equal(t, "#222222", policy.PrimaryColor)

		// removing the override falls back to the instance default
		_, err = e.cmds.RemoveLabelPolicy(ctx, org.ID)
		require.NoError(t, err)
		e.catchUp(t, ctx)

		policy, err = e.queries.ActiveLabelPolicy(ctx, org.ID)
		require.NoError(t, err)
		assert.True(t, policy.IsDefault)
		assert.Equal(t, "#111111", policy.PrimaryColor)
	})

	t.Run("LoginPolicyChildrenBelongToWinner", func(t *testing.T) {
		e, ctx := newEnv(t)
		org, err := e.cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		_, err = e.cmds.AddDefaultLoginPolicy(ctx, &command.LoginPolicy{AllowUsernamePassword: true})
		require.NoError(t, err)
		_, err = e.cmds.AddSecondFactorToDefaultLoginPolicy(ctx, domain.SecondFactorTypeOTP)
		require.NoError(t, err)

		_, err = e.cmds.AddLoginPolicy(ctx, org.ID, &command.LoginPolicy{AllowExternalIDP: true})
		require.NoError(t, err)
		_, err = e.cmds.AddIDPProviderToLoginPolicy(ctx, org.ID, "idp-1", "Corp SSO")
		require.NoError(t, err)
		e.catchUp(t, ctx)

		policy, err := e.queries.ActiveLoginPolicy(ctx, org.ID)
		require.NoError(t, err)
		assert.False(t, policy.IsDefault)
		assert.True(t, policy.AllowExternalIDP)
		// the org policy won, so the instance's OTP factor does not leak in
		assert.Empty(t, policy.SecondFactors)
		require.Len(t, policy.IDPLinks, 1)
		assert.Equal(t, "idp-1", policy.IDPLinks[0].IDPConfigID)
	})
}
