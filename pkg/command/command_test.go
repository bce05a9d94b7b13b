package command_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/command"
	"github.com/plaenen/iamcore/pkg/crypto"
	"github.com/plaenen/iamcore/pkg/database"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	essql "github.com/plaenen/iamcore/pkg/eventstore/sql"
	"github.com/plaenen/iamcore/pkg/id"
)

const testKeeperURL = "base64key://smGbjm71Nxd1Ig5FS0wj9SlbzAIrnolCz9bQQ6uAhl4="

type allowAll struct{}

func (allowAll) CheckPermission(context.Context, string, string) error { return nil }

type denyAll struct{}

func (denyAll) CheckPermission(context.Context, string, string) error {
	return domain.NewPermissionDenied(nil, "TEST-deny", "denied")
}

func newTestCommands(t *testing.T, checker command.PermissionChecker) (*command.Commands, *eventstore.Eventstore) {
	t.Helper()
	db, err := database.Connect(":memory:", database.WithWALMode(false))
	require.NoError(t, err)

	storage, err := essql.NewStorage(db)
	require.NoError(t, err)

	es := eventstore.NewEventstore(storage)
	t.Cleanup(func() { es.Close() })

	gen, err := id.NewGenerator(1)
	require.NoError(t, err)

	keeper, err := crypto.NewEncryptionKeeper(context.Background(), testKeeperURL, "local")
	require.NoError(t, err)
	t.Cleanup(func() { keeper.Close() })

	return command.NewCommands(es, gen, checker, keeper, nil), es
}

func testCtx() context.Context {
	ctx := authz.WithInstanceID(context.Background(), "inst-1")
	return authz.WithPrincipal(ctx, authz.Principal{UserID: "admin-1", Roles: []string{"IAM_OWNER"}})
}

func TestSetUpOrg(t *testing.T) {
	t.Run("CreatesOrgUserAndMembershipAtomically", func(t *testing.T) {
		cmds, es := newTestCommands(t, allowAll{})
		ctx := testCtx()

		got, err := cmds.SetUpOrg(ctx, &command.SetUpOrgRequest{
			Name: "Acme",
			Admin: command.AddHumanRequest{
				Username:  "root",
				FirstName: "Ada",
				LastName:  "Lovelace",
				Email:     "ada@acme.test",
				Password:  "correct horse battery staple",
			},
		})
		require.NoError(t, err)
		require.NotEmpty(t, got.OrgID)
		require.NotEmpty(t, got.AdminUserID)
		// org.added and org.member.added on the org aggregate
		assert.Equal(t, uint64(2), got.Sequence)

		orgEvents, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder("inst-1").
			AggregateTypes(domain.OrgAggregateType).
			AggregateIDs(got.OrgID))
		require.NoError(t, err)
		require.Len(t, orgEvents, 2)
		assert.Equal(t, domain.OrgAddedType, orgEvents[0].EventType)
		assert.Equal(t, domain.OrgMemberAddedType, orgEvents[1].EventType)
		assert.Equal(t, "admin-1", orgEvents[0].Creator)

		userEvents, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder("inst-1").
			AggregateTypes(domain.UserAggregateType).
			AggregateIDs(got.AdminUserID))
		require.NoError(t, err)
		require.Len(t, userEvents, 1)

		var payload domain.HumanAddedPayload
		require.NoError(t, userEvents[0].Unmarshal(&payload))
		assert.Equal(t, "root", payload.Username)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(payload.EncodedHash), []byte("correct horse battery staple")))
	})

	t.Run("OrgNameMustBeFree", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()

		_, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		_, err = cmds.SetUpOrg(ctx, &command.SetUpOrgRequest{
			Name:  "acme",
			Admin: command.AddHumanRequest{Username: "root"},
		})
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))
	})

	t.Run("WeakPasswordRejected", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})

		_, err := cmds.SetUpOrg(testCtx(), &command.SetUpOrgRequest{
			Name: "Acme",
			Admin: command.AddHumanRequest{
				Username: "root",
				Password: "aaaa",
			},
		})
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})
}

func TestOrgCommands(t *testing.T) {
	t.Run("RenameSwapsNameClaim", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()

		first, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		_, err = cmds.ChangeOrg(ctx, first.ID, "Globex")
		require.NoError(t, err)

		// old name is free again, new name is taken
		_, err = cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		_, err = cmds.AddOrg(ctx, "Globex")
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))
	})

	t.Run("RenameToSameNameIsNoOp", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()

		created, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		details, err := cmds.ChangeOrg(ctx, created.ID, "Acme")
		require.NoError(t, err)
		assert.Equal(t, created.Sequence, details.Sequence)
	})

	t.Run("DeactivateTwiceFails", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()

		created, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		_, err = cmds.DeactivateOrg(ctx, created.ID)
		require.NoError(t, err)
		_, err = cmds.DeactivateOrg(ctx, created.ID)
		require.Error(t, err)
		assert.True(t, domain.IsFailedPrecondition(err))

		_, err = cmds.ReactivateOrg(ctx, created.ID)
		require.NoError(t, err)
	})

	t.Run("MemberRequiresExistingUser", func(t *testing.T) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()

		created, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)

		_, err = cmds.AddOrgMember(ctx, created.ID, "ghost-user", "ORG_OWNER")
		require.Error(t, err)
		assert.True(t, domain.IsFailedPrecondition(err))
	})

	t.Run("PermissionDenied", func(t *testing.T) {
		cmds, _ := newTestCommands(t, denyAll{})

		_, err := cmds.AddOrg(testCtx(), "Acme")
		require.Error(t, err)
		assert.True(t, domain.IsPermissionDenied(err))
	})
}

func TestUserCommands(t *testing.T) {
	setup := func(t *testing.T) (*command.Commands, context.Context, string) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()
		org, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		return cmds, ctx, org.ID
	}

	addUser := func(t *testing.T, cmds *command.Commands, ctx context.Context, orgID, username string) string {
		t.Helper()
		details, err := cmds.AddHumanUser(ctx, &command.AddHumanRequest{
			OrgID:    orgID,
			Username: username,
			Email:    username + "@acme.test",
		})
		require.NoError(t, err)
		return details.ID
	}

	t.Run("UsernameUniquePerOrgCaseInsensitive", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		addUser(t, cmds, ctx, orgID, "Alice")

		_, err := cmds.AddHumanUser(ctx, &command.AddHumanRequest{OrgID: orgID, Username: "alice"})
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))

		// same username in another org is fine
		other, err := cmds.AddOrg(ctx, "Globex")
		require.NoError(t, err)
		addUser(t, cmds, ctx, other.ID, "alice")
	})

	t.Run("RemoveReleasesUsername", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		userID := addUser(t, cmds, ctx, orgID, "alice")

		_, err := cmds.RemoveUser(ctx, orgID, userID)
		require.NoError(t, err)

		addUser(t, cmds, ctx, orgID, "alice")
	})

	t.Run("ChangeUsernameSwapsClaim", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		userID := addUser(t, cmds, ctx, orgID, "alice")

		_, err := cmds.ChangeUsername(ctx, orgID, userID, "bob")
		require.NoError(t, err)

		addUser(t, cmds, ctx, orgID, "alice")
		_, err = cmds.AddHumanUser(ctx, &command.AddHumanRequest{OrgID: orgID, Username: "Bob"})
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))
	})

	t.Run("LockedUserStillExists", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		userID := addUser(t, cmds, ctx, orgID, "alice")

		_, err := cmds.LockUser(ctx, orgID, userID)
		require.NoError(t, err)
		_, err = cmds.LockUser(ctx, orgID, userID)
		require.Error(t, err)
		assert.True(t, domain.IsFailedPrecondition(err))

		// profile changes on a locked user still go through
		_, err = cmds.ChangeProfile(ctx, orgID, userID, "Alice", "Smith")
		require.NoError(t, err)

		_, err = cmds.UnlockUser(ctx, orgID, userID)
		require.NoError(t, err)
	})

	t.Run("InvalidEmailRejected", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		_, err := cmds.AddHumanUser(ctx, &command.AddHumanRequest{
			OrgID:    orgID,
			Username: "alice",
			Email:    "not-an-email",
		})
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})
}

func TestProjectAndAppCommands(t *testing.T) {
	setup := func(t *testing.T) (*command.Commands, context.Context, string) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()
		org, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		return cmds, ctx, org.ID
	}

	t.Run("OIDCAppReturnsSecretOnce", func(t *testing.T) {
		cmds, es := newTestCommands(t, allowAll{})
		ctx := testCtx()
		org, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		project, err := cmds.AddProject(ctx, org.ID, "CRM")
		require.NoError(t, err)

		app, err := cmds.AddOIDCApplication(ctx, org.ID, project.ID, "web", []string{"https://app.acme.test/cb"})
		require.NoError(t, err)
		assert.NotEmpty(t, app.ClientID)
		assert.NotEmpty(t, app.ClientSecret)

		// the stored payload carries only ciphertext
		events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder("inst-1").
			AggregateTypes(domain.ProjectAggregateType).
			AggregateIDs(project.ID).
			EventTypes(domain.ApplicationOIDCConfigAddedType))
		require.NoError(t, err)
		require.Len(t, events, 1)

		var payload domain.ApplicationOIDCConfigAddedPayload
		require.NoError(t, events[0].Unmarshal(&payload))
		require.NotNil(t, payload.ClientSecret)
		assert.NotContains(t, string(payload.ClientSecret.Crypted), app.ClientSecret)
	})

	t.Run("AppRequiresActiveProject", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		project, err := cmds.AddProject(ctx, orgID, "CRM")
		require.NoError(t, err)
		_, err = cmds.DeactivateProject(ctx, orgID, project.ID)
		require.NoError(t, err)

		_, err = cmds.AddOIDCApplication(ctx, orgID, project.ID, "web", nil)
		require.Error(t, err)
		assert.True(t, domain.IsFailedPrecondition(err))
	})

	t.Run("RemoveProjectRemovesApps", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		project, err := cmds.AddProject(ctx, orgID, "CRM")
		require.NoError(t, err)
		app, err := cmds.AddOIDCApplication(ctx, orgID, project.ID, "web", nil)
		require.NoError(t, err)

		_, err = cmds.RemoveProject(ctx, orgID, project.ID)
		require.NoError(t, err)

		_, err = cmds.ChangeApplication(ctx, orgID, project.ID, app.AppID, "renamed")
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("RegenerateClientSecret", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		project, err := cmds.AddProject(ctx, orgID, "CRM")
		require.NoError(t, err)
		app, err := cmds.AddOIDCApplication(ctx, orgID, project.ID, "web", nil)
		require.NoError(t, err)

		regenerated, err := cmds.RegenerateClientSecret(ctx, orgID, project.ID, app.AppID)
		require.NoError(t, err)
		assert.Equal(t, app.ClientID, regenerated.ClientID)
		assert.NotEqual(t, app.ClientSecret, regenerated.ClientSecret)
	})
}

func TestPolicyCommands(t *testing.T) {
	setup := func(t *testing.T) (*command.Commands, context.Context, string) {
		cmds, _ := newTestCommands(t, allowAll{})
		ctx := testCtx()
		org, err := cmds.AddOrg(ctx, "Acme")
		require.NoError(t, err)
		return cmds, ctx, org.ID
	}

	t.Run("LabelPolicyLifecycle", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)

		_, err := cmds.AddLabelPolicy(ctx, orgID, &command.LabelPolicy{PrimaryColor: "#ff0000"})
		require.NoError(t, err)

		_, err = cmds.AddLabelPolicy(ctx, orgID, &command.LabelPolicy{PrimaryColor: "#00ff00"})
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))

		_, err = cmds.ChangeLabelPolicy(ctx, orgID, &command.LabelPolicy{PrimaryColor: "#00ff00"})
		require.NoError(t, err)

		_, err = cmds.RemoveLabelPolicy(ctx, orgID)
		require.NoError(t, err)
		_, err = cmds.RemoveLabelPolicy(ctx, orgID)
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("InvalidColorRejected", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		_, err := cmds.AddLabelPolicy(ctx, orgID, &command.LabelPolicy{PrimaryColor: "red"})
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})

	t.Run("ChangeToIdenticalPolicyIsNoOp", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		policy := &command.LoginPolicy{AllowUsernamePassword: true, AllowRegister: true}

		added, err := cmds.AddLoginPolicy(ctx, orgID, policy)
		require.NoError(t, err)

		changed, err := cmds.ChangeLoginPolicy(ctx, orgID, policy)
		require.NoError(t, err)
		assert.Equal(t, added.Sequence, changed.Sequence)
	})

	t.Run("SecondFactorsAreASet", func(t *testing.T) {
		cmds, ctx, orgID := setup(t)
		_, err := cmds.AddLoginPolicy(ctx, orgID, &command.LoginPolicy{AllowUsernamePassword: true})
		require.NoError(t, err)

		_, err = cmds.AddSecondFactorToLoginPolicy(ctx, orgID, domain.SecondFactorTypeOTP)
		require.NoError(t, err)
		_, err = cmds.AddSecondFactorToLoginPolicy(ctx, orgID, domain.SecondFactorTypeOTP)
		require.Error(t, err)
		assert.True(t, domain.IsAlreadyExists(err))

		_, err = cmds.RemoveSecondFactorFromLoginPolicy(ctx, orgID, domain.SecondFactorTypeOTP)
		require.NoError(t, err)
		_, err = cmds.RemoveSecondFactorFromLoginPolicy(ctx, orgID, domain.SecondFactorTypeOTP)
		require.Error(t, err)
		assert.True(t, domain.IsNotFound(err))
	})

	t.Run("DefaultPoliciesLiveOnInstance", func(t *testing.T) {
		cmds, es := newTestCommands(t, allowAll{})
		ctx := testCtx()

		_, err := cmds.AddDefaultLoginPolicy(ctx, &command.LoginPolicy{AllowUsernamePassword: true})
		require.NoError(t, err)
		_, err = cmds.AddSecondFactorToDefaultLoginPolicy(ctx, domain.SecondFactorTypeU2F)
		require.NoError(t, err)

		events, err := es.Filter(ctx, eventstore.NewSearchQueryBuilder("inst-1").
			AggregateTypes(domain.InstanceAggregateType))
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "inst-1", events[0].AggregateID)
	})
}
