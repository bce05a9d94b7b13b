package command

import (
	"context"
	"strings"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/crypto"
	"github.com/plaenen/iamcore/pkg/domain"
)

// OIDCApp is returned by AddOIDCApplication. ClientSecret holds the plain
// secret exactly once; only the encrypted form is persisted.
type OIDCApp struct {
	*domain.ObjectDetails

	AppID        string
	ClientID     string
	ClientSecret string
}

// AddOIDCApplication creates an application entity in a project and attaches
// an OIDC configuration with a freshly generated client id and secret.
// Both events go into a single push so the app never exists half-configured.
func (c *Commands) AddOIDCApplication(ctx context.Context, orgID, projectID, name string, redirectURIs []string) (*OIDCApp, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxProjectNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-App10", "application name must be 1 to 200 characters")
	}
	if c.keeper == nil {
		return nil, domain.NewInternal(nil, "COMMAND-App11", "no encryption keeper configured")
	}

	project, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if project.State != domain.ProjectStateActive {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-App12", "project is not active")
	}

	appID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	clientID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	secret, err := crypto.GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	encrypted, err := c.keeper.Encrypt(ctx, []byte(secret))
	if err != nil {
		return nil, err
	}

	model := NewApplicationWriteModel(projectID, appID, orgID, project.InstanceID)
	model.ProcessedSequence = project.ProcessedSequence
	model.ChangeDate = project.ChangeDate

	creator := authz.PrincipalFromContext(ctx).UserID
	added := model.command(domain.ProjectAggregateType, domain.ApplicationAddedType, creator,
		&domain.ApplicationAddedPayload{AppID: appID, Name: name})
	config := model.command(domain.ProjectAggregateType, domain.ApplicationOIDCConfigAddedType, creator,
		&domain.ApplicationOIDCConfigAddedPayload{
			AppID:        appID,
			ClientID:     clientID,
			ClientSecret: encrypted,
			RedirectURIs: redirectURIs,
		})
	// Versions inside a push are assigned incrementally; only the first
	// command of the batch carries the precondition.
	config.ExpectedVersion = nil

	if err := c.pushAppendAndReduce(ctx, model, added, config); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&model.WriteModel)
	details.ID = appID
	return &OIDCApp{
		ObjectDetails: details,
		AppID:         appID,
		ClientID:      clientID,
		ClientSecret:  secret,
	}, nil
}

// ChangeApplication renames an application entity.
func (c *Commands) ChangeApplication(ctx context.Context, orgID, projectID, appID, name string) (*domain.ObjectDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxProjectNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-App20", "application name must be 1 to 200 characters")
	}
	model, err := c.existingApplication(ctx, orgID, projectID, appID)
	if err != nil {
		return nil, err
	}
	if model.Name == name {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ApplicationChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.ApplicationChangedPayload{AppID: appID, Name: name},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// RemoveApplication removes an application entity from its project.
func (c *Commands) RemoveApplication(ctx context.Context, orgID, projectID, appID string) (*domain.ObjectDetails, error) {
	model, err := c.existingApplication(ctx, orgID, projectID, appID)
	if err != nil {
		return nil, err
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ApplicationRemovedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.ApplicationRemovedPayload{AppID: appID},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// RegenerateClientSecret replaces the OIDC client secret of an application
// and returns the new plain secret once.
func (c *Commands) RegenerateClientSecret(ctx context.Context, orgID, projectID, appID string) (*OIDCApp, error) {
	if c.keeper == nil {
		return nil, domain.NewInternal(nil, "COMMAND-App30", "no encryption keeper configured")
	}
	model, err := c.existingApplication(ctx, orgID, projectID, appID)
	if err != nil {
		return nil, err
	}
	if !model.HasOIDC {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-App31", "application has no oidc configuration")
	}

	secret, err := crypto.GenerateClientSecret()
	if err != nil {
		return nil, err
	}
	encrypted, err := c.keeper.Encrypt(ctx, []byte(secret))
	if err != nil {
		return nil, err
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ApplicationOIDCConfigAddedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.ApplicationOIDCConfigAddedPayload{
			AppID:        appID,
			ClientID:     model.ClientID,
			ClientSecret: encrypted,
		},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&model.WriteModel)
	details.ID = appID
	return &OIDCApp{
		ObjectDetails: details,
		AppID:         appID,
		ClientID:      model.ClientID,
		ClientSecret:  secret,
	}, nil
}

func (c *Commands) existingApplication(ctx context.Context, orgID, projectID, appID string) (*ApplicationWriteModel, error) {
	if orgID == "" || projectID == "" || appID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-App01", "org, project and app id required")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}

	model := NewApplicationWriteModel(projectID, appID, orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if model.AppState != domain.AppStateActive {
		return nil, domain.NewNotFound(nil, "COMMAND-App02", "application not found")
	}
	return model, nil
}
