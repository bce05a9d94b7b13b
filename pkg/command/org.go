package command

import (
	"context"
	"strings"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

const maxOrgNameLength = 200

// AddOrg creates an organization. The org name is unique per instance.
func (c *Commands) AddOrg(ctx context.Context, name string) (*domain.ObjectDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxOrgNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org10", "org name must be 1 to 200 characters")
	}

	orgID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	return c.addOrgWithID(ctx, name, orgID)
}

func (c *Commands) addOrgWithID(ctx context.Context, name, orgID string) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, ""); err != nil {
		return nil, err
	}

	model := NewOrgWriteModel(orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if model.State != domain.OrgStateUnspecified {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Org11", "org already exists")
	}

	cmd := model.command(domain.OrgAggregateType, domain.OrgAddedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.OrgAddedPayload{Name: name},
		domain.NewAddUniqueConstraint(domain.OrgNameUniqueType, strings.ToLower(name), "org name already taken"),
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&model.WriteModel)
	details.ID = orgID
	return details, nil
}

// ChangeOrg renames an organization. Renaming to the current name is a no-op.
func (c *Commands) ChangeOrg(ctx context.Context, orgID, name string) (*domain.ObjectDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxOrgNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org20", "org name must be 1 to 200 characters")
	}
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org21", "org id missing")
	}

	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}

	model := NewOrgWriteModel(orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.State.Exists() {
		return nil, domain.NewNotFound(nil, "COMMAND-Org22", "org not found")
	}
	if model.Name == name {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.OrgAggregateType, domain.OrgChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.OrgChangedPayload{Name: name},
		domain.NewRemoveUniqueConstraint(domain.OrgNameUniqueType, strings.ToLower(model.Name)),
		domain.NewAddUniqueConstraint(domain.OrgNameUniqueType, strings.ToLower(name), "org name already taken"),
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// DeactivateOrg puts an org out of service; its data stays queryable.
func (c *Commands) DeactivateOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.changeOrgState(ctx, orgID, domain.OrgStateInactive)
}

// ReactivateOrg brings a deactivated org back.
func (c *Commands) ReactivateOrg(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	return c.changeOrgState(ctx, orgID, domain.OrgStateActive)
}

func (c *Commands) changeOrgState(ctx context.Context, orgID string, target domain.OrgState) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org30", "org id missing")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}

	model := NewOrgWriteModel(orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.State.Exists() {
		return nil, domain.NewNotFound(nil, "COMMAND-Org31", "org not found")
	}
	if model.State == target {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-Org32", "org already in requested state")
	}

	eventType := domain.OrgDeactivatedType
	if target == domain.OrgStateActive {
		eventType = domain.OrgReactivatedType
	}
	cmd := model.command(domain.OrgAggregateType, eventType, authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// AddOrgMember grants a user membership in an org.
// The user must exist; cross-aggregate checks load the user's write-model.
func (c *Commands) AddOrgMember(ctx context.Context, orgID, userID string, roles ...string) (*domain.ObjectDetails, error) {
	if orgID == "" || userID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org40", "org id and user id required")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}

	user := NewUserWriteModel(userID, orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, user); err != nil {
		return nil, err
	}
	if !user.State.Exists() {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-Org41", "user does not exist")
	}

	member := NewOrgMemberWriteModel(orgID, userID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, member); err != nil {
		return nil, err
	}
	if member.ProcessedSequence == 0 {
		return nil, domain.NewNotFound(nil, "COMMAND-Org42", "org not found")
	}
	if member.IsMember {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Org43", "user is already a member")
	}

	cmd := member.command(domain.OrgAggregateType, domain.OrgMemberAddedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.OrgMemberAddedPayload{UserID: userID, Roles: roles},
	)
	if err := c.pushAppendAndReduce(ctx, member, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&member.WriteModel), nil
}

// RemoveOrgMember revokes a user's membership.
func (c *Commands) RemoveOrgMember(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	if orgID == "" || userID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Org50", "org id and user id required")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, orgID); err != nil {
		return nil, err
	}

	member := NewOrgMemberWriteModel(orgID, userID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, member); err != nil {
		return nil, err
	}
	if !member.IsMember {
		return nil, domain.NewNotFound(nil, "COMMAND-Org51", "member not found")
	}

	cmd := member.command(domain.OrgAggregateType, domain.OrgMemberRemovedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.OrgMemberRemovedPayload{UserID: userID},
	)
	if err := c.pushAppendAndReduce(ctx, member, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&member.WriteModel), nil
}
