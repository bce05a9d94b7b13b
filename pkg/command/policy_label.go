package command

import (
	"context"

	"github.com/asaskevich/govalidator"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// LabelPolicy carries the branding input of the label policy commands.
type LabelPolicy struct {
	PrimaryColor        string
	BackgroundColor     string
	HideLoginNameSuffix bool
}

func (p *LabelPolicy) validate() error {
	if p.PrimaryColor != "" && !govalidator.IsHexcolor(p.PrimaryColor) {
		return domain.NewInvalidArgument(nil, "COMMAND-Lbl01", "primary color is not a hex color")
	}
	if p.BackgroundColor != "" && !govalidator.IsHexcolor(p.BackgroundColor) {
		return domain.NewInvalidArgument(nil, "COMMAND-Lbl02", "background color is not a hex color")
	}
	return nil
}

func (p *LabelPolicy) payload() *domain.LabelPolicyPayload {
	return &domain.LabelPolicyPayload{
		PrimaryColor:        p.PrimaryColor,
		BackgroundColor:     p.BackgroundColor,
		HideLoginNameSuffix: p.HideLoginNameSuffix,
	}
}

func (p *LabelPolicy) equals(wm *LabelPolicyWriteModel) bool {
	return wm.PrimaryColor == p.PrimaryColor &&
		wm.BackgroundColor == p.BackgroundColor &&
		wm.HideLoginNameSuffix == p.HideLoginNameSuffix
}

// AddLabelPolicy creates the org-scoped label policy, overriding the
// instance default for that org.
func (c *Commands) AddLabelPolicy(ctx context.Context, orgID string, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lbl10", "org id missing")
	}
	return c.addLabelPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, policy)
}

// ChangeLabelPolicy updates the org-scoped label policy.
func (c *Commands) ChangeLabelPolicy(ctx context.Context, orgID string, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lbl20", "org id missing")
	}
	return c.changeLabelPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, policy)
}

// RemoveLabelPolicy drops the org override; the org falls back to the
// instance default.
func (c *Commands) RemoveLabelPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lbl30", "org id missing")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionPolicyWrite, orgID); err != nil {
		return nil, err
	}

	model := NewLabelPolicyWriteModel(orgPolicyScope(orgID), instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.Exists {
		return nil, domain.NewNotFound(nil, "COMMAND-Lbl31", "label policy not found")
	}

	cmd := model.command(model.scope.aggregateType, model.scope.labelRemoved,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// AddDefaultLabelPolicy creates the instance-wide default label policy.
func (c *Commands) AddDefaultLabelPolicy(ctx context.Context, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.addLabelPolicy(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", policy)
}

// ChangeDefaultLabelPolicy updates the instance-wide default label policy.
func (c *Commands) ChangeDefaultLabelPolicy(ctx context.Context, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.changeLabelPolicy(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", policy)
}

func (c *Commands) addLabelPolicy(ctx context.Context, scope policyScope, permission, resourceOwner string, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, permission, resourceOwner); err != nil {
		return nil, err
	}

	model := NewLabelPolicyWriteModel(scope, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if model.Exists {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Lbl40", "label policy already exists")
	}

	cmd := model.command(scope.aggregateType, scope.labelAdded,
		authz.PrincipalFromContext(ctx).UserID, policy.payload())
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) changeLabelPolicy(ctx context.Context, scope policyScope, permission, resourceOwner string, policy *LabelPolicy) (*domain.ObjectDetails, error) {
	if err := policy.validate(); err != nil {
		return nil, err
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, permission, resourceOwner); err != nil {
		return nil, err
	}

	model := NewLabelPolicyWriteModel(scope, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.Exists {
		return nil, domain.NewNotFound(nil, "COMMAND-Lbl50", "label policy not found")
	}
	if policy.equals(model) {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(scope.aggregateType, scope.labelChanged,
		authz.PrincipalFromContext(ctx).UserID, policy.payload())
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}
