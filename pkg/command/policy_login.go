package command

import (
	"context"
	"slices"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// LoginPolicy carries the input of the login policy commands.
type LoginPolicy struct {
	AllowUsernamePassword bool
	AllowRegister         bool
	AllowExternalIDP      bool
	ForceMFA              bool
}

func (p *LoginPolicy) payload() *domain.LoginPolicyPayload {
	return &domain.LoginPolicyPayload{
		AllowUsernamePassword: p.AllowUsernamePassword,
		AllowRegister:         p.AllowRegister,
		AllowExternalIDP:      p.AllowExternalIDP,
		ForceMFA:              p.ForceMFA,
	}
}

func (p *LoginPolicy) equals(wm *LoginPolicyWriteModel) bool {
	return wm.AllowUsernamePassword == p.AllowUsernamePassword &&
		wm.AllowRegister == p.AllowRegister &&
		wm.AllowExternalIDP == p.AllowExternalIDP &&
		wm.ForceMFA == p.ForceMFA
}

// AddLoginPolicy creates the org-scoped login policy.
func (c *Commands) AddLoginPolicy(ctx context.Context, orgID string, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn10", "org id missing")
	}
	return c.addLoginPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, policy)
}

// ChangeLoginPolicy updates the org-scoped login policy.
func (c *Commands) ChangeLoginPolicy(ctx context.Context, orgID string, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn20", "org id missing")
	}
	return c.changeLoginPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, policy)
}

// RemoveLoginPolicy drops the org override including its factors and IDP
// links; the org falls back to the instance default.
func (c *Commands) RemoveLoginPolicy(ctx context.Context, orgID string) (*domain.ObjectDetails, error) {
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn30", "org id missing")
	}
	model, err := c.existingLoginPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID)
	if err != nil {
		return nil, err
	}

	cmd := model.command(model.scope.aggregateType, model.scope.loginRemoved,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// AddDefaultLoginPolicy creates the instance-wide default login policy.
func (c *Commands) AddDefaultLoginPolicy(ctx context.Context, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.addLoginPolicy(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", policy)
}

// ChangeDefaultLoginPolicy updates the instance-wide default login policy.
func (c *Commands) ChangeDefaultLoginPolicy(ctx context.Context, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.changeLoginPolicy(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", policy)
}

// AddSecondFactorToLoginPolicy registers a second factor on the org policy.
func (c *Commands) AddSecondFactorToLoginPolicy(ctx context.Context, orgID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	return c.addSecondFactor(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, factor)
}

// RemoveSecondFactorFromLoginPolicy unregisters a second factor from the org
// policy.
func (c *Commands) RemoveSecondFactorFromLoginPolicy(ctx context.Context, orgID string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	return c.removeSecondFactor(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID, factor)
}

// AddSecondFactorToDefaultLoginPolicy registers a second factor on the
// instance default policy.
func (c *Commands) AddSecondFactorToDefaultLoginPolicy(ctx context.Context, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.addSecondFactor(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", factor)
}

// RemoveSecondFactorFromDefaultLoginPolicy unregisters a second factor from
// the instance default policy.
func (c *Commands) RemoveSecondFactorFromDefaultLoginPolicy(ctx context.Context, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	return c.removeSecondFactor(ctx, instancePolicyScope(instanceID), PermissionIAMWrite, "", factor)
}

// AddIDPProviderToLoginPolicy links an identity provider to the org policy.
func (c *Commands) AddIDPProviderToLoginPolicy(ctx context.Context, orgID, idpConfigID, name string) (*domain.ObjectDetails, error) {
	if idpConfigID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn40", "idp config id missing")
	}
	model, err := c.existingLoginPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID)
	if err != nil {
		return nil, err
	}
	if slices.Contains(model.IDPProviders, idpConfigID) {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Lgn41", "idp provider already linked")
	}

	cmd := model.command(model.scope.aggregateType, model.scope.idpProviderAdded,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.LoginPolicyIDPProviderPayload{IDPConfigID: idpConfigID, Name: name})
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// RemoveIDPProviderFromLoginPolicy unlinks an identity provider from the org
// policy.
func (c *Commands) RemoveIDPProviderFromLoginPolicy(ctx context.Context, orgID, idpConfigID string) (*domain.ObjectDetails, error) {
	if idpConfigID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn50", "idp config id missing")
	}
	model, err := c.existingLoginPolicy(ctx, orgPolicyScope(orgID), PermissionPolicyWrite, orgID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(model.IDPProviders, idpConfigID) {
		return nil, domain.NewNotFound(nil, "COMMAND-Lgn51", "idp provider not linked")
	}

	cmd := model.command(model.scope.aggregateType, model.scope.idpProviderRemoved,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.LoginPolicyIDPProviderPayload{IDPConfigID: idpConfigID})
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) addLoginPolicy(ctx context.Context, scope policyScope, permission, resourceOwner string, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, permission, resourceOwner); err != nil {
		return nil, err
	}

	model := NewLoginPolicyWriteModel(scope, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if model.Exists {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Lgn60", "login policy already exists")
	}

	cmd := model.command(scope.aggregateType, scope.loginAdded,
		authz.PrincipalFromContext(ctx).UserID, policy.payload())
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) changeLoginPolicy(ctx context.Context, scope policyScope, permission, resourceOwner string, policy *LoginPolicy) (*domain.ObjectDetails, error) {
	model, err := c.existingLoginPolicy(ctx, scope, permission, resourceOwner)
	if err != nil {
		return nil, err
	}
	if policy.equals(model) {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(scope.aggregateType, scope.loginChanged,
		authz.PrincipalFromContext(ctx).UserID, policy.payload())
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) addSecondFactor(ctx context.Context, scope policyScope, permission, resourceOwner string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	if factor == domain.SecondFactorTypeUnspecified {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn70", "second factor type missing")
	}
	model, err := c.existingLoginPolicy(ctx, scope, permission, resourceOwner)
	if err != nil {
		return nil, err
	}
	if slices.Contains(model.SecondFactors, factor) {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Lgn71", "second factor already registered")
	}

	cmd := model.command(scope.aggregateType, scope.secondFactorAdded,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.LoginPolicySecondFactorPayload{FactorType: factor})
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) removeSecondFactor(ctx context.Context, scope policyScope, permission, resourceOwner string, factor domain.SecondFactorType) (*domain.ObjectDetails, error) {
	if factor == domain.SecondFactorTypeUnspecified {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Lgn80", "second factor type missing")
	}
	model, err := c.existingLoginPolicy(ctx, scope, permission, resourceOwner)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(model.SecondFactors, factor) {
		return nil, domain.NewNotFound(nil, "COMMAND-Lgn81", "second factor not registered")
	}

	cmd := model.command(scope.aggregateType, scope.secondFactorRemoved,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.LoginPolicySecondFactorPayload{FactorType: factor})
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) existingLoginPolicy(ctx context.Context, scope policyScope, permission, resourceOwner string) (*LoginPolicyWriteModel, error) {
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, permission, resourceOwner); err != nil {
		return nil, err
	}

	model := NewLoginPolicyWriteModel(scope, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.Exists {
		return nil, domain.NewNotFound(nil, "COMMAND-Lgn90", "login policy not found")
	}
	return model, nil
}
