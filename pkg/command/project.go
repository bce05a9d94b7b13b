package command

import (
	"context"
	"strings"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

const maxProjectNameLength = 200

// AddProject creates a project owned by an org.
func (c *Commands) AddProject(ctx context.Context, orgID, name string) (*domain.ObjectDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxProjectNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Proj10", "project name must be 1 to 200 characters")
	}
	if orgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Proj11", "org id missing")
	}

	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}

	org := NewOrgWriteModel(orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, org); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-Proj12", "org does not exist")
	}

	projectID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	model := NewProjectWriteModel(projectID, orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ProjectAddedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.ProjectAddedPayload{Name: name},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&model.WriteModel)
	details.ID = projectID
	return details, nil
}

// ChangeProject renames a project.
func (c *Commands) ChangeProject(ctx context.Context, orgID, projectID, name string) (*domain.ObjectDetails, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxProjectNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Proj20", "project name must be 1 to 200 characters")
	}
	model, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if model.Name == name {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ProjectChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.ProjectChangedPayload{Name: name},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// DeactivateProject suspends a project.
func (c *Commands) DeactivateProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	model, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if model.State == domain.ProjectStateInactive {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-Proj30", "project already inactive")
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ProjectDeactivatedType,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// ReactivateProject resumes a suspended project.
func (c *Commands) ReactivateProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	model, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}
	if model.State != domain.ProjectStateInactive {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-Proj31", "project is not inactive")
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ProjectReactivatedType,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// RemoveProject removes a project together with its applications.
func (c *Commands) RemoveProject(ctx context.Context, orgID, projectID string) (*domain.ObjectDetails, error) {
	model, err := c.existingProject(ctx, orgID, projectID)
	if err != nil {
		return nil, err
	}

	cmd := model.command(domain.ProjectAggregateType, domain.ProjectRemovedType,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

func (c *Commands) existingProject(ctx context.Context, orgID, projectID string) (*ProjectWriteModel, error) {
	if orgID == "" || projectID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Proj01", "org id and project id required")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionProjectWrite, orgID); err != nil {
		return nil, err
	}

	model := NewProjectWriteModel(projectID, orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.State.Exists() {
		return nil, domain.NewNotFound(nil, "COMMAND-Proj02", "project not found")
	}
	return model, nil
}
