package command

import (
	"context"
	"strings"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

// OrgAdminRole is granted to the initial admin of a freshly set up org.
const OrgAdminRole = "ORG_OWNER"

// SetUpOrgRequest carries the input for SetUpOrg.
type SetUpOrgRequest struct {
	Name  string
	Admin AddHumanRequest
}

// SetUpOrgResult reports the ids created by SetUpOrg.
type SetUpOrgResult struct {
	*domain.ObjectDetails

	OrgID       string
	AdminUserID string
}

// SetUpOrg creates an org, its first human user and the admin membership in
// one atomic push: either the whole org setup exists or none of it does.
func (c *Commands) SetUpOrg(ctx context.Context, req *SetUpOrgRequest) (*SetUpOrgResult, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxOrgNameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Setup10", "org name must be 1 to 200 characters")
	}
	username := normalizeUsername(req.Admin.Username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Setup11", "username must be 1 to 200 characters")
	}

	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionOrgWrite, ""); err != nil {
		return nil, err
	}

	orgID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	userID, err := c.nextID()
	if err != nil {
		return nil, err
	}

	var encodedHash string
	if req.Admin.Password != "" {
		if err := passwordEntropy(req.Admin.Password); err != nil {
			return nil, err
		}
		encodedHash, err = hashPassword(req.Admin.Password)
		if err != nil {
			return nil, err
		}
	}
	if req.Admin.Email != "" && !validEmail(req.Admin.Email) {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-Setup12", "email is not valid")
	}

	org := NewOrgWriteModel(orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, org); err != nil {
		return nil, err
	}
	if org.State != domain.OrgStateUnspecified {
		return nil, domain.NewAlreadyExists(nil, "COMMAND-Setup13", "org already exists")
	}

	creator := authz.PrincipalFromContext(ctx).UserID

	orgAdded := org.command(domain.OrgAggregateType, domain.OrgAddedType, creator,
		&domain.OrgAddedPayload{Name: name},
		domain.NewAddUniqueConstraint(domain.OrgNameUniqueType, strings.ToLower(name), "org name already taken"),
	)

	user := NewUserWriteModel(userID, orgID, instanceID)
	userAdded := user.command(domain.UserAggregateType, domain.HumanAddedType, creator,
		&domain.HumanAddedPayload{
			Username:    username,
			FirstName:   req.Admin.FirstName,
			LastName:    req.Admin.LastName,
			Email:       req.Admin.Email,
			EncodedHash: encodedHash,
		},
		domain.NewAddUniqueConstraint(domain.UsernameUniqueType,
			domain.UsernameUniqueField(orgID, usernameClaim(username)),
			"username already taken"),
	)

	memberAdded := org.command(domain.OrgAggregateType, domain.OrgMemberAddedType, creator,
		&domain.OrgMemberAddedPayload{UserID: userID, Roles: []string{OrgAdminRole}})
	// Second command on the org aggregate within the same push; versions are
	// assigned incrementally so only the first carries the precondition.
	memberAdded.ExpectedVersion = nil

	events, err := c.eventstore.Push(ctx, orgAdded, userAdded, memberAdded)
	if err != nil {
		return nil, err
	}
	for _, event := range events {
		if event.AggregateType == domain.OrgAggregateType {
			org.AppendEvents(event)
		}
	}
	if err := org.Reduce(); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&org.WriteModel)
	details.ID = orgID
	return &SetUpOrgResult{
		ObjectDetails: details,
		OrgID:         orgID,
		AdminUserID:   userID,
	}, nil
}
