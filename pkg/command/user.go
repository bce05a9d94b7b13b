package command

import (
	"context"
	"strings"

	"github.com/asaskevich/govalidator"
	passwordvalidator "github.com/wagslane/go-password-validator"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/unicode/norm"

	"github.com/plaenen/iamcore/pkg/authz"
	"github.com/plaenen/iamcore/pkg/domain"
)

const (
	maxUsernameLength = 200

	// minPasswordEntropy matches roughly a 10 character mixed-class password.
	minPasswordEntropy = 50
)

// AddHumanRequest carries the input for AddHumanUser.
type AddHumanRequest struct {
	OrgID     string
	Username  string
	FirstName string
	LastName  string
	Email     string
	// Password is optional; when set it is validated and stored hashed.
	Password string
}

// AddHumanUser registers a human user in an org. The username is claimed
// unique within the org (case-insensitive, NFC-normalized).
func (c *Commands) AddHumanUser(ctx context.Context, req *AddHumanRequest) (*domain.ObjectDetails, error) {
	username := normalizeUsername(req.Username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User10", "username must be 1 to 200 characters")
	}
	if req.OrgID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User11", "org id missing")
	}
	if req.Email != "" && !validEmail(req.Email) {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User12", "email is not valid")
	}

	var encodedHash string
	if req.Password != "" {
		if err := passwordEntropy(req.Password); err != nil {
			return nil, err
		}
		hash, err := hashPassword(req.Password)
		if err != nil {
			return nil, err
		}
		encodedHash = hash
	}

	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionUserWrite, req.OrgID); err != nil {
		return nil, err
	}

	org := NewOrgWriteModel(req.OrgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, org); err != nil {
		return nil, err
	}
	if !org.State.Exists() {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-User15", "org does not exist")
	}

	userID, err := c.nextID()
	if err != nil {
		return nil, err
	}
	model := NewUserWriteModel(userID, req.OrgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}

	cmd := model.command(domain.UserAggregateType, domain.HumanAddedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.HumanAddedPayload{
			Username:    username,
			FirstName:   req.FirstName,
			LastName:    req.LastName,
			Email:       req.Email,
			EncodedHash: encodedHash,
		},
		domain.NewAddUniqueConstraint(domain.UsernameUniqueType,
			domain.UsernameUniqueField(req.OrgID, usernameClaim(username)),
			"username already taken"),
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}

	details := writeModelToObjectDetails(&model.WriteModel)
	details.ID = userID
	return details, nil
}

// ChangeProfile updates first and last name. Unchanged values are a no-op.
func (c *Commands) ChangeProfile(ctx context.Context, orgID, userID, firstName, lastName string) (*domain.ObjectDetails, error) {
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if model.FirstName == firstName && model.LastName == lastName {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.UserAggregateType, domain.HumanProfileChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.HumanProfileChangedPayload{FirstName: firstName, LastName: lastName},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// ChangeEmail updates the user's email address.
func (c *Commands) ChangeEmail(ctx context.Context, orgID, userID, email string) (*domain.ObjectDetails, error) {
	if !govalidator.IsEmail(email) {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User20", "email is not valid")
	}
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if model.Email == email {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.UserAggregateType, domain.HumanEmailChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.HumanEmailChangedPayload{Email: email},
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// ChangeUsername renames the user, swapping the username claim atomically
// with the event.
func (c *Commands) ChangeUsername(ctx context.Context, orgID, userID, username string) (*domain.ObjectDetails, error) {
	username = normalizeUsername(username)
	if username == "" || len(username) > maxUsernameLength {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User30", "username must be 1 to 200 characters")
	}
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if model.Username == username {
		return writeModelToObjectDetails(&model.WriteModel), nil
	}

	cmd := model.command(domain.UserAggregateType, domain.UserUsernameChangedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.UsernameChangedPayload{Username: username},
		domain.NewRemoveUniqueConstraint(domain.UsernameUniqueType,
			domain.UsernameUniqueField(model.ResourceOwner, usernameClaim(model.Username))),
		domain.NewAddUniqueConstraint(domain.UsernameUniqueType,
			domain.UsernameUniqueField(model.ResourceOwner, usernameClaim(username)),
			"username already taken"),
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// LockUser blocks the user from any use until unlocked.
func (c *Commands) LockUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if model.State == domain.UserStateLocked {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-User40", "user already locked")
	}

	cmd := model.command(domain.UserAggregateType, domain.UserLockedType,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// UnlockUser lifts a lock.
func (c *Commands) UnlockUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}
	if model.State != domain.UserStateLocked {
		return nil, domain.NewFailedPrecondition(nil, "COMMAND-User41", "user is not locked")
	}

	cmd := model.command(domain.UserAggregateType, domain.UserUnlockedType,
		authz.PrincipalFromContext(ctx).UserID, nil)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// RemoveUser removes the user and releases the username claim so the name
// can be reused.
func (c *Commands) RemoveUser(ctx context.Context, orgID, userID string) (*domain.ObjectDetails, error) {
	model, err := c.existingUser(ctx, orgID, userID)
	if err != nil {
		return nil, err
	}

	cmd := model.command(domain.UserAggregateType, domain.UserRemovedType,
		authz.PrincipalFromContext(ctx).UserID,
		&domain.UserRemovedPayload{Username: model.Username},
		domain.NewRemoveUniqueConstraint(domain.UsernameUniqueType,
			domain.UsernameUniqueField(model.ResourceOwner, usernameClaim(model.Username))),
	)
	if err := c.pushAppendAndReduce(ctx, model, cmd); err != nil {
		return nil, err
	}
	return writeModelToObjectDetails(&model.WriteModel), nil
}

// existingUser loads the user write-model and runs the shared preamble of all
// user mutations: input validation, authorization and an existence check.
func (c *Commands) existingUser(ctx context.Context, orgID, userID string) (*UserWriteModel, error) {
	if orgID == "" || userID == "" {
		return nil, domain.NewInvalidArgument(nil, "COMMAND-User01", "org id and user id required")
	}
	instanceID, err := authz.InstanceIDFromContext(ctx)
	if err != nil {
		return nil, err
	}
	if err := c.checkPermission.CheckPermission(ctx, PermissionUserWrite, orgID); err != nil {
		return nil, err
	}

	model := NewUserWriteModel(userID, orgID, instanceID)
	if err := c.eventstore.FilterToReducer(ctx, model); err != nil {
		return nil, err
	}
	if !model.State.Exists() {
		return nil, domain.NewNotFound(nil, "COMMAND-User02", "user not found")
	}
	return model, nil
}

// normalizeUsername trims whitespace and applies NFC so visually equal names
// compare equal.
func normalizeUsername(username string) string {
	return norm.NFC.String(strings.TrimSpace(username))
}

// usernameClaim lowers the username for the uniqueness claim; the stored
// username keeps its case.
func usernameClaim(username string) string {
	return strings.ToLower(username)
}

func validEmail(email string) bool {
	return govalidator.IsEmail(email)
}

func passwordEntropy(password string) error {
	if err := passwordvalidator.Validate(password, minPasswordEntropy); err != nil {
		return domain.NewInvalidArgument(err, "COMMAND-User13", "password is too weak")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", domain.NewInternal(err, "COMMAND-User14", "hashing password failed")
	}
	return string(hash), nil
}
