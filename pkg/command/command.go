// Package command implements the write side: every state change is validated
// against a write-model reduced from the event stream and then appended to
// the eventstore in a single optimistic-concurrency push.
//
// Each handler follows the same steps: validate input, resolve ids,
// authorize, load write-models, check invariants, push events, reduce
// locally and return ObjectDetails.
package command

import (
	"context"
	"log/slog"

	"github.com/plaenen/iamcore/pkg/crypto"
	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	"github.com/plaenen/iamcore/pkg/id"
)

// PermissionChecker authorizes a principal for an action on a resource
// owner. Implementations live at the API boundary.
type PermissionChecker interface {
	// CheckPermission returns a permission_denied error when the caller in
	// ctx lacks the permission on resourceOwner. An empty resourceOwner
	// means instance scope.
	CheckPermission(ctx context.Context, permission, resourceOwner string) error
}

// Permissions the command layer checks. Role-to-permission mapping is the
// checker's concern.
const (
	PermissionOrgWrite     = "org.write"
	PermissionUserWrite    = "user.write"
	PermissionProjectWrite = "project.write"
	PermissionPolicyWrite  = "policy.write"
	PermissionIAMWrite     = "iam.write"
)

// Commands is the write-side entry point handed to API handlers.
// All collaborators are passed explicitly.
type Commands struct {
	eventstore      *eventstore.Eventstore
	idGenerator     *id.Generator
	checkPermission PermissionChecker
	keeper          *crypto.EncryptionKeeper
	logger          *slog.Logger
}

// NewCommands wires the write side. keeper may be nil when no command needs
// reversible secrets (e.g. in tests without app commands).
func NewCommands(
	es *eventstore.Eventstore,
	idGenerator *id.Generator,
	checkPermission PermissionChecker,
	keeper *crypto.EncryptionKeeper,
	logger *slog.Logger,
) *Commands {
	if logger == nil {
		logger = slog.Default()
	}
	return &Commands{
		eventstore:      es,
		idGenerator:     idGenerator,
		checkPermission: checkPermission,
		keeper:          keeper,
		logger:          logger,
	}
}

func (c *Commands) nextID() (string, error) {
	return c.idGenerator.NextString()
}

// pushAppendAndReduce appends the commands and folds the created events back
// into the write-model so callers return up-to-date details.
func (c *Commands) pushAppendAndReduce(ctx context.Context, model reducer, commands ...*domain.Command) error {
	events, err := c.eventstore.Push(ctx, commands...)
	if err != nil {
		return err
	}
	model.AppendEvents(events...)
	return model.Reduce()
}

type reducer interface {
	AppendEvents(events ...*domain.Event)
	Reduce() error
}

func writeModelToObjectDetails(wm *WriteModel) *domain.ObjectDetails {
	return &domain.ObjectDetails{
		Sequence:      wm.ProcessedSequence,
		EventDate:     wm.ChangeDate,
		ResourceOwner: wm.ResourceOwner,
	}
}
