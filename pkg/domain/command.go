package domain

// Command is a write intent. It has the shape of an Event minus the fields
// the eventstore assigns on append (id, version, position, created_at).
type Command struct {
	// InstanceID is the top-level tenant the command belongs to.
	InstanceID string

	// Owner is the resource owner the resulting event is scoped to.
	Owner string

	// AggregateType and AggregateID identify the aggregate to append to.
	AggregateType string
	AggregateID   string

	// EventType is the dotted type name of the resulting event.
	EventType string

	// Revision is the payload schema version (>= 1).
	Revision uint8

	// Payload is marshaled to JSON by the eventstore. Nil means no payload.
	Payload any

	// Creator is the id of the principal issuing the command.
	Creator string

	// ExpectedVersion, when set, is an optimistic concurrency precondition:
	// the append fails if the aggregate's current version differs.
	ExpectedVersion *uint64

	// UniqueConstraints are claimed or released in the same transaction
	// as the event.
	UniqueConstraints []*UniqueConstraint
}

// ExpectVersion sets the optimistic concurrency precondition.
func (c *Command) ExpectVersion(v uint64) *Command {
	c.ExpectedVersion = &v
	return c
}

// UniqueConstraintAction defines what happens to a unique constraint row.
type UniqueConstraintAction int8

const (
	// UniqueConstraintAdd claims the (type, field) pair for the aggregate.
	UniqueConstraintAdd UniqueConstraintAction = iota
	// UniqueConstraintRemove releases a previously claimed pair.
	UniqueConstraintRemove
	// UniqueConstraintRemoveAll releases every claim of the instance.
	// Used when an instance is removed.
	UniqueConstraintRemoveAll
)

// UniqueConstraint enforces cross-aggregate uniqueness that cannot be
// expressed by version checks alone (e.g. a username claim).
type UniqueConstraint struct {
	// UniqueType is the namespace of the claim, e.g. "usernames".
	UniqueType string

	// UniqueField is the claimed value inside the namespace.
	UniqueField string

	// Action decides whether the claim is added or released.
	Action UniqueConstraintAction

	// ErrorMessage is a human readable message returned on violation.
	ErrorMessage string
}

// NewAddUniqueConstraint claims a value.
func NewAddUniqueConstraint(uniqueType, uniqueField, errMessage string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:   uniqueType,
		UniqueField:  uniqueField,
		Action:       UniqueConstraintAdd,
		ErrorMessage: errMessage,
	}
}

// NewRemoveUniqueConstraint releases a value.
func NewRemoveUniqueConstraint(uniqueType, uniqueField string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:  uniqueType,
		UniqueField: uniqueField,
		Action:      UniqueConstraintRemove,
	}
}
