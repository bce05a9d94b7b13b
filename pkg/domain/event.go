package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event is an immutable fact recorded in the eventstore.
// Events are the only source of truth; every read model is derived from them.
type Event struct {
	// ID is the unique identifier of this event.
	ID string

	// EventType is the dotted type name, e.g. "user.human.added".
	// New verbs are additive; old verbs are never re-purposed.
	EventType string

	// AggregateType is the type name of the aggregate (e.g. "org", "user").
	AggregateType string

	// AggregateID identifies the aggregate inside its instance.
	AggregateID string

	// AggregateVersion is the per-aggregate sequence, starting at 1 without gaps.
	AggregateVersion uint64

	// Revision is the schema version of the payload (>= 1).
	Revision uint8

	// Payload is the raw JSON payload. Unknown fields are preserved by the
	// store and ignored by handlers that do not know them.
	Payload []byte

	// Creator is the id of the principal that caused this event.
	Creator string

	// Owner is the resource owner (sub-tenant scope, typically an org id).
	Owner string

	// InstanceID is the top-level tenant.
	InstanceID string

	// CreatedAt is the wall clock commit time. Informational only;
	// ordering is defined by Position.
	CreatedAt time.Time

	// Position is the total per-instance order of this event.
	Position Position
}

// Unmarshal decodes the event payload into ptr.
// Events without a payload leave ptr untouched.
func (e *Event) Unmarshal(ptr any) error {
	if len(e.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Payload, ptr); err != nil {
		return NewInternal(err, "DOMAI-8fRlv", fmt.Sprintf("unable to unmarshal payload of %s", e.EventType))
	}
	return nil
}

// Position is the lexicographic global cursor of an event.
// Pos is the commit sequence; InTxOrder disambiguates events committed together.
type Position struct {
	Pos       uint64 `json:"pos"`
	InTxOrder uint32 `json:"inTxOrder"`
}

// Compare returns -1, 0 or 1 if p sorts before, equal to or after other.
func (p Position) Compare(other Position) int {
	switch {
	case p.Pos < other.Pos:
		return -1
	case p.Pos > other.Pos:
		return 1
	case p.InTxOrder < other.InTxOrder:
		return -1
	case p.InTxOrder > other.InTxOrder:
		return 1
	}
	return 0
}

// After reports whether p sorts strictly after other.
func (p Position) After(other Position) bool {
	return p.Compare(other) > 0
}

// IsZero reports whether p is the zero cursor (before every event).
func (p Position) IsZero() bool {
	return p.Pos == 0 && p.InTxOrder == 0
}

func (p Position) String() string {
	return fmt.Sprintf("%d.%d", p.Pos, p.InTxOrder)
}
