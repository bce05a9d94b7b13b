package domain

import "time"

// ObjectDetails is returned by every command so callers can observe the
// aggregate's sequence and owner without waiting for a projection.
type ObjectDetails struct {
	// Sequence is the aggregate version after the command.
	Sequence uint64

	// EventDate is the creation date of the last event of the command.
	EventDate time.Time

	// ResourceOwner is the owner the aggregate is scoped to.
	ResourceOwner string

	// ID is set by commands that create a new aggregate.
	ID string
}
