package eventstore

import (
	"github.com/plaenen/iamcore/pkg/domain"
)

// SearchQueryBuilder assembles an eventstore filter.
// The instance id is mandatory; everything else narrows the result.
type SearchQueryBuilder struct {
	instanceID     string
	owner          string
	aggregateTypes []string
	aggregateIDs   []string
	eventTypes     []string
	positionAfter  domain.Position
	positionAtMost *domain.Position
	limit          uint64
	desc           bool
}

// NewSearchQueryBuilder creates a builder scoped to one instance.
func NewSearchQueryBuilder(instanceID string) *SearchQueryBuilder {
	return &SearchQueryBuilder{instanceID: instanceID}
}

// AggregateTypes filters by aggregate type.
func (b *SearchQueryBuilder) AggregateTypes(types ...string) *SearchQueryBuilder {
	b.aggregateTypes = append(b.aggregateTypes, types...)
	return b
}

// AggregateIDs filters by aggregate id.
func (b *SearchQueryBuilder) AggregateIDs(ids ...string) *SearchQueryBuilder {
	b.aggregateIDs = append(b.aggregateIDs, ids...)
	return b
}

// EventTypes filters by event type.
func (b *SearchQueryBuilder) EventTypes(types ...string) *SearchQueryBuilder {
	b.eventTypes = append(b.eventTypes, types...)
	return b
}

// Owner filters by resource owner.
func (b *SearchQueryBuilder) Owner(owner string) *SearchQueryBuilder {
	b.owner = owner
	return b
}

// PositionAfter restricts to events with position strictly greater than pos.
func (b *SearchQueryBuilder) PositionAfter(pos domain.Position) *SearchQueryBuilder {
	b.positionAfter = pos
	return b
}

// PositionAtMost restricts to events with position less than or equal to pos.
func (b *SearchQueryBuilder) PositionAtMost(pos domain.Position) *SearchQueryBuilder {
	b.positionAtMost = &pos
	return b
}

// Limit caps the number of returned events.
func (b *SearchQueryBuilder) Limit(limit uint64) *SearchQueryBuilder {
	b.limit = limit
	return b
}

// OrderDesc returns events newest first.
func (b *SearchQueryBuilder) OrderDesc() *SearchQueryBuilder {
	b.desc = true
	return b
}

// build validates the builder into an executable query.
func (b *SearchQueryBuilder) build() (*SearchQuery, error) {
	if b.instanceID == "" {
		return nil, domain.NewInvalidArgument(nil, "EVENT-0aB3c", "instance id missing in event query")
	}
	return &SearchQuery{
		InstanceID:     b.instanceID,
		Owner:          b.owner,
		AggregateTypes: b.aggregateTypes,
		AggregateIDs:   b.aggregateIDs,
		EventTypes:     b.eventTypes,
		PositionAfter:  b.positionAfter,
		PositionAtMost: b.positionAtMost,
		Limit:          b.limit,
		Desc:           b.desc,
	}, nil
}

// SearchQuery is the validated form of a SearchQueryBuilder,
// consumed by Repository implementations.
type SearchQuery struct {
	InstanceID     string
	Owner          string
	AggregateTypes []string
	AggregateIDs   []string
	EventTypes     []string
	PositionAfter  domain.Position
	PositionAtMost *domain.Position
	Limit          uint64
	Desc           bool
}
