// Package eventstore provides the append-only event log the whole system is
// built on: atomic appends with optimistic concurrency and unique constraints,
// filtered queries in total position order, and best-effort in-process
// subscriptions used to wake pollers.
package eventstore

import (
	"context"
	"time"

	"github.com/plaenen/iamcore/pkg/domain"
)

// Repository is the storage contract the eventstore delegates to.
// Implementations live in subpackages (see eventstore/sql).
type Repository interface {
	// Push appends all commands atomically and returns the created events.
	Push(ctx context.Context, commands []*domain.Command) ([]*domain.Event, error)

	// Filter returns events matching the query in ascending position order
	// (descending when the query says so).
	Filter(ctx context.Context, query *SearchQuery) ([]*domain.Event, error)

	// EventsAfterPosition returns up to limit events with a position strictly
	// greater than pos, across all instances, in ascending position order.
	// aggregateTypes and eventTypes narrow the result when non-empty.
	EventsAfterPosition(ctx context.Context, pos domain.Position, aggregateTypes, eventTypes []string, limit uint32) ([]*domain.Event, error)

	// LatestPosition returns the highest committed position. An empty
	// instanceID means the global tip.
	LatestPosition(ctx context.Context, instanceID string) (domain.Position, error)

	// Health reports whether the storage is reachable.
	Health(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}

// PushMonitor observes successful pushes. Implemented by the observability
// package; nil disables recording.
type PushMonitor interface {
	RecordPush(ctx context.Context, events int, duration time.Duration)
}

// Eventstore is the process-wide handle on the event log.
// It is passed explicitly to collaborators, never held as a hidden global.
type Eventstore struct {
	repo     Repository
	notifier *notifier
	monitor  PushMonitor
}

// Option configures an Eventstore.
type Option func(*Eventstore)

// WithPushMonitor records push counts and latency on every append.
func WithPushMonitor(m PushMonitor) Option {
	return func(es *Eventstore) { es.monitor = m }
}

// NewEventstore wraps a storage repository.
func NewEventstore(repo Repository, opts ...Option) *Eventstore {
	es := &Eventstore{
		repo:     repo,
		notifier: newNotifier(),
	}
	for _, opt := range opts {
		opt(es)
	}
	return es
}

// Push appends the commands atomically. On success the created events are
// broadcast to in-process subscribers; delivery is best effort and consumers
// must also poll.
func (es *Eventstore) Push(ctx context.Context, commands ...*domain.Command) ([]*domain.Event, error) {
	if len(commands) == 0 {
		return nil, domain.NewInvalidArgument(nil, "EVENT-fa2Kp", "no commands to push")
	}
	start := time.Now()
	events, err := es.repo.Push(ctx, commands)
	if err != nil {
		return nil, err
	}
	if es.monitor != nil {
		es.monitor.RecordPush(ctx, len(events), time.Since(start))
	}
	es.notifier.notify(events)
	return events, nil
}

// Filter returns the events matching the query.
func (es *Eventstore) Filter(ctx context.Context, query *SearchQueryBuilder) ([]*domain.Event, error) {
	sq, err := query.build()
	if err != nil {
		return nil, err
	}
	return es.repo.Filter(ctx, sq)
}

// FilterToReducer queries the events of r and reduces them into it.
// This is the load path of every write-model.
func (es *Eventstore) FilterToReducer(ctx context.Context, r QueryReducer) error {
	events, err := es.Filter(ctx, r.Query())
	if err != nil {
		return err
	}
	r.AppendEvents(events...)
	return r.Reduce()
}

// LatestEvent returns the newest event matching the query, or nil if none.
func (es *Eventstore) LatestEvent(ctx context.Context, query *SearchQueryBuilder) (*domain.Event, error) {
	events, err := es.Filter(ctx, query.OrderDesc().Limit(1))
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	return events[0], nil
}

// EventsAfterPosition is the projection drain primitive.
func (es *Eventstore) EventsAfterPosition(ctx context.Context, pos domain.Position, aggregateTypes, eventTypes []string, limit uint32) ([]*domain.Event, error) {
	return es.repo.EventsAfterPosition(ctx, pos, aggregateTypes, eventTypes, limit)
}

// LatestPosition returns the current tip of the log.
func (es *Eventstore) LatestPosition(ctx context.Context, instanceID string) (domain.Position, error) {
	return es.repo.LatestPosition(ctx, instanceID)
}

// Subscribe registers an in-process listener for newly appended events.
// The subscription is an optimization, not a delivery guarantee: a slow
// subscriber's notifications are dropped and it catches up by polling.
func (es *Eventstore) Subscribe(filter SubscriptionFilter) *Subscription {
	return es.notifier.subscribe(filter)
}

// Health reports whether the underlying storage is reachable.
func (es *Eventstore) Health(ctx context.Context) error {
	return es.repo.Health(ctx)
}

// Close shuts down subscriptions and the storage.
func (es *Eventstore) Close() error {
	es.notifier.close()
	return es.repo.Close()
}

// QueryReducer is implemented by write-models: the eventstore loads the
// events of Query and replays them through Reduce.
type QueryReducer interface {
	Query() *SearchQueryBuilder
	AppendEvents(events ...*domain.Event)
	Reduce() error
}
