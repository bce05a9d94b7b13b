package eventstore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/plaenen/iamcore/pkg/domain"
)

// subscriptionBuffer is the channel capacity per subscriber. When the buffer
// is full the notification is dropped; the subscriber polls and catches up.
const subscriptionBuffer = 64

// SubscriptionFilter narrows which appended events a subscriber is told about.
// Empty slices match everything.
type SubscriptionFilter struct {
	AggregateTypes []string
	EventTypes     []string
}

func (f SubscriptionFilter) matches(event *domain.Event) bool {
	if len(f.AggregateTypes) > 0 && !contains(f.AggregateTypes, event.AggregateType) {
		return false
	}
	if len(f.EventTypes) > 0 && !contains(f.EventTypes, event.EventType) {
		return false
	}
	return true
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}

// Subscription is an in-process stream of newly appended events.
type Subscription struct {
	// Events receives appended events matching the filter, best effort.
	Events <-chan *domain.Event

	id     string
	ch     chan *domain.Event
	filter SubscriptionFilter
	parent *notifier
	once   sync.Once
}

// Unsubscribe stops delivery and closes the Events channel.
// It is safe to call multiple times.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.parent.remove(s.id)
	})
}

// notifier fans appended events out to subscribers without ever blocking
// the publisher.
type notifier struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	closed bool
}

func newNotifier() *notifier {
	return &notifier{subs: make(map[string]*Subscription)}
}

func (n *notifier) subscribe(filter SubscriptionFilter) *Subscription {
	ch := make(chan *domain.Event, subscriptionBuffer)
	sub := &Subscription{
		Events: ch,
		id:     uuid.NewString(),
		ch:     ch,
		filter: filter,
		parent: n,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		close(ch)
		return sub
	}
	n.subs[sub.id] = sub
	return sub
}

func (n *notifier) remove(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if sub, ok := n.subs[id]; ok {
		delete(n.subs, id)
		close(sub.ch)
	}
}

func (n *notifier) notify(events []*domain.Event) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, sub := range n.subs {
		for _, event := range events {
			if !sub.filter.matches(event) {
				continue
			}
			select {
			case sub.ch <- event:
			default:
				// Subscriber is slow; it will poll and catch up.
			}
		}
	}
}

func (n *notifier) close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	for id, sub := range n.subs {
		delete(n.subs, id)
		close(sub.ch)
	}
}
