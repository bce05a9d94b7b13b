package eventstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plaenen/iamcore/pkg/domain"
)

// fakeRepo records pushes and fabricates events without a database.
type fakeRepo struct {
	pos    uint64
	pushed [][]*domain.Command
}

func (f *fakeRepo) Push(_ context.Context, commands []*domain.Command) ([]*domain.Event, error) {
	f.pos++
	f.pushed = append(f.pushed, commands)
	events := make([]*domain.Event, len(commands))
	for i, cmd := range commands {
		events[i] = &domain.Event{
			EventType:     cmd.EventType,
			AggregateType: cmd.AggregateType,
			AggregateID:   cmd.AggregateID,
			InstanceID:    cmd.InstanceID,
			Position:      domain.Position{Pos: f.pos, InTxOrder: uint32(i)},
		}
	}
	return events, nil
}

func (f *fakeRepo) Filter(context.Context, *SearchQuery) ([]*domain.Event, error) {
	return nil, nil
}

func (f *fakeRepo) EventsAfterPosition(context.Context, domain.Position, []string, []string, uint32) ([]*domain.Event, error) {
	return nil, nil
}

func (f *fakeRepo) LatestPosition(context.Context, string) (domain.Position, error) {
	return domain.Position{Pos: f.pos}, nil
}

func (f *fakeRepo) Health(context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

func TestEventstore(t *testing.T) {
	ctx := context.Background()

	t.Run("PushWithoutCommandsFails", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		_, err := es.Push(ctx)
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})

	t.Run("FilterRequiresInstance", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		_, err := es.Filter(ctx, NewSearchQueryBuilder(""))
		require.Error(t, err)
		assert.True(t, domain.IsInvalidArgument(err))
	})

	t.Run("SubscriberReceivesMatchingEvents", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		sub := es.Subscribe(SubscriptionFilter{AggregateTypes: []string{"org"}})
		defer sub.Unsubscribe()

		_, err := es.Push(ctx,
			&domain.Command{InstanceID: "inst-1", AggregateType: "org", AggregateID: "org-1", EventType: "org.added"},
			&domain.Command{InstanceID: "inst-1", AggregateType: "user", AggregateID: "user-1", EventType: "user.human.added"},
		)
		require.NoError(t, err)

		select {
		case event := <-sub.Events:
			assert.Equal(t, "org.added", event.EventType)
		case <-time.After(time.Second):
			t.Fatal("expected a notification")
		}

		select {
		case event := <-sub.Events:
			t.Fatalf("unexpected second notification: %s", event.EventType)
		default:
		}
	})

	t.Run("SlowSubscriberDoesNotBlockPush", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		sub := es.Subscribe(SubscriptionFilter{})
		defer sub.Unsubscribe()

		// Overflow the buffer without draining; pushes must not block.
		done := make(chan struct{})
		go func() {
			defer close(done)
			for i := 0; i < subscriptionBuffer*2; i++ {
				_, err := es.Push(ctx, &domain.Command{
					InstanceID: "inst-1", AggregateType: "org", AggregateID: "org-1", EventType: "org.changed",
				})
				if err != nil {
					t.Error(err)
					return
				}
			}
		}()

		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("push blocked on a slow subscriber")
		}
	})

	t.Run("UnsubscribeIsIdempotent", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		sub := es.Subscribe(SubscriptionFilter{})
		sub.Unsubscribe()
		sub.Unsubscribe()

		_, ok := <-sub.Events
		assert.False(t, ok, "channel must be closed after unsubscribe")
	})

	t.Run("CloseClosesSubscriptions", func(t *testing.T) {
		es := NewEventstore(&fakeRepo{})
		sub := es.Subscribe(SubscriptionFilter{})
		require.NoError(t, es.Close())

		_, ok := <-sub.Events
		assert.False(t, ok)
	})
}
