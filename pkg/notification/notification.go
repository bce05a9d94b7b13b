// Package notification forwards committed events to an external broker.
// The forwarder is an ordinary projection: its checkpoint tracks how far the
// stream has been published, so consumers get every event at least once, in
// position order.
package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/projection"
)

// Publisher sends one message keyed for partition ordering.
// *KafkaPublisher is the production implementation.
type Publisher interface {
	Publish(ctx context.Context, key, value []byte) error
}

// Envelope is the wire format of a forwarded event.
type Envelope struct {
	ID               string          `json:"id"`
	EventType        string          `json:"eventType"`
	AggregateType    string          `json:"aggregateType"`
	AggregateID      string          `json:"aggregateId"`
	AggregateVersion uint64          `json:"aggregateVersion"`
	InstanceID       string          `json:"instanceId"`
	Owner            string          `json:"owner"`
	Creator          string          `json:"creator"`
	CreatedAt        time.Time       `json:"createdAt"`
	Position         domain.Position `json:"position"`
	Payload          json.RawMessage `json:"payload,omitempty"`
}

// Handler is the forwarder projection.
type Handler struct {
	publisher Publisher
}

// NewHandler wraps a publisher into a projection handler.
func NewHandler(publisher Publisher) *Handler {
	return &Handler{publisher: publisher}
}

func (*Handler) Name() string { return "notifications" }

// AggregateTypes is empty: every committed event is forwarded.
func (*Handler) AggregateTypes() []string { return nil }

func (*Handler) Schema() []string { return nil }

func (h *Handler) Reduce(event *domain.Event) ([]projection.Statement, error) {
	value, err := json.Marshal(Envelope{
		ID:               event.ID,
		EventType:        event.EventType,
		AggregateType:    event.AggregateType,
		AggregateID:      event.AggregateID,
		AggregateVersion: event.AggregateVersion,
		InstanceID:       event.InstanceID,
		Owner:            event.Owner,
		Creator:          event.Creator,
		CreatedAt:        event.CreatedAt,
		Position:         event.Position,
		Payload:          json.RawMessage(event.Payload),
	})
	if err != nil {
		return nil, domain.NewInternal(err, "NOTIF-mEnv", "unable to encode event envelope")
	}

	// Key by instance and aggregate so one aggregate's events stay ordered
	// within a partition.
	key := []byte(event.InstanceID + "/" + event.AggregateType + "/" + event.AggregateID)
	return []projection.Statement{{
		Exec: func(ctx context.Context) error {
			return h.publisher.Publish(ctx, key, value)
		},
	}}, nil
}
