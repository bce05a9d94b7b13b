package notification

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/plaenen/iamcore/pkg/domain"
)

// KafkaConfig configures the broker connection.
type KafkaConfig struct {
	// Brokers is the list of broker addresses (host:port).
	Brokers []string

	// Topic receives the event envelopes.
	Topic string

	// WriteTimeout bounds one write attempt. Defaults to 10s.
	WriteTimeout time.Duration
}

// KafkaPublisher publishes envelopes through a kafka-go writer. Retrying is
// left to the projection worker: a failed publish fails the batch and the
// checkpoint stays put.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher connects a writer with a key-hash balancer, so messages
// with the same key land on the same partition.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, domain.NewInvalidArgument(nil, "NOTIF-kBrk", "at least one broker required")
	}
	if cfg.Topic == "" {
		return nil, domain.NewInvalidArgument(nil, "NOTIF-kTpc", "topic required")
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequireAll,
		},
	}, nil
}

// Publish writes one message and waits for the broker acknowledgement.
func (p *KafkaPublisher) Publish(ctx context.Context, key, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		return domain.NewUnavailable(err, "NOTIF-kPub", "unable to publish event")
	}
	return nil
}

// Close releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
