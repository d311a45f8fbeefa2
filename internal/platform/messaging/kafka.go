package messaging

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaPublisher writes each queue as a Kafka topic keyed by patient.
type KafkaPublisher struct {
	client *kgo.Client
	logger zerolog.Logger
}

func NewKafkaPublisher(brokers []string, clientID string, logger zerolog.Logger) (*KafkaPublisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("at least one kafka broker is required")
	}
	opts := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	}
	if clientID != "" {
		opts = append(opts, kgo.ClientID(clientID))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &KafkaPublisher{
		client: client,
		logger: logger.With().Str("component", "kafka").Logger(),
	}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, queue string, payload []byte) error {
	rec := &kgo.Record{Topic: queue, Value: payload}
	if key := patientKey(payload); key != "" {
		rec.Key = []byte(key)
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("kafka produce %s: %w", queue, err)
	}
	return nil
}

func (p *KafkaPublisher) Connected() bool {
	ctx, cancel := context.WithTimeout(context.Background(), healthTimeout)
	defer cancel()
	return p.client.Ping(ctx) == nil
}

func (p *KafkaPublisher) Close() error {
	p.client.Close()
	return nil
}
