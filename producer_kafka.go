package halcyon

import (
	"context"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/segmentio/kafka-go"
)

// KafkaProducerConfig configures a kafka producer.
type KafkaProducerConfig struct {
	Brokers []string
	Topic   string

	// Balancer defaults to least-bytes when nil.
	Balancer kafka.Balancer
}

// KafkaProducer publishes events to a kafka topic, keyed by event type so a
// partition sees a stable stream per type.
type KafkaProducer struct {
	writer *kafka.Writer
}

func NewKafkaProducer(config KafkaProducerConfig) *KafkaProducer {
	balancer := config.Balancer
	if balancer == nil {
		balancer = &kafka.LeastBytes{}
	}

	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(config.Brokers...),
			Topic:    config.Topic,
			Balancer: balancer,
		},
	}
}

func (p *KafkaProducer) Type() string {
	return "kafka"
}

func (p *KafkaProducer) Publish(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	data, err := marshalProducerEvent(shard, msg)
	if err != nil {
		return err
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.Type),
		Value: data,
	})
}

func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
