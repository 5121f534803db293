package halcyon

import (
	"context"
	"fmt"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/nats-io/nats.go"
)

// JetStreamProducerConfig configures a NATS JetStream producer.
type JetStreamProducerConfig struct {
	Address string
	Subject string
}

// JetStreamProducer publishes events to a JetStream subject.
type JetStreamProducer struct {
	conn    *nats.Conn
	js      nats.JetStreamContext
	subject string
}

func NewJetStreamProducer(config JetStreamProducerConfig) (*JetStreamProducer, error) {
	conn, err := nats.Connect(config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	return &JetStreamProducer{
		conn:    conn,
		js:      js,
		subject: config.Subject,
	}, nil
}

func (p *JetStreamProducer) Type() string {
	return "jetstream"
}

func (p *JetStreamProducer) Publish(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	data, err := marshalProducerEvent(shard, msg)
	if err != nil {
		return err
	}

	_, err = p.js.Publish(p.subject, data, nats.Context(ctx))

	return err
}

func (p *JetStreamProducer) Close() error {
	p.conn.Close()

	return nil
}
