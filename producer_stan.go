package halcyon

import (
	"context"
	"fmt"

	"github.com/halcyon-dev/halcyon/discord"
	stan "github.com/nats-io/stan.go"
)

// STANProducerConfig configures a NATS Streaming producer.
type STANProducerConfig struct {
	Address   string
	ClusterID string
	ClientID  string
	Subject   string
}

// STANProducer publishes events to a NATS Streaming channel.
type STANProducer struct {
	conn    stan.Conn
	subject string
}

func NewSTANProducer(config STANProducerConfig) (*STANProducer, error) {
	conn, err := stan.Connect(config.ClusterID, config.ClientID, stan.NatsURL(config.Address))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to stan: %w", err)
	}

	return &STANProducer{
		conn:    conn,
		subject: config.Subject,
	}, nil
}

func (p *STANProducer) Type() string {
	return "stan"
}

func (p *STANProducer) Publish(_ context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	data, err := marshalProducerEvent(shard, msg)
	if err != nil {
		return err
	}

	return p.conn.Publish(p.subject, data)
}

func (p *STANProducer) Close() error {
	return p.conn.Close()
}
