package halcyon

import (
	"context"

	"github.com/halcyon-dev/halcyon/discord"
	"github.com/halcyon-dev/halcyon/halcyonjson"
)

// Producer publishes every dispatch frame to an external broker or cache.
// Publishing happens off the gateway read loop; a slow or failing producer
// never stalls the connection.
type Producer interface {
	Type() string
	Publish(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error
	Close() error
}

// ProducerEvent is the envelope written to the broker.
type ProducerEvent struct {
	*discord.GatewayPayload

	Metadata EventMetadata `json:"__metadata"`
}

// EventMetadata identifies the client and shard an event originated from.
type EventMetadata struct {
	Version    string   `json:"v"`
	Identifier string   `json:"identifier"`
	Shard      [2]int32 `json:"shard"`
}

func marshalProducerEvent(shard *Shard, msg *discord.GatewayPayload) ([]byte, error) {
	return halcyonjson.Marshal(ProducerEvent{
		GatewayPayload: msg,
		Metadata: EventMetadata{
			Version:    Version,
			Identifier: shard.client.config.Identifier,
			Shard:      [2]int32{shard.shardID, shard.session.ShardCount()},
		},
	})
}
