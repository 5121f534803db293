package halcyon

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/halcyon-dev/halcyon/discord"
)

// RedisProducerConfig configures a redis pub/sub producer.
type RedisProducerConfig struct {
	Address  string
	Password string
	DB       int

	// Channel events are published on.
	Channel string
}

// RedisProducer publishes events to a redis channel.
type RedisProducer struct {
	client  *redis.Client
	channel string
}

func NewRedisProducer(ctx context.Context, config RedisProducerConfig) (*RedisProducer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisProducer{
		client:  client,
		channel: config.Channel,
	}, nil
}

func (p *RedisProducer) Type() string {
	return "redis"
}

func (p *RedisProducer) Publish(ctx context.Context, shard *Shard, msg *discord.GatewayPayload) error {
	data, err := marshalProducerEvent(shard, msg)
	if err != nil {
		return err
	}

	return p.client.Publish(ctx, p.channel, data).Err()
}

func (p *RedisProducer) Close() error {
	return p.client.Close()
}
