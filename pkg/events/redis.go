package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// DefaultChannel is the pub/sub channel used when none is configured.
const DefaultChannel = "stellar-pay:events"

// RedisEmitter publishes events as JSON on a Redis pub/sub channel.
type RedisEmitter struct {
	client  redis.UniversalClient
	channel string
}

func NewRedisEmitter(client redis.UniversalClient, channel string) *RedisEmitter {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisEmitter{client: client, channel: channel}
}

func (e *RedisEmitter) Emit(ctx context.Context, ev contracts.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := e.client.Publish(ctx, e.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}
