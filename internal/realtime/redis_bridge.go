package realtime

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type envelope struct {
	Origin string `json:"origin"`
	Event  Event  `json:"event"`
}

// RedisBridge relays events between instances over a Redis pub/sub channel.
// Events are delivered to the local hub immediately; copies echoed back from
// Redis are skipped by origin.
type RedisBridge struct {
	client  *redis.Client
	channel string
	hub     *Hub
	origin  string
	logger  *zap.Logger
}

// NewRedisBridge constructs a bridge for hub.
func NewRedisBridge(client *redis.Client, channel string, hub *Hub, logger *zap.Logger) *RedisBridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBridge{client: client, channel: channel, hub: hub, origin: uuid.NewString(), logger: logger}
}

// Publish delivers locally and forwards to peers. Redis failures are logged.
func (b *RedisBridge) Publish(ctx context.Context, evt Event) {
	b.hub.Publish(ctx, evt)

	payload, err := json.Marshal(envelope{Origin: b.origin, Event: evt})
	if err != nil {
		b.logger.Warn("failed to encode realtime event", zap.String("event", evt.Name), zap.Error(err))
		return
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("failed to relay realtime event", zap.String("event", evt.Name), zap.Error(err))
	}
}

// Run consumes peer events until ctx is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("realtime subscription closed")
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("discarding malformed realtime event", zap.Error(err))
				continue
			}
			if env.Origin == b.origin {
				continue
			}
			b.hub.Publish(ctx, env.Event)
		}
	}
}
