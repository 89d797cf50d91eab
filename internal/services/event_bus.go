package services

import (
	"context"
	"encoding/json"
	"fmt"

	"streak-backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisEventBus is a Notifier that publishes events over redis pub/sub so
// every instance can deliver them to its own WebSocket clients
type RedisEventBus struct {
	rdb     *redis.Client
	channel string
}

// NewRedisEventBus creates a bus on channel
func NewRedisEventBus(rdb *redis.Client, channel string) *RedisEventBus {
	if channel == "" {
		channel = "streak-events"
	}
	return &RedisEventBus{rdb: rdb, channel: channel}
}

// Notify publishes the event
func (b *RedisEventBus) Notify(ctx context.Context, ev models.StreakEvent) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.rdb.Publish(ctx, b.channel, raw).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Forward delivers every published event to local until ctx is done
func (b *RedisEventBus) Forward(ctx context.Context, local Notifier) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis subscribe: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev models.StreakEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Warn().Err(err).Msg("Dropping malformed event")
				continue
			}
			if err := local.Notify(ctx, ev); err != nil {
				log.Warn().Err(err).Str("type", ev.Type).Msg("Failed to deliver forwarded event")
			}
		}
	}
}
