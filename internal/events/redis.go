package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/bracket-engine/internal/models"
)

// RedisBus publishes events on a Redis channel so every node's hub can
// stream them
type RedisBus struct {
	client  *redis.Client
	channel string
	hub     *Hub
}

// NewRedisBus creates a bus on channel that relays received events to hub
func NewRedisBus(client *redis.Client, channel string, hub *Hub) *RedisBus {
	return &RedisBus{client: client, channel: channel, hub: hub}
}

// Publish implements Publisher
func (b *RedisBus) Publish(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Run subscribes to the channel and relays messages until ctx is done
func (b *RedisBus) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}

	slog.Info("redis event bus subscribed", "channel", b.channel)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			slog.Info("redis event bus stopped")
			return nil
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("redis subscription %s closed", b.channel)
			}
			if err := b.hub.Relay([]byte(msg.Payload)); err != nil {
				slog.Warn("failed to relay event", "error", err)
			}
		}
	}
}
