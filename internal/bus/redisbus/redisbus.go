// Package redisbus implements the ephemeral broadcast bus on Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"openboard/internal/bus"
)

const channelPrefix = "board:"

// Bus relays messages through a Redis server so sessions on different hub
// instances see each other.
type Bus struct {
	client *redis.Client
	logger *slog.Logger
}

// New connects a client and verifies the server is reachable.
func New(ctx context.Context, addr string, logger *slog.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &Bus{client: client, logger: logger}, nil
}

// Close releases the client.
func (b *Bus) Close() error {
	return b.client.Close()
}

// Publish implements bus.Bus.
func (b *Bus) Publish(ctx context.Context, boardID string, m bus.Message) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := b.client.Publish(ctx, channelPrefix+boardID, payload).Err(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Subscribe implements bus.Bus.
func (b *Bus) Subscribe(ctx context.Context, boardID string, fn bus.Handler) (func(), error) {
	pubsub := b.client.Subscribe(ctx, channelPrefix+boardID)
	// Force the subscription to be established before returning, so no
	// message published after Subscribe is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	go func() {
		for raw := range pubsub.Channel() {
			var m bus.Message
			if err := json.Unmarshal([]byte(raw.Payload), &m); err != nil {
				if b.logger != nil {
					b.logger.Error("decode bus message", slog.String("error", err.Error()))
				}
				continue
			}
			fn(m)
		}
	}()

	return func() { _ = pubsub.Close() }, nil
}
