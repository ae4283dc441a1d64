package events

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// Publisher defines an interface for components that deliver task lifecycle
// events to subscribed clients. Publishing is fire-and-forget from the
// caller's perspective: there is no delivery acknowledgment, no persistence,
// and no replay. A client connected after emission misses the event and must
// rely on its next explicit fetch to converge.
type Publisher interface {
	// Publish serializes the event and delivers it on the owner's private
	// channel. Returns an error only when the event could not be handed to
	// the broker at all.
	Publish(ctx context.Context, ev Event) error
}

// RedisPublisher implements Publisher on top of Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger *slog.Logger
}

// Ensure RedisPublisher implements the Publisher interface
var _ Publisher = (*RedisPublisher)(nil)

// NewRedisPublisher creates a Publisher backed by the given Redis client.
func NewRedisPublisher(client *redis.Client, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}

	return &RedisPublisher{
		client: client,
		logger: logger.With("component", "redis_publisher"),
	}
}

// Publish implements Publisher. It serializes the event envelope and
// publishes it on the per-user channel. The number of receivers is not
// inspected: zero subscribers is a normal condition, not an error.
func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event %s: %w", ev.Name(), err)
	}

	channel := ev.Channel()
	if err := p.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s to %s: %w", ev.Name(), channel, err)
	}

	p.logger.Debug("event published",
		"event", ev.Name(),
		"channel", channel)
	return nil
}
