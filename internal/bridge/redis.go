package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/redis/go-redis/v9"

	"collab-board/internal/models"
	"collab-board/pkg/logger"
)

// RedisBridge carries replicated events over Redis pub/sub.
type RedisBridge struct {
	client *redis.Client

	mu   sync.Mutex
	subs []*redis.PubSub
}

func NewRedisBridge(client *redis.Client) *RedisBridge {
	return &RedisBridge{client: client}
}

func (b *RedisBridge) Publish(ctx context.Context, channel string, ev models.ReplicatedEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Failed to marshal replicated event: %v", err)
		return
	}
	if err := b.client.Publish(ctx, channel, data).Err(); err != nil {
		logger.Error("Publish to %s failed: %v", channel, err)
	}
}

func (b *RedisBridge) Subscribe(ctx context.Context, channel string, handler Handler) {
	pubsub := b.client.Subscribe(ctx, channel)

	b.mu.Lock()
	b.subs = append(b.subs, pubsub)
	b.mu.Unlock()

	go func() {
		for msg := range pubsub.Channel() {
			var ev models.ReplicatedEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				logger.Error("Malformed event on %s: %v", channel, err)
				continue
			}
			handler(ev)
		}
	}()
}

func (b *RedisBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, sub := range b.subs {
		if err := sub.Close(); err != nil {
			logger.Error("Error closing subscription: %v", err)
		}
	}
	b.subs = nil
	return nil
}
