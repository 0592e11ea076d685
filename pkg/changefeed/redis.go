package changefeed

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "notifications:changed:"

// RedisBus fans change signals out to every instance sharing the Redis server.
type RedisBus struct {
	rdb *redis.Client
}

func NewRedisBus(rdb *redis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func (b *RedisBus) Publish(ctx context.Context, recipientID string) error {
	if err := b.rdb.Publish(ctx, channelPrefix+recipientID, "1").Err(); err != nil {
		return fmt.Errorf("failed to publish change for %s: %w", recipientID, err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, recipientID string) (<-chan struct{}, error) {
	pubsub := b.rdb.Subscribe(ctx, channelPrefix+recipientID)
	// Wait for the subscription confirmation so no publish after return is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to changes for %s: %w", recipientID, err)
	}

	messages := pubsub.Channel()
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				signal(out)
			}
		}
	}()
	return out, nil
}

func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
