package worker

import (
	"context"
	"encoding/json"

	"docuexplore/internal/logger"
	"docuexplore/internal/redis"
)

const redisInvalidateChannel = "docuexplore:session:invalidate"

type invalidateMessage struct {
	SessionID string `json:"session_id"`
	Origin    string `json:"origin"`
	Ended     bool   `json:"ended,omitempty"`
}

type invalidationBus struct {
	client *redis.Client
	log    *logger.Logger
}

func newInvalidationBus(client *redis.Client, log *logger.Logger) *invalidationBus {
	return &invalidationBus{client: client, log: logger.OrNop(log)}
}

// startListener subscribes to the invalidation channel until ctx is done.
func (b *invalidationBus) startListener(ctx context.Context, handler func(invalidateMessage)) {
	if b == nil || b.client == nil || handler == nil {
		return
	}
	pubsub, err := b.client.Subscribe(ctx, redisInvalidateChannel)
	if err != nil {
		b.log.Warn("session invalidation subscribe failed", "error", err)
		return
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var inv invalidateMessage
				if err := json.Unmarshal([]byte(msg.Payload), &inv); err != nil {
					b.log.Warn("session invalidation decode failed", "error", err)
					continue
				}
				handler(inv)
			}
		}
	}()
}

func (b *invalidationBus) publish(msg invalidateMessage) {
	if b == nil || b.client == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		b.log.Warn("session invalidation marshal failed", "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), redisInvalidateChannel, payload); err != nil {
		b.log.Warn("session invalidation publish failed", "error", err)
	}
}
