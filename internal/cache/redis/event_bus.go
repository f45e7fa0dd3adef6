package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/oneset-labs/onesetd/internal/domain"
)

// EventBus implements domain.EventBus using Redis Pub/Sub. It fans dashboard
// events (price updates, agent activity, session lifecycle) out to every
// connected server instance.
type EventBus struct {
	rdb *redis.Client
}

// NewEventBus creates an EventBus backed by the given Client.
func NewEventBus(c *Client) *EventBus {
	return &EventBus{rdb: c.Underlying()}
}

// Publish sends a raw payload to a Pub/Sub channel.
func (eb *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := eb.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe subscribes to one or more channels and returns a read-only
// message channel plus a cancel function. The message channel is closed when
// cancel is called or the context ends.
func (eb *EventBus) Subscribe(ctx context.Context, channels ...string) (<-chan domain.BusMessage, func(), error) {
	pubsub := eb.rdb.Subscribe(ctx, channels...)

	// Verify the subscription is established before handing it out.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("redis: subscribe %v: %w", channels, err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	out := make(chan domain.BusMessage, 128)

	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- domain.BusMessage{Channel: msg.Channel, Payload: []byte(msg.Payload)}:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
