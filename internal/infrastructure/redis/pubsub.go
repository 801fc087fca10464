package redisinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// envelope is the wire shape carried on every pub/sub topic: the event name
// plus its opaque JSON payload. Subscribers filter by event name.
type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Broker is a realtime pub/sub provider backed by Redis channels. Delivery is
// at-least-once from the consumer's point of view (the same logical event may
// arrive on more than one subscribed topic), so callers must deduplicate.
type Broker struct {
	client *redis.Client
}

func NewBroker(client *redis.Client) *Broker {
	return &Broker{client: client}
}

// Channel is one open subscription. Close stops the receive loop and
// unsubscribes from the topic.
type Channel struct {
	pubsub *redis.PubSub
	cancel context.CancelFunc
}

func (c *Channel) Close() error {
	c.cancel()
	return c.pubsub.Close()
}

// Subscribe opens a subscription on topic and invokes onEvent with the raw
// payload of every message whose event name matches. onError is invoked at
// most once, when the receive loop dies for a reason other than Close. The
// returned closer is the channel handle; closing it stops delivery.
func (b *Broker) Subscribe(ctx context.Context, topic, event string, onEvent func(payload []byte), onError func(err error)) (io.Closer, error) {
	pubsub := b.client.Subscribe(ctx, topic)
	// Force the subscription to be established before returning.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	ch := &Channel{pubsub: pubsub, cancel: cancel}

	go func() {
		for {
			msg, err := pubsub.ReceiveMessage(loopCtx)
			if err != nil {
				if loopCtx.Err() != nil {
					return // closed by caller
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				slog.Warn("dropping malformed realtime message", "topic", topic, "err", err)
				continue
			}
			if env.Event != event {
				continue
			}
			onEvent(env.Payload)
		}
	}()

	return ch, nil
}

// Publish sends an event with the given payload to everyone subscribed to
// the topic.
func (b *Broker) Publish(ctx context.Context, topic, event string, payload []byte) error {
	data, err := json.Marshal(envelope{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.client.Publish(ctx, topic, data).Err()
}
