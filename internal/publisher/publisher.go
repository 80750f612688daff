package publisher

import "context"

// Handler receives messages for a subscribed topic.
type Handler func(topic string, payload []byte)

// Publisher publishes and subscribes to broker topics.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, h Handler) error
	Close() error
}
