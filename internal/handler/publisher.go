package handler

import "context"

// Publisher sends a payload on the message channel.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

type publisherKey struct{}

// ContextWithPublisher attaches the channel a handler may publish on. The
// orchestrator sets it per dispatch because the channel only lives for one
// cycle.
func ContextWithPublisher(ctx context.Context, p Publisher) context.Context {
	return context.WithValue(ctx, publisherKey{}, p)
}

// PublisherFromContext returns the publisher attached to ctx, if any.
func PublisherFromContext(ctx context.Context) (Publisher, bool) {
	p, ok := ctx.Value(publisherKey{}).(Publisher)
	return p, ok && p != nil
}
