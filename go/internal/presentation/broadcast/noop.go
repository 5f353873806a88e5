package broadcast

import "context"

// Noop drops every publish and never delivers. It stands in for a transport
// that could not be constructed so operator mutations still persist.
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, payload []byte) error { return nil }

func (Noop) Subscribe(topic string, handler Handler) (Subscription, error) {
	return subscriptionFunc(func() error { return nil }), nil
}

func (Noop) Close() error { return nil }
