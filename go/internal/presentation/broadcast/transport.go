// Package broadcast carries presentation state changes from the operator to
// every presenter that is currently listening. Delivery is fire-and-forget
// and at-most-once; presenters recover anything they miss from storage.
package broadcast

import (
	"context"
	"errors"
)

// DefaultChannel is the well-known channel every window of the app shares.
const DefaultChannel = "altarpro-presenter"

var (
	// ErrClosed is returned by operations on a closed transport.
	ErrClosed = errors.New("broadcast transport closed")
	// ErrPublishUnsupported is returned by receive-only transports.
	ErrPublishUnsupported = errors.New("transport does not publish")
)

// Handler receives one raw message payload.
type Handler func(payload []byte)

// Subscription is released with Unsubscribe; handlers are not called after
// it returns.
type Subscription interface {
	Unsubscribe() error
}

// Transport is a topic-scoped publish/subscribe channel.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(topic string, handler Handler) (Subscription, error)
	Close() error
}

type subscriptionFunc func() error

func (f subscriptionFunc) Unsubscribe() error { return f() }
