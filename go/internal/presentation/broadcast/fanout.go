package broadcast

import (
	"context"
	"errors"
	"fmt"
)

// Fanout publishes to several transports and subscribes on all of them.
// The operator host uses it to reach browser presenters through the
// gateway hub and headless presenters through NATS at the same time.
type Fanout struct {
	transports []Transport
}

func NewFanout(transports ...Transport) *Fanout {
	return &Fanout{transports: transports}
}

// Publish tries every transport and joins their errors.
func (f *Fanout) Publish(ctx context.Context, topic string, payload []byte) error {
	var errs []error
	for i, t := range f.transports {
		if err := t.Publish(ctx, topic, payload); err != nil {
			errs = append(errs, fmt.Errorf("transport %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Fanout) Subscribe(topic string, handler Handler) (Subscription, error) {
	subs := make([]Subscription, 0, len(f.transports))
	for _, t := range f.transports {
		sub, err := t.Subscribe(topic, handler)
		if err != nil {
			for _, s := range subs {
				_ = s.Unsubscribe()
			}
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subscriptionFunc(func() error {
		var errs []error
		for _, s := range subs {
			errs = append(errs, s.Unsubscribe())
		}
		return errors.Join(errs...)
	}), nil
}

func (f *Fanout) Close() error {
	var errs []error
	for _, t := range f.transports {
		errs = append(errs, t.Close())
	}
	return errors.Join(errs...)
}
