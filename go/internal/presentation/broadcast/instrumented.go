package broadcast

import (
	"context"
	"time"

	"github.com/altarpro/altarpro/go/internal/presentation/metrics"
)

// Instrumented wraps a Transport with metrics collection
type Instrumented struct {
	transport Transport
	metrics   metrics.Collector
}

func NewInstrumented(transport Transport, collector metrics.Collector) *Instrumented {
	return &Instrumented{
		transport: transport,
		metrics:   collector,
	}
}

func (i *Instrumented) Publish(ctx context.Context, topic string, payload []byte) error {
	start := time.Now()

	err := i.transport.Publish(ctx, topic, payload)

	i.metrics.RecordPublish(string(PeekKind(payload)), err == nil, time.Since(start))
	return err
}

func (i *Instrumented) Subscribe(topic string, handler Handler) (Subscription, error) {
	return i.transport.Subscribe(topic, func(payload []byte) {
		i.metrics.RecordReceive(string(PeekKind(payload)))
		handler(payload)
	})
}

func (i *Instrumented) Close() error {
	return i.transport.Close()
}
