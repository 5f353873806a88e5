package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// MemoryConfig sizes the per-subscriber delivery queue.
type MemoryConfig struct {
	QueueSize int
}

// DefaultMemoryConfig returns the queue size used by NewMemory.
func DefaultMemoryConfig() MemoryConfig {
	return MemoryConfig{QueueSize: 256}
}

// Memory fans messages out to subscribers inside one process. Each
// subscriber has its own queue drained by a goroutine, so a slow handler
// never blocks the publisher; when a queue is full the message is dropped.
type Memory struct {
	mu     sync.RWMutex
	topics map[string]map[*memorySub]struct{}
	config MemoryConfig
	closed bool
}

type memorySub struct {
	topic   string
	handler Handler
	queue   chan []byte
	done    chan struct{}
	once    sync.Once
}

func NewMemory() *Memory {
	return NewMemoryWithConfig(DefaultMemoryConfig())
}

func NewMemoryWithConfig(config MemoryConfig) *Memory {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultMemoryConfig().QueueSize
	}
	return &Memory{
		topics: make(map[string]map[*memorySub]struct{}),
		config: config,
	}
}

func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}

	for sub := range m.topics[topic] {
		select {
		case sub.queue <- payload:
		default:
			log.Warn().Str("topic", topic).Msg("subscriber queue full, dropping message")
		}
	}
	return nil
}

func (m *Memory) Subscribe(topic string, handler Handler) (Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}

	sub := &memorySub{
		topic:   topic,
		handler: handler,
		queue:   make(chan []byte, m.config.QueueSize),
		done:    make(chan struct{}),
	}
	if m.topics[topic] == nil {
		m.topics[topic] = make(map[*memorySub]struct{})
	}
	m.topics[topic][sub] = struct{}{}
	go sub.run()

	return subscriptionFunc(func() error {
		m.remove(sub)
		return nil
	}), nil
}

func (m *Memory) remove(sub *memorySub) {
	m.mu.Lock()
	if subs, ok := m.topics[sub.topic]; ok {
		delete(subs, sub)
		if len(subs) == 0 {
			delete(m.topics, sub.topic)
		}
	}
	m.mu.Unlock()
	sub.stop()
}

// Close stops every subscriber; later calls are no-ops.
func (m *Memory) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	topics := m.topics
	m.topics = make(map[string]map[*memorySub]struct{})
	m.mu.Unlock()

	for _, subs := range topics {
		for sub := range subs {
			sub.stop()
		}
	}
	return nil
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.done:
			return
		case payload := <-s.queue:
			select {
			case <-s.done:
				return
			default:
			}
			s.handler(payload)
		}
	}
}
