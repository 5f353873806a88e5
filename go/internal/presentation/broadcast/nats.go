package broadcast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

// NATSConfig holds connection settings for a NATS server.
type NATSConfig struct {
	URL           string
	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "altarpro",
		MaxReconnects: -1, // Infinite reconnects
		ReconnectWait: 2 * time.Second,
	}
}

// ConnectNATS dials NATS with reconnect handling and logging.
func ConnectNATS(cfg NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NATS broadcasts over core NATS subjects, one subject per topic. Core
// NATS is fire-and-forget, which is exactly the delivery contract here.
type NATS struct {
	nc    *nats.Conn
	owned bool

	mu     sync.Mutex
	subs   map[*nats.Subscription]struct{}
	closed bool
}

// NewNATS uses an existing connection; Close leaves it open.
func NewNATS(nc *nats.Conn) *NATS {
	return &NATS{nc: nc, subs: make(map[*nats.Subscription]struct{})}
}

// DialNATS opens a dedicated connection that Close also closes.
func DialNATS(cfg NATSConfig) (*NATS, error) {
	nc, err := ConnectNATS(cfg)
	if err != nil {
		return nil, err
	}
	n := NewNATS(nc)
	n.owned = true
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected to NATS broadcast")
	return n, nil
}

func (n *NATS) Publish(ctx context.Context, topic string, payload []byte) error {
	n.mu.Lock()
	closed := n.closed
	n.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := n.nc.Publish(topic, payload); err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

func (n *NATS) Subscribe(topic string, handler Handler) (Subscription, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrClosed
	}

	sub, err := n.nc.Subscribe(topic, func(m *nats.Msg) {
		handler(m.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", topic, err)
	}
	n.subs[sub] = struct{}{}

	return subscriptionFunc(func() error {
		n.mu.Lock()
		delete(n.subs, sub)
		n.mu.Unlock()
		return sub.Unsubscribe()
	}), nil
}

func (n *NATS) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	subs := n.subs
	n.subs = nil
	n.mu.Unlock()

	for sub := range subs {
		if err := sub.Unsubscribe(); err != nil {
			log.Warn().Err(err).Str("subject", sub.Subject).Msg("failed to unsubscribe")
		}
	}
	if n.owned {
		n.nc.Close()
	}
	return nil
}
