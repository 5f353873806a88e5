package broadcast

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// maxNotifyPayload is the largest payload Postgres accepts for NOTIFY.
const maxNotifyPayload = 7999

var ErrPayloadTooLarge = errors.New("payload exceeds NOTIFY limit")

type PGNotifyConfig struct {
	DatabaseURL  string
	PingInterval time.Duration
	// OnReconnect runs when the listener reconnects or a publisher signals
	// a payload too large for NOTIFY. Either way messages were missed, so
	// presenters reload from storage here.
	OnReconnect func()
}

func DefaultPGNotifyConfig() PGNotifyConfig {
	return PGNotifyConfig{PingInterval: 90 * time.Second}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// notifySource is the part of pq.Listener the dispatch loop needs.
type notifySource interface {
	Listen(channel string) error
	Unlisten(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// PGNotify broadcasts with Postgres NOTIFY and receives through LISTEN.
// Topics map directly to channel names.
type PGNotify struct {
	db       execer
	listener notifySource
	cfg      PGNotifyConfig

	mu       sync.Mutex
	handlers map[string]map[*pgSub]struct{}
	closed   bool

	done chan struct{}
	wg   sync.WaitGroup
}

type pgSub struct {
	handler Handler
}

// NewPGNotify opens a listener connection on cfg.DatabaseURL and publishes
// through db.
func NewPGNotify(db *sql.DB, cfg PGNotifyConfig) *PGNotify {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	return newPGNotify(db, l, cfg)
}

func newPGNotify(db execer, l notifySource, cfg PGNotifyConfig) *PGNotify {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPGNotifyConfig().PingInterval
	}
	p := &PGNotify{
		db:       db,
		listener: l,
		cfg:      cfg,
		handlers: make(map[string]map[*pgSub]struct{}),
		done:     make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p
}

func (p *PGNotify) Publish(ctx context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if len(payload) > maxNotifyPayload {
		// An empty notification tells listeners to reload instead.
		if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, '')`, topic); err != nil {
			log.Error().Err(err).Str("channel", topic).Msg("failed to send reload notification")
		}
		return fmt.Errorf("notify %s: %w (%d bytes)", topic, ErrPayloadTooLarge, len(payload))
	}

	if _, err := p.db.ExecContext(ctx, `SELECT pg_notify($1, $2)`, topic, string(payload)); err != nil {
		return fmt.Errorf("failed to notify %s: %w", topic, err)
	}
	return nil
}

func (p *PGNotify) Subscribe(topic string, handler Handler) (Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrClosed
	}

	if len(p.handlers[topic]) == 0 {
		if err := p.listener.Listen(topic); err != nil && !errors.Is(err, pq.ErrChannelAlreadyOpen) {
			return nil, fmt.Errorf("failed to listen to channel: %w", err)
		}
		log.Info().Str("channel", topic).Msg("listening for notifications")
		p.handlers[topic] = make(map[*pgSub]struct{})
	}
	sub := &pgSub{handler: handler}
	p.handlers[topic][sub] = struct{}{}

	return subscriptionFunc(func() error {
		p.mu.Lock()
		defer p.mu.Unlock()
		subs, ok := p.handlers[topic]
		if !ok {
			return nil
		}
		delete(subs, sub)
		if len(subs) == 0 {
			delete(p.handlers, topic)
			if !p.closed {
				return p.listener.Unlisten(topic)
			}
		}
		return nil
	}), nil
}

func (p *PGNotify) run() {
	defer p.wg.Done()

	pingTicker := time.NewTicker(p.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := p.listener.NotificationChannel()
	for {
		select {
		case <-p.done:
			return
		case note, ok := <-notes:
			if !ok {
				return
			}
			if note == nil {
				// nil notification means the connection was re-established
				log.Warn().Msg("listener reconnected, notifications may have been missed")
				p.resync()
				continue
			}
			if note.Extra == "" {
				log.Info().Str("channel", note.Channel).Msg("reload requested by publisher")
				p.resync()
				continue
			}
			p.dispatch(note.Channel, []byte(note.Extra))
		case <-pingTicker.C:
			if err := p.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (p *PGNotify) resync() {
	if p.cfg.OnReconnect != nil {
		p.cfg.OnReconnect()
	}
}

func (p *PGNotify) dispatch(channel string, payload []byte) {
	p.mu.Lock()
	handlers := make([]Handler, 0, len(p.handlers[channel]))
	for sub := range p.handlers[channel] {
		handlers = append(handlers, sub.handler)
	}
	p.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (p *PGNotify) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.handlers = make(map[string]map[*pgSub]struct{})
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()
	return p.listener.Close()
}
