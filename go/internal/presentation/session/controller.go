// Package session binds a state store to a broadcast transport for one
// window. The role chosen at construction decides the direction of
// propagation: an operator persists and broadcasts its own mutations, a
// presenter only applies what it receives.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/dock"
	"github.com/altarpro/altarpro/go/internal/presentation/metrics"
	"github.com/altarpro/altarpro/go/internal/presentation/state"
)

// Role is fixed for the lifetime of a controller.
type Role string

const (
	RoleOperator  Role = "operator"
	RolePresenter Role = "presenter"
)

var (
	ErrInvalidRole      = errors.New("invalid role")
	ErrNotOperator      = errors.New("operation requires the operator role")
	ErrNothingToPresent = errors.New("nothing to present")
)

// ParseRole accepts "operator" or "presenter".
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleOperator, RolePresenter:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
}

type Option func(*Controller)

// WithChannel overrides broadcast.DefaultChannel.
func WithChannel(name string) Option {
	return func(c *Controller) {
		if name != "" {
			c.channel = name
		}
	}
}

func WithMetrics(collector metrics.Collector) Option {
	return func(c *Controller) { c.metrics = collector }
}

// WithClock sets the clock driving the presenter dock.
func WithClock(clock clockwork.Clock) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller is one window's view of the shared presentation.
type Controller struct {
	id        string
	role      Role
	store     *state.Store
	transport broadcast.Transport
	channel   string
	metrics   metrics.Collector
	clock     clockwork.Clock
	dock      *dock.AutoHider

	// mu serializes mutations so broadcasts leave in call order.
	mu     sync.Mutex
	sub    broadcast.Subscription
	closed bool

	watchMu  sync.Mutex
	watchers map[int]func(state.Snapshot)
	nextID   int
}

// New creates a controller. A nil transport is treated as unavailable.
func New(role Role, store *state.Store, transport broadcast.Transport, opts ...Option) (*Controller, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, errors.New("session: nil store")
	}
	if transport == nil {
		transport = broadcast.Noop{}
	}

	c := &Controller{
		id:        uuid.NewString(),
		role:      role,
		store:     store,
		transport: transport,
		channel:   broadcast.DefaultChannel,
		metrics:   metrics.NoOp{},
		clock:     clockwork.NewRealClock(),
		watchers:  make(map[int]func(state.Snapshot)),
	}
	for _, opt := range opts {
		opt(c)
	}
	if role == RolePresenter {
		c.dock = dock.New(c.clock, func(visible bool) {
			log.Debug().Str("window_id", c.id).Bool("visible", visible).Msg("dock visibility changed")
		})
	}
	return c, nil
}

func (c *Controller) ID() string { return c.id }
func (c *Controller) Role() Role { return c.role }

// Start hydrates from storage. An operator then announces its full state so
// presenters that are already open catch up; a presenter subscribes and
// layers live messages over the hydrated state.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	c.store.Hydrate(ctx)
	snap := c.store.Snapshot()

	switch c.role {
	case RoleOperator:
		c.publishSettings(ctx, snap.Settings)
		c.publishDeck(ctx, snap.Deck)
		c.publishIndex(ctx, snap.RawIndex)

	case RolePresenter:
		c.dock.Configure(snap.Settings.ShowDock, snap.Settings.DockAutoHideSec)
		sub, err := c.transport.Subscribe(c.channel, c.handle)
		if err != nil {
			log.Warn().Err(err).Str("channel", c.channel).Msg("live updates unavailable, showing stored state only")
		} else {
			c.sub = sub
		}
	}
	c.mu.Unlock()

	log.Info().
		Str("window_id", c.id).
		Str("role", string(c.role)).
		Str("phase", string(snap.Phase())).
		Msg("presentation session started")

	c.notify(snap)
	return nil
}

// Reload re-hydrates from storage, recovering anything a presenter missed
// while its transport was down.
func (c *Controller) Reload(ctx context.Context) {
	c.mu.Lock()
	c.store.Hydrate(ctx)
	snap := c.store.Snapshot()
	if c.dock != nil {
		c.dock.Configure(snap.Settings.ShowDock, snap.Settings.DockAutoHideSec)
	}
	c.mu.Unlock()

	c.notify(snap)
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() state.Snapshot {
	return c.store.Snapshot()
}

// Watch registers fn to run after every state change. The returned func
// removes it.
func (c *Controller) Watch(fn func(state.Snapshot)) (cancel func()) {
	c.watchMu.Lock()
	defer c.watchMu.Unlock()
	id := c.nextID
	c.nextID++
	c.watchers[id] = fn
	return func() {
		c.watchMu.Lock()
		defer c.watchMu.Unlock()
		delete(c.watchers, id)
	}
}

func (c *Controller) notify(snap state.Snapshot) {
	c.watchMu.Lock()
	fns := make([]func(state.Snapshot), 0, len(c.watchers))
	for _, fn := range c.watchers {
		fns = append(fns, fn)
	}
	c.watchMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Activity records pointer or keyboard activity on a presenter.
func (c *Controller) Activity() {
	if c.dock != nil {
		c.dock.Activity()
	}
}

// DockVisible reports whether a presenter's dock is showing.
func (c *Controller) DockVisible() bool {
	return c.dock != nil && c.dock.Visible()
}

// Close stops listening and releases the transport.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sub := c.sub
	c.sub = nil
	c.mu.Unlock()

	var errs []error
	if sub != nil {
		errs = append(errs, sub.Unsubscribe())
	}
	if c.dock != nil {
		c.dock.Close()
	}
	errs = append(errs, c.transport.Close())
	return errors.Join(errs...)
}

// handle applies one received message on a presenter.
func (c *Controller) handle(payload []byte) {
	msg, err := broadcast.Decode(payload)
	if err != nil {
		c.metrics.RecordDropped(string(broadcast.PeekKind(payload)))
		log.Debug().Err(err).Str("window_id", c.id).Msg("ignoring broadcast message")
		return
	}

	ctx := context.Background()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	switch msg.Kind {
	case broadcast.KindSettings:
		s := c.store.UpdateSettings(ctx, msg.Settings)
		c.dock.Configure(s.ShowDock, s.DockAutoHideSec)
	case broadcast.KindDeck:
		c.store.SetDeck(ctx, msg.Deck)
	case broadcast.KindIndex:
		if msg.Index < 0 {
			c.mu.Unlock()
			c.metrics.RecordDropped(string(msg.Kind))
			log.Debug().Int("index", msg.Index).Msg("ignoring negative index")
			return
		}
		c.store.SetCurrentIndex(ctx, msg.Index)
	}
	snap := c.store.Snapshot()
	c.mu.Unlock()

	log.Debug().
		Str("window_id", c.id).
		Str("kind", string(msg.Kind)).
		Str("phase", string(snap.Phase())).
		Int("index", snap.Index()).
		Msg("applied broadcast")
	c.notify(snap)
}

func (c *Controller) publish(ctx context.Context, kind broadcast.Kind, payload []byte, err error) {
	if err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("failed to encode broadcast")
		return
	}
	if err := c.transport.Publish(ctx, c.channel, payload); err != nil {
		log.Warn().Err(err).Str("kind", string(kind)).Str("channel", c.channel).Msg("broadcast failed, state is persisted only")
	}
}

func (c *Controller) publishSettings(ctx context.Context, s state.Settings) {
	payload, err := broadcast.EncodeSettings(s)
	c.publish(ctx, broadcast.KindSettings, payload, err)
}

func (c *Controller) publishDeck(ctx context.Context, d state.Deck) {
	payload, err := broadcast.EncodeDeck(d)
	c.publish(ctx, broadcast.KindDeck, payload, err)
}

func (c *Controller) publishIndex(ctx context.Context, n int) {
	payload, err := broadcast.EncodeIndex(n)
	c.publish(ctx, broadcast.KindIndex, payload, err)
}
