package broadcast

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketConfig configures a receive-only client of the gateway's
// presenter websocket.
type WebSocketConfig struct {
	// URL of the presenter endpoint, e.g. ws://localhost:8080/ws/present.
	URL              string
	Channel          string
	ReconnectWait    time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
	// OnReconnect runs after every successful dial except the first.
	// Messages sent while disconnected are lost, so presenters reload here.
	OnReconnect func()
}

func DefaultWebSocketConfig() WebSocketConfig {
	return WebSocketConfig{
		URL:              "ws://localhost:8080/ws/present",
		Channel:          DefaultChannel,
		ReconnectWait:    2 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   1 << 20,
	}
}

// WebSocketClient receives broadcasts relayed by the gateway. Frames are
// delivered to subscribers of the configured channel; it cannot publish.
type WebSocketClient struct {
	cfg    WebSocketConfig
	dialer *websocket.Dialer

	mu     sync.Mutex
	subs   map[*wsSub]struct{}
	conn   *websocket.Conn
	closed bool

	start  sync.Once
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type wsSub struct {
	topic   string
	handler Handler
}

// NewWebSocketClient returns an idle client. The first Subscribe starts
// the connection, which is kept alive with reconnects until Close, so the
// gateway's greeting always reaches a subscriber.
func NewWebSocketClient(cfg WebSocketConfig) *WebSocketClient {
	def := DefaultWebSocketConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.ReconnectWait <= 0 {
		cfg.ReconnectWait = def.ReconnectWait
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &WebSocketClient{
		cfg:    cfg,
		dialer: &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		subs:   make(map[*wsSub]struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	return c
}

func (c *WebSocketClient) endpoint() string {
	u, err := url.Parse(c.cfg.URL)
	if err != nil {
		return c.cfg.URL
	}
	q := u.Query()
	q.Set("channel", c.cfg.Channel)
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *WebSocketClient) Publish(ctx context.Context, topic string, payload []byte) error {
	return ErrPublishUnsupported
}

func (c *WebSocketClient) Subscribe(topic string, handler Handler) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	sub := &wsSub{topic: topic, handler: handler}
	c.subs[sub] = struct{}{}
	c.start.Do(func() {
		c.wg.Add(1)
		go c.run()
	})
	return subscriptionFunc(func() error {
		c.mu.Lock()
		delete(c.subs, sub)
		c.mu.Unlock()
		return nil
	}), nil
}

func (c *WebSocketClient) run() {
	defer c.wg.Done()

	endpoint := c.endpoint()
	connected := false
	for {
		conn, _, err := c.dialer.DialContext(c.ctx, endpoint, nil)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("url", endpoint).Msg("presenter websocket dial failed")
			if !c.wait() {
				return
			}
			continue
		}
		if !c.attach(conn) {
			conn.Close()
			return
		}

		if connected {
			log.Info().Str("url", endpoint).Msg("presenter websocket reconnected")
			if c.cfg.OnReconnect != nil {
				c.cfg.OnReconnect()
			}
		} else {
			log.Info().Str("url", endpoint).Msg("presenter websocket connected")
		}
		connected = true

		c.readLoop(conn)
		c.attach(nil)
		if !c.wait() {
			return
		}
	}
}

// attach records the live connection; false means the client was closed.
func (c *WebSocketClient) attach(conn *websocket.Conn) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.conn = conn
	return true
}

func (c *WebSocketClient) wait() bool {
	select {
	case <-c.ctx.Done():
		return false
	case <-time.After(c.cfg.ReconnectWait):
		return true
	}
}

func (c *WebSocketClient) readLoop(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Msg("presenter websocket closed")
			}
			return
		}
		c.deliver(message)
	}
}

func (c *WebSocketClient) deliver(payload []byte) {
	c.mu.Lock()
	handlers := make([]Handler, 0, len(c.subs))
	for sub := range c.subs {
		if sub.topic == c.cfg.Channel {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, h := range handlers {
		h(payload)
	}
}

func (c *WebSocketClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.subs = make(map[*wsSub]struct{})
	c.mu.Unlock()

	c.cancel()
	if conn != nil {
		conn.Close()
	}
	c.wg.Wait()
	return nil
}
