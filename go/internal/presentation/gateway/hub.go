// Package gateway serves presenter windows over websockets and exposes the
// operator controls and state snapshot over HTTP.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/altarpro/altarpro/go/internal/presentation/broadcast"
	"github.com/altarpro/altarpro/go/internal/presentation/metrics"
)

// Hub fans published messages out to the websocket connections joined to a
// channel. It implements broadcast.Transport so the operator can publish
// through it like any other transport.
type Hub struct {
	// Connection pools organized by channel
	rooms map[string]map[*Connection]bool
	mu    sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	metrics  metrics.Collector

	broadcastCh chan roomMessage
	local       *broadcast.Memory

	closeOnce sync.Once
	done      chan struct{}
}

// Connection is one presenter websocket.
type Connection struct {
	ID          string
	Channel     string
	Conn        *websocket.Conn
	Send        chan []byte
	ConnectedAt time.Time

	hub *Hub
}

// Greeter returns the frames a new connection receives before live traffic,
// so a presenter joining mid-service starts from the current state.
type Greeter func(channel string) [][]byte

// ConnectionConfig holds configuration for websocket connections.
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	QueueSize       int
	DefaultChannel  string
	CheckOrigin     func(r *http.Request) bool
	Greeting        Greeter
}

type roomMessage struct {
	channel string
	payload []byte
}

// DefaultConnectionConfig returns default websocket configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		SendBufferSize:  256,
		QueueSize:       1000,
		DefaultChannel:  broadcast.DefaultChannel,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewHub creates a hub. Run Start to begin delivering to connections.
func NewHub(config ConnectionConfig, collector metrics.Collector) *Hub {
	defaults := DefaultConnectionConfig()
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaults.SendBufferSize
	}
	if config.QueueSize <= 0 {
		config.QueueSize = defaults.QueueSize
	}
	if config.DefaultChannel == "" {
		config.DefaultChannel = defaults.DefaultChannel
	}
	if config.PingInterval <= 0 {
		config.PingInterval = defaults.PingInterval
	}
	if config.ReadTimeout <= 0 {
		config.ReadTimeout = defaults.ReadTimeout
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = defaults.MaxMessageSize
	}
	if collector == nil {
		collector = metrics.NoOp{}
	}

	return &Hub{
		rooms: make(map[string]map[*Connection]bool),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		metrics:     collector,
		broadcastCh: make(chan roomMessage, config.QueueSize),
		local:       broadcast.NewMemory(),
		done:        make(chan struct{}),
	}
}

// Start delivers queued messages until ctx is cancelled or the hub closes.
func (h *Hub) Start(ctx context.Context) {
	log.Info().Msg("presenter hub started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("presenter hub shutting down")
			return
		case <-h.done:
			return
		case msg := <-h.broadcastCh:
			h.handleBroadcast(msg)
		}
	}
}

// Publish queues payload for every connection on topic and hands it to
// in-process subscribers. A full queue drops the message.
func (h *Hub) Publish(ctx context.Context, topic string, payload []byte) error {
	select {
	case <-h.done:
		return broadcast.ErrClosed
	default:
	}

	if err := h.local.Publish(ctx, topic, payload); err != nil {
		return err
	}

	select {
	case h.broadcastCh <- roomMessage{channel: topic, payload: payload}:
	default:
		kind := broadcast.PeekKind(payload)
		h.metrics.RecordDropped(string(kind))
		log.Warn().Str("channel", topic).Str("kind", string(kind)).Msg("broadcast queue full, dropping message")
	}
	return nil
}

// Subscribe registers an in-process handler for topic.
func (h *Hub) Subscribe(topic string, handler broadcast.Handler) (broadcast.Subscription, error) {
	return h.local.Subscribe(topic, handler)
}

// Close disconnects every connection. Later publishes return ErrClosed.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		var conns []*Connection
		for _, room := range h.rooms {
			for conn := range room {
				conns = append(conns, conn)
			}
		}
		h.mu.Unlock()

		for _, conn := range conns {
			h.unregisterConnection(conn)
			conn.Conn.Close()
		}
	})
	return h.local.Close()
}

// UpgradeConnection upgrades an HTTP request to a presenter websocket on
// channel.
func (h *Hub) UpgradeConnection(w http.ResponseWriter, r *http.Request, channel string) error {
	select {
	case <-h.done:
		return broadcast.ErrClosed
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	connection := &Connection{
		ID:          uuid.New().String(),
		Channel:     channel,
		Conn:        conn,
		Send:        make(chan []byte, h.config.SendBufferSize),
		ConnectedAt: time.Now(),
		hub:         h,
	}

	h.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("channel", channel).
		Msg("presenter connected")

	return nil
}

// registerConnection adds conn to its room and queues the greeting under
// the write lock, so no live broadcast can reach conn ahead of it.
func (h *Hub) registerConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conn.Channel] == nil {
		h.rooms[conn.Channel] = make(map[*Connection]bool)
	}
	h.rooms[conn.Channel][conn] = true

	if h.config.Greeting != nil {
	greeting:
		for _, frame := range h.config.Greeting(conn.Channel) {
			select {
			case conn.Send <- frame:
			default:
				break greeting
			}
		}
	}

	log.Debug().
		Str("connection_id", conn.ID).
		Str("channel", conn.Channel).
		Int("total_connections", len(h.rooms[conn.Channel])).
		Msg("connection registered")
}

func (h *Hub) unregisterConnection(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[conn.Channel]
	if !exists || !room[conn] {
		return
	}
	delete(room, conn)
	close(conn.Send)
	if len(room) == 0 {
		delete(h.rooms, conn.Channel)
	}

	log.Info().
		Str("connection_id", conn.ID).
		Str("channel", conn.Channel).
		Msg("presenter disconnected")
}

func (h *Hub) handleBroadcast(msg roomMessage) {
	var slow []*Connection

	// Sends happen under the read lock so unregister cannot close a Send
	// channel mid-delivery.
	h.mu.RLock()
	room := h.rooms[msg.channel]
	for conn := range room {
		select {
		case conn.Send <- msg.payload:
		default:
			slow = append(slow, conn)
		}
	}
	delivered := len(room) - len(slow)
	h.mu.RUnlock()

	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Msg("connection send buffer full, closing connection")
		h.metrics.RecordDropped(string(broadcast.PeekKind(msg.payload)))
		h.unregisterConnection(conn)
		conn.Conn.Close()
	}

	log.Debug().
		Str("channel", msg.channel).
		Str("kind", string(broadcast.PeekKind(msg.payload))).
		Int("connections", delivered).
		Msg("message broadcasted")
}

// ConnectionStats summarizes connected presenters.
type ConnectionStats struct {
	TotalConnections int            `json:"total_connections"`
	ActiveChannels   int            `json:"active_channels"`
	Channels         map[string]int `json:"channels"`
}

func (h *Hub) Stats() ConnectionStats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	stats := ConnectionStats{Channels: make(map[string]int, len(h.rooms))}
	for channel, room := range h.rooms {
		stats.TotalConnections += len(room)
		stats.Channels[channel] = len(room)
	}
	stats.ActiveChannels = len(h.rooms)
	return stats
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(c.hub.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.hub.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to write message")
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.hub.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug().Err(err).Str("connection_id", c.ID).Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump keeps the read deadline fresh and notices closes. Presenters do
// not send commands; anything they send is logged and ignored.
func (c *Connection) readPump() {
	defer func() {
		c.hub.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("connection_id", c.ID).Msg("unexpected websocket close")
			}
			return
		}

		log.Debug().
			Str("connection_id", c.ID).
			Int("bytes", len(message)).
			Msg("ignoring presenter message")
		c.Conn.SetReadDeadline(time.Now().Add(c.hub.config.ReadTimeout))
	}
}
