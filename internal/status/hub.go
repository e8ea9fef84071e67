// Package status records the connected/disconnected state of both channels
// and serves it to a local UI over HTTP and websocket.
package status

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/relay"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/supervisor"
)

type Channel string

const (
	ChannelControl    Channel = "control"
	ChannelAutomation Channel = "automation"
)

type MessageType string

const (
	MsgSnapshot MessageType = "snapshot"
	MsgStatus   MessageType = "status"
)

type Message struct {
	Type    MessageType `json:"type"`
	Payload any         `json:"payload"`
}

// ChannelStatus is the last known state of one channel. Failures counts
// consecutive disconnected notifications and resets on connect.
type ChannelStatus struct {
	Channel    Channel   `json:"channel"`
	Connected  bool      `json:"connected"`
	Since      time.Time `json:"since,omitzero"`
	Failures   int       `json:"failures"`
	LastChange time.Time `json:"lastChange,omitzero"`
}

type Snapshot struct {
	Channels []ChannelStatus `json:"channels"`
	Relay    *relay.Stats    `json:"relay,omitempty"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

type Option func(*Hub)

func WithLogger(l *slog.Logger) Option {
	return func(h *Hub) { h.logger = logging.Component(l, "status") }
}

// WithRelayStats includes the relay counters in every snapshot.
func WithRelayStats(fn func() relay.Stats) Option {
	return func(h *Hub) { h.relayStats = fn }
}

// Hub is the Status Sink for both supervisors. Notifications never block:
// subscribers that fall behind are disconnected.
type Hub struct {
	mu       sync.RWMutex
	channels map[Channel]*ChannelStatus
	clients  map[*client]bool

	relayStats func() relay.Stats
	logger     *slog.Logger
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		channels: map[Channel]*ChannelStatus{
			ChannelControl:    {Channel: ChannelControl},
			ChannelAutomation: {Channel: ChannelAutomation},
		},
		clients: make(map[*client]bool),
		logger:  logging.Component(nil, "status"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type channelSink struct {
	hub *Hub
	ch  Channel
}

func (s channelSink) SetConnected(connected bool) { s.hub.record(s.ch, connected) }

// Sink returns the StatusSink feeding ch.
func (h *Hub) Sink(ch Channel) supervisor.StatusSink {
	return channelSink{hub: h, ch: ch}
}

func (h *Hub) record(ch Channel, connected bool) {
	now := time.Now()

	h.mu.Lock()
	st, ok := h.channels[ch]
	if !ok {
		st = &ChannelStatus{Channel: ch}
		h.channels[ch] = st
	}
	changed := st.Connected != connected || st.Since.IsZero()
	if changed {
		st.Connected = connected
		st.Since = now
	}
	if connected {
		st.Failures = 0
	} else {
		st.Failures++
	}
	st.LastChange = now
	update := *st
	h.mu.Unlock()

	if changed {
		h.logger.Info("channel status changed", "channel", ch, "connected", connected)
	}
	h.broadcast(Message{Type: MsgStatus, Payload: update})
}

// Status returns the last known state of ch.
func (h *Hub) Status(ch Channel) ChannelStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if st, ok := h.channels[ch]; ok {
		return *st
	}
	return ChannelStatus{Channel: ch}
}

func (h *Hub) Snapshot() Snapshot {
	snap := Snapshot{
		Channels: []ChannelStatus{h.Status(ChannelControl), h.Status(ChannelAutomation)},
	}
	if h.relayStats != nil {
		stats := h.relayStats()
		snap.Relay = &stats
	}
	return snap
}

// addClient registers conn as a subscriber and queues the current snapshot
// as its first message.
func (h *Hub) addClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: h.Snapshot()})
	if err != nil {
		h.logger.Error("snapshot marshal error", "error", err)
		data = nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	if data != nil {
		select {
		case c.send <- data:
		default:
		}
	}
	return c
}

// removeClient unregisters c and closes its send channel. Channels are only
// closed under the write lock, so senders holding the read lock never see a
// closed channel.
func (h *Hub) removeClient(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("broadcast marshal error", "error", err)
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("status client too slow, disconnecting")
		h.removeClient(c)
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
