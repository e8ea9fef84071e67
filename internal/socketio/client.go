// Package socketio is a minimal Socket.IO v5 client speaking the Engine.IO v4
// websocket transport. It supports the default namespace, emitting events,
// receiving events, and server heartbeats; it does not do polling,
// acknowledgements, or binary attachments.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
)

var (
	// ErrDisconnected is returned by Wait when the server ends the session.
	ErrDisconnected = errors.New("socketio: disconnected by server")
	// ErrNotConnected is returned by Emit before Connect or after Close.
	ErrNotConnected = errors.New("socketio: not connected")
)

// Handler receives the arguments of one inbound event.
type Handler func(args []json.RawMessage)

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.Component(l, "socketio") }
}

// Client is a reusable Socket.IO connection. Connect, Wait and Close may be
// called repeatedly; at most one underlying websocket is open at a time.
type Client struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu      sync.Mutex
	writeMu sync.Mutex // serialises all conn writes (pong, emit, disconnect)
	conn    *websocket.Conn
	open    openPayload
}

// New creates a client for the Socket.IO server at rawURL. http(s) and ws(s)
// schemes are accepted; an empty path defaults to /socket.io/.
func New(rawURL string, opts ...Option) *Client {
	c := &Client{
		url:      rawURL,
		dialer:   websocket.DefaultDialer,
		logger:   logging.Component(nil, "socketio"),
		handlers: make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// On registers h for events named event, replacing any previous handler.
// Handlers run on the goroutine calling Wait and must not block.
func (c *Client) On(event string, h Handler) {
	c.handlersMu.Lock()
	c.handlers[event] = h
	c.handlersMu.Unlock()
}

// endpoint converts the configured URL into the Engine.IO websocket URL.
func endpoint(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("socketio: parse url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("socketio: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/socket.io/"
	}
	q := u.Query()
	q.Set("EIO", "4")
	q.Set("transport", "websocket")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Connect opens the websocket, completes the Engine.IO handshake, and joins
// the default namespace. Any previous connection is closed first.
func (c *Client) Connect(ctx context.Context) error {
	c.Close()

	target, err := endpoint(c.url)
	if err != nil {
		return err
	}

	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("socketio: dial: %w", err)
	}

	// Unblock handshake reads if ctx is cancelled mid-way.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	conn.SetReadDeadline(deadline)

	open, err := c.handshake(conn)
	if err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	conn.SetReadDeadline(time.Time{})

	c.mu.Lock()
	c.conn = conn
	c.open = open
	c.mu.Unlock()

	c.logger.Debug("connected", "sid", open.SID, "ping_interval_ms", open.PingInterval)
	return nil
}

func (c *Client) handshake(conn *websocket.Conn) (openPayload, error) {
	_, frame, err := conn.ReadMessage()
	if err != nil {
		return openPayload{}, fmt.Errorf("socketio: read open: %w", err)
	}
	open, err := parseOpen(frame)
	if err != nil {
		return open, err
	}

	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, []byte{eioMessage, sioConnect}); err != nil {
		return open, fmt.Errorf("socketio: namespace connect: %w", err)
	}

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return open, fmt.Errorf("socketio: read connect ack: %w", err)
		}
		if len(frame) == 0 {
			continue
		}
		switch frame[0] {
		case eioPing:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, []byte{eioPong}); err != nil {
				return open, fmt.Errorf("socketio: pong: %w", err)
			}
		case eioClose:
			return open, ErrDisconnected
		case eioMessage:
			if len(frame) < 2 {
				continue
			}
			switch frame[1] {
			case sioConnect:
				return open, nil
			case sioConnectError:
				return open, parseConnectError(frame[2:])
			}
		}
	}
}

// Wait reads from the current connection, answering heartbeats and
// dispatching events, until the server disconnects, the connection fails,
// or ctx is cancelled. The connection is closed when Wait returns.
func (c *Client) Wait(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	timeout := c.open.readTimeout()
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	defer c.release(conn)

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		if timeout > 0 {
			conn.SetReadDeadline(time.Now().Add(timeout))
		}
		_, frame, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("socketio: read: %w", err)
		}
		if err := c.handleFrame(conn, frame); err != nil {
			return err
		}
	}
}

func (c *Client) handleFrame(conn *websocket.Conn, frame []byte) error {
	if len(frame) == 0 {
		return nil
	}
	switch frame[0] {
	case eioPing:
		return c.write(conn, []byte{eioPong})
	case eioClose:
		return ErrDisconnected
	case eioMessage:
	default:
		return nil
	}

	if len(frame) < 2 {
		return nil
	}
	switch frame[1] {
	case sioDisconnect:
		return ErrDisconnected
	case sioConnectError:
		return parseConnectError(frame[2:])
	case sioEvent:
		name, args, err := decodeEvent(frame[2:])
		if err != nil {
			c.logger.Debug("dropping malformed event", "error", err)
			return nil
		}
		c.handlersMu.RLock()
		h := c.handlers[name]
		c.handlersMu.RUnlock()
		if h == nil {
			c.logger.Debug("unhandled event", "event", name)
			return nil
		}
		h(args)
	}
	return nil
}

// Emit sends an event with the given arguments on the current connection.
func (c *Client) Emit(event string, args ...any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}
	frame, err := encodeEvent(event, args)
	if err != nil {
		return fmt.Errorf("socketio: encode %s: %w", event, err)
	}
	return c.write(conn, frame)
}

func (c *Client) write(conn *websocket.Conn, frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("socketio: write: %w", err)
	}
	return nil
}

// Connected reports whether a connection is currently held.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Close leaves the namespace and closes the websocket. It is safe to call
// when not connected.
func (c *Client) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	return c.shutdown(conn)
}

// release closes conn, clearing it as the current connection only if it has
// not been replaced in the meantime.
func (c *Client) release(conn *websocket.Conn) {
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
	c.shutdown(conn)
}

func (c *Client) shutdown(conn *websocket.Conn) error {
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(websocket.TextMessage, []byte{eioMessage, sioDisconnect})
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
