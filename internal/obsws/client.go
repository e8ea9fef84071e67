// Package obsws is an obs-websocket v5 client: it identifies against the OBS
// automation socket, issues requests, and delivers events to a listener.
package obsws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	writeTimeout            = 10 * time.Second
	pongTimeout             = 60 * time.Second
	pingInterval            = 30 * time.Second
)

var (
	// ErrAuthFailed is returned by Dial when OBS rejects the password.
	ErrAuthFailed = errors.New("obsws: authentication failed")
	// ErrClosed is returned for requests issued after the connection ended.
	ErrClosed = errors.New("obsws: connection closed")
)

// RequestError is a request OBS answered with a failed status.
type RequestError struct {
	RequestType string
	Code        int
	Comment     string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("obsws: %s failed (%d): %s", e.RequestType, e.Code, e.Comment)
}

// Option configures Dial.
type Option func(*Client)

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithLogger sets the logger for protocol diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = logging.Component(l, "obsws") }
}

// Client is one identified obs-websocket session. A Client is not reused:
// once Done is closed, dial a new one.
type Client struct {
	dialer *websocket.Dialer
	logger *slog.Logger
	conn   *websocket.Conn

	writeMu sync.Mutex // serialises all conn writes (requests, pings, close)

	mu       sync.Mutex
	pending  map[string]chan requestResponse
	listener func(event.Raw)
	err      error

	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to OBS at host:port and completes the Hello/Identify
// handshake, authenticating with password when OBS requires it.
func Dial(ctx context.Context, host string, port int, password string, opts ...Option) (*Client, error) {
	c := &Client{
		dialer:  websocket.DefaultDialer,
		logger:  logging.Component(nil, "obsws"),
		pending: make(map[string]chan requestResponse),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	target := "ws://" + net.JoinHostPort(host, strconv.Itoa(port))
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return nil, fmt.Errorf("obsws: dial %s: %w", target, err)
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(defaultHandshakeTimeout)
	}
	conn.SetReadDeadline(deadline)

	if err := identifyConn(conn, password); err != nil {
		conn.Close()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, err
	}

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	c.conn = conn
	go c.readLoop()
	go c.pingLoop()
	return c, nil
}

func identifyConn(conn *websocket.Conn, password string) error {
	var msg message
	if err := conn.ReadJSON(&msg); err != nil {
		return fmt.Errorf("obsws: read hello: %w", err)
	}
	if msg.Op != opHello {
		return fmt.Errorf("obsws: expected hello, got op %d", msg.Op)
	}
	var h hello
	if err := json.Unmarshal(msg.D, &h); err != nil {
		return fmt.Errorf("obsws: hello: %w", err)
	}

	id := identify{RPCVersion: rpcVersion, EventSubscriptions: subscribeAll}
	if h.Authentication != nil {
		id.Authentication = authString(password, h.Authentication.Salt, h.Authentication.Challenge)
	}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(outgoing{Op: opIdentify, D: id}); err != nil {
		return fmt.Errorf("obsws: identify: %w", err)
	}

	if err := conn.ReadJSON(&msg); err != nil {
		if websocket.IsCloseError(err, closeAuthFailed) {
			return ErrAuthFailed
		}
		return fmt.Errorf("obsws: read identified: %w", err)
	}
	if msg.Op != opIdentified {
		return fmt.Errorf("obsws: expected identified, got op %d", msg.Op)
	}
	var ack identified
	if err := json.Unmarshal(msg.D, &ack); err != nil {
		return fmt.Errorf("obsws: identified: %w", err)
	}
	if ack.NegotiatedRPCVersion != rpcVersion {
		return fmt.Errorf("obsws: unsupported rpc version %d", ack.NegotiatedRPCVersion)
	}
	return nil
}

// Listen registers fn to receive every subsequent event. fn runs on the
// connection's read goroutine and must not block.
func (c *Client) Listen(fn func(event.Raw)) {
	c.mu.Lock()
	c.listener = fn
	c.mu.Unlock()
}

// Done is closed when the connection ends for any reason.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Err returns the reason the connection ended, or nil while it is open.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Request issues requestType with optional data and waits for its response.
func (c *Client) Request(ctx context.Context, requestType string, data any) (json.RawMessage, error) {
	id := uuid.NewString()
	ch := make(chan requestResponse, 1)

	c.mu.Lock()
	if c.err != nil {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(outgoing{Op: opRequest, D: request{RequestType: requestType, RequestID: id, RequestData: data}}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if !resp.RequestStatus.Result {
			return nil, &RequestError{RequestType: requestType, Code: resp.RequestStatus.Code, Comment: resp.RequestStatus.Comment}
		}
		return resp.ResponseData, nil
	case <-c.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetVersion asks OBS for its version and capabilities.
func (c *Client) GetVersion(ctx context.Context) (Version, error) {
	var v Version
	data, err := c.Request(ctx, "GetVersion", nil)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("obsws: GetVersion: %w", err)
	}
	return v, nil
}

func (c *Client) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("obsws: write: %w", err)
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var msg message
		if err := c.conn.ReadJSON(&msg); err != nil {
			c.finish(fmt.Errorf("obsws: read: %w", err))
			return
		}

		switch msg.Op {
		case opEvent:
			var ev eventPayload
			if err := json.Unmarshal(msg.D, &ev); err != nil {
				c.logger.Debug("dropping malformed event", "error", err)
				continue
			}
			c.mu.Lock()
			fn := c.listener
			c.mu.Unlock()
			if fn != nil {
				fn(event.Raw{Kind: ev.EventType, Intent: ev.EventIntent, Data: ev.EventData})
			}
		case opRequestResponse:
			var resp requestResponse
			if err := json.Unmarshal(msg.D, &resp); err != nil {
				c.logger.Debug("dropping malformed response", "error", err)
				continue
			}
			c.mu.Lock()
			ch, ok := c.pending[resp.RequestID]
			c.mu.Unlock()
			if ok {
				ch <- resp
			}
		}
	}
}

// pingLoop sends periodic pings so a silently dead socket trips the read
// deadline. It exits when the connection ends.
func (c *Client) pingLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// finish records why the connection ended and releases waiters. Only the
// first reason is kept.
func (c *Client) finish(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
		c.conn.Close()
		close(c.done)
	})
}

// Disconnect closes the session with a normal close frame and waits for the
// read goroutine to observe it.
func (c *Client) Disconnect() error {
	c.writeMu.Lock()
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()

	c.finish(ErrClosed)
	<-c.done
	return nil
}
