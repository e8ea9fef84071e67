package socketio

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Engine.IO v4 packet types, the first byte of every websocket text frame.
const (
	eioOpen    = '0'
	eioClose   = '1'
	eioPing    = '2'
	eioPong    = '3'
	eioMessage = '4'
)

// Socket.IO v5 packet types, the byte following an Engine.IO message type.
const (
	sioConnect      = '0'
	sioDisconnect   = '1'
	sioEvent        = '2'
	sioAck          = '3'
	sioConnectError = '4'
)

// openPayload is the JSON body of the Engine.IO open packet.
type openPayload struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

func (o openPayload) readTimeout() time.Duration {
	if o.PingInterval <= 0 {
		return 0
	}
	return time.Duration(o.PingInterval+o.PingTimeout) * time.Millisecond
}

func parseOpen(frame []byte) (openPayload, error) {
	var o openPayload
	if len(frame) == 0 || frame[0] != eioOpen {
		return o, fmt.Errorf("socketio: expected open packet, got %q", truncate(frame))
	}
	if err := json.Unmarshal(frame[1:], &o); err != nil {
		return o, fmt.Errorf("socketio: open packet: %w", err)
	}
	return o, nil
}

// ConnectError is returned when the server refuses the namespace connect.
type ConnectError struct {
	Message string
}

func (e *ConnectError) Error() string {
	return "socketio: connect refused: " + e.Message
}

func parseConnectError(body []byte) error {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(stripNamespace(body), &payload); err != nil || payload.Message == "" {
		return &ConnectError{Message: string(body)}
	}
	return &ConnectError{Message: payload.Message}
}

// stripNamespace removes an optional "/nsp," prefix from a Socket.IO body.
func stripNamespace(body []byte) []byte {
	if len(body) == 0 || body[0] != '/' {
		return body
	}
	for i, b := range body {
		if b == ',' {
			return body[i+1:]
		}
	}
	return nil
}

// decodeEvent parses the body of a Socket.IO EVENT packet
// ([/nsp,][ackID][name, args...]) into its name and arguments.
func decodeEvent(body []byte) (string, []json.RawMessage, error) {
	body = stripNamespace(body)
	for len(body) > 0 && body[0] >= '0' && body[0] <= '9' {
		body = body[1:]
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(body, &parts); err != nil {
		return "", nil, fmt.Errorf("socketio: event body: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("socketio: empty event")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("socketio: event name: %w", err)
	}
	return name, parts[1:], nil
}

// encodeEvent builds the websocket frame for emitting name with args.
func encodeEvent(name string, args []any) ([]byte, error) {
	payload := append([]any{name}, args...)
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte{eioMessage, sioEvent}, data...), nil
}

func truncate(b []byte) string {
	if len(b) > 64 {
		return string(b[:64]) + "..."
	}
	return string(b)
}
