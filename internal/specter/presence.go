package specter

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/socketio"
)

// Control-plane events. The server has used both naming schemes for the
// registration verdict, so both are accepted.
const (
	EventRegister      = "REGISTER"
	EventSuccess       = "SUCCESS"
	EventFailure       = "ERROR"
	EventSuccessLegacy = "event_success"
	EventFailureLegacy = "event_failure"
)

// RegisterPayload is sent once per connection to announce this connector.
type RegisterPayload struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// Presence maintains this connector's registration on the control-plane
// websocket. One Presence is owned by one supervisor and reused across
// reconnects.
type Presence struct {
	client *socketio.Client
	name   string
	logger *slog.Logger

	mu             sync.Mutex
	onRegistration func(ok bool)
}

// NewPresence creates a presence session against the Socket.IO server at
// rawURL, announcing itself as clientName.
func NewPresence(rawURL, clientName string, logger *slog.Logger, opts ...socketio.Option) *Presence {
	p := &Presence{
		client: socketio.New(rawURL, append([]socketio.Option{socketio.WithLogger(logger)}, opts...)...),
		name:   clientName,
		logger: logging.Component(logger, "presence"),
	}
	p.client.On(EventSuccess, p.registered(true))
	p.client.On(EventSuccessLegacy, p.registered(true))
	p.client.On(EventFailure, p.registered(false))
	p.client.On(EventFailureLegacy, p.registered(false))
	return p
}

// OnRegistration sets the callback receiving registration verdicts.
func (p *Presence) OnRegistration(fn func(ok bool)) {
	p.mu.Lock()
	p.onRegistration = fn
	p.mu.Unlock()
}

func (p *Presence) registered(ok bool) socketio.Handler {
	return func(args []json.RawMessage) {
		var detail string
		if len(args) > 0 {
			detail = string(args[0])
		}
		if ok {
			p.logger.Info("registration accepted", "detail", detail)
		} else {
			p.logger.Warn("registration failed", "detail", detail)
		}

		p.mu.Lock()
		fn := p.onRegistration
		p.mu.Unlock()
		if fn != nil {
			fn(ok)
		}
	}
}

// Connect opens the control-plane connection and registers with the access
// token from s.
func (p *Presence) Connect(ctx context.Context, s config.Settings) error {
	if err := p.client.Connect(ctx); err != nil {
		return err
	}
	if err := p.client.Emit(EventRegister, RegisterPayload{Code: s.AccessToken, Name: p.name}); err != nil {
		p.client.Close()
		return fmt.Errorf("specter: register: %w", err)
	}
	return nil
}

// Wait blocks until the server disconnects, the connection fails, or ctx is
// cancelled.
func (p *Presence) Wait(ctx context.Context) error {
	return p.client.Wait(ctx)
}

// Close tears down the current connection, if any.
func (p *Presence) Close() error {
	return p.client.Close()
}
