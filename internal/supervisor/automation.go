package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/obsws"
)

// AutomationConn is one identified automation session. It is not reused.
type AutomationConn interface {
	Listen(fn func(event.Raw))
	Done() <-chan struct{}
	Err() error
	Disconnect() error
}

// AutomationDialer opens an automation session for the given settings.
type AutomationDialer func(ctx context.Context, s config.Settings) (AutomationConn, error)

// ProcessProbe reports whether the automation target is running.
type ProcessProbe interface {
	Check(ctx context.Context, host string) error
}

// DialOBS dials obs-websocket and confirms the session with a GetVersion
// call before handing it over.
func DialOBS(logger *slog.Logger) AutomationDialer {
	log := logging.Component(logger, "automation")
	return func(ctx context.Context, s config.Settings) (AutomationConn, error) {
		c, err := obsws.Dial(ctx, s.AutomationHost, s.AutomationPort, s.AutomationSecret, obsws.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		v, err := c.GetVersion(ctx)
		if err != nil {
			c.Disconnect()
			return nil, fmt.Errorf("capability check: %w", err)
		}
		log.Info("obs identified",
			"obs_version", v.OBSVersion,
			"websocket_version", v.OBSWebSocketVersion,
			"platform", v.Platform)
		return c, nil
	}
}

// AutomationSupervisor keeps the automation channel connected and feeds its
// events to a listener.
type AutomationSupervisor struct {
	stateHolder
	dial   AutomationDialer
	opts   options
	logger *slog.Logger
}

func NewAutomationSupervisor(dial AutomationDialer, opts ...Option) *AutomationSupervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &AutomationSupervisor{
		dial:   dial,
		opts:   o,
		logger: logging.Component(o.logger, "automation"),
	}
}

// Run dials the automation socket, registers onEvent, and blocks until the
// connection fails or ctx is cancelled. onEvent runs on the connection's read
// goroutine and must not block. Run returns ctx.Err() after disconnecting.
func (s *AutomationSupervisor) Run(ctx context.Context, provider config.Provider, sink StatusSink, onEvent func(event.Raw)) error {
	defer s.set(Disconnected)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.set(Connecting)
		settings := provider.Settings()

		cctx, cancel := context.WithTimeout(ctx, s.opts.connectTimeout)
		conn, err := s.connect(cctx, settings)
		cancel()

		if err == nil {
			failures = 0
			conn.Listen(onEvent)
			s.set(Connected)
			sink.SetConnected(true)
			s.logger.Info("automation channel connected",
				"host", settings.AutomationHost,
				"port", settings.AutomationPort)

			select {
			case <-ctx.Done():
				conn.Disconnect()
				return ctx.Err()
			case <-conn.Done():
				err = conn.Err()
			}
			conn.Disconnect()
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		s.set(Disconnected)
		sink.SetConnected(false)
		s.logger.Warn("automation channel down",
			"error", err,
			"attempt", failures,
			"retry_in", s.opts.retryDelay)

		if err := sleep(ctx, s.opts.retryDelay); err != nil {
			return err
		}
	}
}

func (s *AutomationSupervisor) connect(ctx context.Context, settings config.Settings) (AutomationConn, error) {
	if s.opts.probe != nil {
		if err := s.opts.probe.Check(ctx, settings.AutomationHost); err != nil {
			return nil, err
		}
	}
	return s.dial(ctx, settings)
}
