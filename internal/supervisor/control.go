package supervisor

import (
	"context"
	"log/slog"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/specter"
)

// ControlConn is one control-plane session. It is reused across attempts:
// Connect after Close opens a fresh socket.
type ControlConn interface {
	Connect(ctx context.Context, s config.Settings) error
	Wait(ctx context.Context) error
	Close() error
	OnRegistration(fn func(ok bool))
}

// PresenceFactory builds control sessions registering as clientName at rawURL.
func PresenceFactory(rawURL, clientName string, logger *slog.Logger) func() ControlConn {
	return func() ControlConn {
		return specter.NewPresence(rawURL, clientName, logger)
	}
}

// ControlSupervisor keeps the control-plane channel connected.
type ControlSupervisor struct {
	stateHolder
	newConn func() ControlConn
	opts    options
	logger  *slog.Logger
}

func NewControlSupervisor(newConn func() ControlConn, opts ...Option) *ControlSupervisor {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &ControlSupervisor{
		newConn: newConn,
		opts:    o,
		logger:  logging.Component(o.logger, "control"),
	}
}

// Run connects, registers, and waits for the session to end, then retries
// after the retry delay. It returns ctx.Err() once ctx is cancelled, after
// closing any open connection.
func (s *ControlSupervisor) Run(ctx context.Context, provider config.Provider, sink StatusSink) error {
	conn := s.newConn()
	defer conn.Close()
	defer s.set(Disconnected)

	// Registration verdicts are advisory: they only reach the sink.
	conn.OnRegistration(sink.SetConnected)

	failures := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s.set(Connecting)
		settings := provider.Settings()

		cctx, cancel := context.WithTimeout(ctx, s.opts.connectTimeout)
		err := conn.Connect(cctx, settings)
		cancel()

		if err == nil {
			failures = 0
			s.set(Connected)
			sink.SetConnected(true)
			s.logger.Info("control channel connected")

			err = conn.Wait(ctx)
		}
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}

		failures++
		s.set(Disconnected)
		sink.SetConnected(false)
		s.logger.Warn("control channel down",
			"error", err,
			"attempt", failures,
			"retry_in", s.opts.retryDelay)

		if err := sleep(ctx, s.opts.retryDelay); err != nil {
			return err
		}
	}
}
