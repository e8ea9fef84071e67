// Package supervisor keeps the control-plane and automation channels
// connected, retrying each forever with a flat delay until cancelled.
package supervisor

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
)

// ConnectionState is the lifecycle state of one supervised channel.
type ConnectionState int32

const (
	Disconnected ConnectionState = iota
	Connecting
	Connected
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// StatusSink receives fire-and-forget connected/disconnected notifications.
// Implementations must not block.
type StatusSink interface {
	SetConnected(connected bool)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(connected bool)

func (f SinkFunc) SetConnected(connected bool) { f(connected) }

type options struct {
	retryDelay     time.Duration
	connectTimeout time.Duration
	logger         *slog.Logger
	probe          ProcessProbe
}

func defaultOptions() options {
	return options{
		retryDelay:     config.DefaultRetryDelay,
		connectTimeout: 10 * time.Second,
	}
}

// Option configures a supervisor.
type Option func(*options)

// WithRetryDelay sets the flat delay between a failure and the next attempt.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryDelay = d
		}
	}
}

// WithConnectTimeout bounds each connect attempt.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.connectTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithProbe sets a check run before every automation connect attempt.
// The control supervisor ignores it.
func WithProbe(p ProcessProbe) Option {
	return func(o *options) { o.probe = p }
}

// stateHolder is embedded by both supervisors.
type stateHolder struct {
	state atomic.Int32
}

// State returns the supervisor's current connection state.
func (h *stateHolder) State() ConnectionState {
	return ConnectionState(h.state.Load())
}

func (h *stateHolder) set(s ConnectionState) {
	h.state.Store(int32(s))
}

// sleep waits for d or until ctx is done, whichever comes first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
