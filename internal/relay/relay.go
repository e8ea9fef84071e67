// Package relay decouples the automation socket's read goroutine from
// translation and HTTP forwarding.
package relay

import (
	"context"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/config"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/event"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/logging"
	"github.com/YourStreamingTools/BotOfTheSpecter---OBS-Connector/internal/specter"
)

const (
	defaultQueueSize = 256
	defaultWorkers   = 4
)

// Forwarder delivers one canonical event.
type Forwarder interface {
	Forward(ctx context.Context, ev event.Canonical, accessToken string) specter.Outcome
}

// Option configures a Relay.
type Option func(*Relay)

// WithQueueSize sets the number of raw events buffered between Push and the
// workers. Default: 256.
func WithQueueSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithWorkers sets the number of concurrent translate+forward workers.
// Default: 4.
func WithWorkers(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.workers = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Relay) { r.logger = logging.Component(l, "relay") }
}

// WithOnOutcome sets a callback invoked after every forward attempt.
func WithOnOutcome(fn func(event.Canonical, specter.Outcome)) Option {
	return func(r *Relay) { r.onOutcome = fn }
}

// Stats are cumulative counters since the relay was created.
type Stats struct {
	Received uint64 `json:"received"`
	Sent     uint64 `json:"sent"`
	Failed   uint64 `json:"failed"`
	Dropped  uint64 `json:"dropped"`
}

// Relay queues raw automation events and forwards their canonical form.
// Events are handled independently; their relative order is not kept.
type Relay struct {
	fwd       Forwarder
	provider  config.Provider
	queue     chan event.Raw
	queueSize int
	workers   int
	logger    *slog.Logger
	onOutcome func(event.Canonical, specter.Outcome)

	received atomic.Uint64
	sent     atomic.Uint64
	failed   atomic.Uint64
	dropped  atomic.Uint64
}

// New creates a relay forwarding through fwd with the access token current
// in provider at send time.
func New(fwd Forwarder, provider config.Provider, opts ...Option) *Relay {
	r := &Relay{
		fwd:       fwd,
		provider:  provider,
		queueSize: defaultQueueSize,
		workers:   defaultWorkers,
		logger:    logging.Component(nil, "relay"),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.queue = make(chan event.Raw, r.queueSize)
	return r
}

// Push enqueues raw without blocking. When the queue is full the event is
// dropped and logged.
func (r *Relay) Push(raw event.Raw) {
	r.received.Add(1)
	select {
	case r.queue <- raw:
	default:
		r.dropped.Add(1)
		r.logger.Warn("relay queue full, dropping event", "kind", raw.Kind)
	}
}

// Run starts the workers and blocks until ctx is cancelled. Events still
// queued at cancellation are discarded.
func (r *Relay) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case raw := <-r.queue:
					r.handle(ctx, raw)
				}
			}
		})
	}
	return g.Wait()
}

func (r *Relay) handle(ctx context.Context, raw event.Raw) {
	ev := event.Translate(raw)
	if !event.Known(raw.Kind) {
		r.logger.Debug("forwarding unrecognised event kind", "kind", raw.Kind)
	}

	out := r.fwd.Forward(ctx, ev, r.provider.Settings().AccessToken)
	switch out.Status {
	case specter.Sent:
		r.sent.Add(1)
		r.logger.Debug("event forwarded", "name", ev.Name)
	default:
		r.failed.Add(1)
		r.logger.Warn("event forward failed", "name", ev.Name, "reason", out.Reason)
	}

	if r.onOutcome != nil {
		r.onOutcome(ev, out)
	}
}

// Stats returns the relay's counters.
func (r *Relay) Stats() Stats {
	return Stats{
		Received: r.received.Load(),
		Sent:     r.sent.Load(),
		Failed:   r.failed.Load(),
		Dropped:  r.dropped.Load(),
	}
}
