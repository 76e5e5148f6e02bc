// Package connectivity watches online/offline transitions and triggers
// queue replay. Transitions are debounced so a flapping link cannot
// start overlapping drains.
package connectivity

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"fieldroute/internal/metrics"
	"fieldroute/internal/queue"
)

// Watcher is the platform hook that reports network state changes.
// true means online. Implementations push the current state on
// subscribe so the monitor starts from truth rather than assumption.
type Watcher interface {
	Events() <-chan bool
}

// ChanWatcher is a trivial Watcher backed by a channel, used by the
// API's connectivity endpoint and by tests.
type ChanWatcher chan bool

// Events returns the underlying channel.
func (w ChanWatcher) Events() <-chan bool { return w }

// Monitor drives queue drains from connectivity transitions. On
// startup it reports mutations left over from a previous run before
// any network event arrives.
type Monitor struct {
	queue    *queue.Queue
	watcher  Watcher
	log      zerolog.Logger
	debounce time.Duration
	events   func(eventType string, data map[string]any)

	state chan bool // serialized state queries from Online()
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithDebounce overrides the settle window applied before a drain.
func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) { m.debounce = d }
}

// WithEvents wires an event sink for connectivity notifications.
func WithEvents(fn func(eventType string, data map[string]any)) Option {
	return func(m *Monitor) { m.events = fn }
}

// New builds a Monitor over the given watcher.
func New(q *queue.Queue, w Watcher, log zerolog.Logger, opts ...Option) *Monitor {
	m := &Monitor{
		queue:    q,
		watcher:  w,
		log:      log,
		debounce: 2 * time.Second,
		events:   func(string, map[string]any) {},
		state:    make(chan bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run processes connectivity events until ctx is cancelled. It is the
// only goroutine that touches monitor state, mirroring the
// single-event-loop model the engine assumes.
func (m *Monitor) Run(ctx context.Context) {
	if leftover := m.queue.Count(); leftover > 0 {
		m.log.Info().Int("pending", leftover).Msg("mutations left over from previous run")
		m.events("queue.pending", map[string]any{"pending": leftover})
	}

	online := true
	var settle *time.Timer
	var settleC <-chan time.Time

	stopSettle := func() {
		if settle != nil {
			settle.Stop()
			settle = nil
			settleC = nil
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopSettle()
			return

		case m.state <- online:

		case next, ok := <-m.watcher.Events():
			if !ok {
				stopSettle()
				return
			}
			if next == online {
				continue
			}
			online = next
			if online {
				metrics.ConnectivityTransitions.WithLabelValues("online").Inc()
				// Reset rather than stack timers: rapid flapping settles
				// into at most one drain.
				stopSettle()
				settle = time.NewTimer(m.debounce)
				settleC = settle.C
			} else {
				metrics.ConnectivityTransitions.WithLabelValues("offline").Inc()
				stopSettle()
			}
			m.events("connectivity.changed", map[string]any{"online": online})
			m.log.Info().Bool("online", online).Msg("connectivity changed")

		case <-settleC:
			stopSettle()
			if !online {
				continue
			}
			m.drain(ctx)
		}
	}
}

// Online reports the last observed connectivity state.
func (m *Monitor) Online() bool {
	select {
	case v := <-m.state:
		return v
	case <-time.After(time.Second):
		return true
	}
}

func (m *Monitor) drain(ctx context.Context) {
	if m.queue.Count() == 0 {
		return
	}
	report, err := m.queue.Drain(ctx, "reconnect")
	if errors.Is(err, queue.ErrDrainInProgress) {
		return
	}
	if err != nil {
		m.log.Error().Err(err).Msg("reconnect drain failed")
		return
	}
	m.events("queue.drained", map[string]any{
		"delivered": report.Delivered,
		"remaining": report.Remaining,
	})
}
