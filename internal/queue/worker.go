package queue

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Worker is a ticker-driven safety net that re-attempts leftover
// mutations while online, covering the case where a reconnect drain
// only partially succeeded.
type Worker struct {
	Queue    *Queue
	Interval time.Duration
	Online   func() bool
	Log      zerolog.Logger
	Stop     chan struct{}
}

// NewWorker builds a drain worker over q. online gates attempts so the
// worker stays quiet while the device is known to be offline.
func NewWorker(q *Queue, online func() bool, log zerolog.Logger) *Worker {
	return &Worker{
		Queue:    q,
		Interval: 30 * time.Second,
		Online:   online,
		Log:      log,
		Stop:     make(chan struct{}),
	}
}

// Start launches the worker loop.
func (w *Worker) Start() {
	go func() {
		ticker := time.NewTicker(w.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-w.Stop:
				return
			case <-ticker.C:
				w.processOnce()
			}
		}
	}()
}

func (w *Worker) processOnce() {
	if w.Queue.Count() == 0 {
		return
	}
	if w.Online != nil && !w.Online() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := w.Queue.Drain(ctx, "worker"); err != nil && !errors.Is(err, ErrDrainInProgress) {
		w.Log.Error().Err(err).Msg("worker drain failed")
	}
}
