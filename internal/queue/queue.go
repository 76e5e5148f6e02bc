// Package queue is the durable offline mutation queue. A visit outcome
// that cannot reach the backend is appended here and replayed when
// connectivity returns; nothing captured in the field is ever silently
// dropped.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldroute/internal/localstore"
	"fieldroute/internal/metrics"
	"fieldroute/internal/model"
	"fieldroute/internal/prospects"
)

// ErrDrainInProgress is returned when a drain cycle is already running.
var ErrDrainInProgress = errors.New("queue: drain already in progress")

// DrainReport summarizes one drain cycle for the user-facing notice.
type DrainReport struct {
	Delivered int `json:"delivered"`
	Remaining int `json:"remaining"`
	Dropped   int `json:"dropped"`
}

// Queue keeps pending mutations in FIFO order, mirrored in durable
// storage. The durable record is rewritten as a whole array on every
// change, so a crash can never leave a half-written queue.
type Queue struct {
	store localstore.Store
	repo  prospects.Repository
	log   zerolog.Logger

	mu       sync.Mutex
	items    []model.PendingMutation
	draining bool
}

// Load restores the queue from durable storage. A missing or corrupt
// record is treated as an empty queue; recovery must never block the
// user.
func Load(store localstore.Store, repo prospects.Repository, log zerolog.Logger) *Queue {
	q := &Queue{store: store, repo: repo, log: log}

	raw, err := store.Get(localstore.KeyMutationQueue)
	switch {
	case errors.Is(err, localstore.ErrNotFound):
	case err != nil:
		log.Warn().Err(err).Msg("mutation queue unreadable, starting empty")
	default:
		if err := json.Unmarshal(raw, &q.items); err != nil {
			log.Warn().Err(err).Msg("mutation queue corrupt, starting empty")
			q.items = nil
		}
	}

	metrics.PendingMutations.Set(float64(len(q.items)))
	return q
}

// Enqueue appends an outcome for later delivery and commits the queue
// durably before returning.
func (q *Queue) Enqueue(prospectID, sessionID string, outcome model.VisitOutcome) (model.PendingMutation, error) {
	m := model.PendingMutation{
		ID:         uuid.New().String(),
		ProspectID: prospectID,
		SessionID:  sessionID,
		Outcome:    outcome,
		QueuedAt:   time.Now().UTC(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, m)
	if err := q.persistLocked(); err != nil {
		q.items = q.items[:len(q.items)-1]
		return model.PendingMutation{}, err
	}
	metrics.PendingMutations.Set(float64(len(q.items)))
	return m, nil
}

// Count returns the number of unresolved mutations.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a snapshot of the queued mutations in order.
func (q *Queue) Pending() []model.PendingMutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]model.PendingMutation, len(q.items))
	copy(out, q.items)
	return out
}

// Drain replays queued mutations sequentially in original order, one
// attempt each. Delivered mutations are removed; network failures are
// retained for the next cycle. When a mutation for a prospect fails,
// later mutations for the same prospect are held back in that cycle so
// a stale retry can never overwrite a newer edit. Only one drain runs
// at a time.
func (q *Queue) Drain(ctx context.Context, trigger string) (DrainReport, error) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return DrainReport{}, ErrDrainInProgress
	}
	q.draining = true
	snapshot := make([]model.PendingMutation, len(q.items))
	copy(snapshot, q.items)
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	metrics.QueueDrains.WithLabelValues(trigger).Inc()

	var report DrainReport
	delivered := map[string]bool{}
	blocked := map[string]bool{} // prospect ids with an earlier failure this cycle

	for _, m := range snapshot {
		if blocked[m.ProspectID] {
			continue
		}
		err := q.repo.ApplyOutcome(ctx, m.ProspectID, m.Outcome)
		switch {
		case err == nil:
			delivered[m.ID] = true
			report.Delivered++
			metrics.MutationReplays.WithLabelValues("delivered").Inc()
		case prospects.IsNetworkError(err):
			blocked[m.ProspectID] = true
			metrics.MutationReplays.WithLabelValues("retained").Inc()
		default:
			// Permanent rejection; retrying forever would wedge the queue.
			delivered[m.ID] = true
			report.Dropped++
			metrics.MutationReplays.WithLabelValues("dropped").Inc()
			q.log.Error().Err(err).Str("prospect", m.ProspectID).Msg("mutation rejected, dropping from queue")
		}
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	survivors := q.items[:0:0]
	for _, m := range q.items {
		if !delivered[m.ID] {
			survivors = append(survivors, m)
		}
	}
	q.items = survivors
	if err := q.persistLocked(); err != nil {
		return report, err
	}
	report.Remaining = len(q.items)
	metrics.PendingMutations.Set(float64(len(q.items)))

	q.log.Info().
		Str("trigger", trigger).
		Int("delivered", report.Delivered).
		Int("remaining", report.Remaining).
		Msg("queue drain complete")
	return report, nil
}

func (q *Queue) persistLocked() error {
	data, err := json.Marshal(q.items)
	if err != nil {
		return err
	}
	return q.store.Put(localstore.KeyMutationQueue, data)
}
