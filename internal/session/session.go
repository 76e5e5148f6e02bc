// Package session tracks progress through a planned route. Every state
// transition is committed to durable local storage before it is
// acknowledged, so a crash or reload resumes exactly where the
// representative left off.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"fieldroute/internal/localstore"
	"fieldroute/internal/model"
	"fieldroute/internal/plan"
	"fieldroute/internal/prospects"
	"fieldroute/internal/queue"
)

var (
	// ErrNoActiveSession is returned when an operation needs a session
	// and none is in progress.
	ErrNoActiveSession = errors.New("session: no active session")
	// ErrSessionActive is returned when creating a session while one is
	// still in progress.
	ErrSessionActive = errors.New("session: a session is already active")
	// ErrConfirmRequired is returned when closing a session that still
	// has unvisited stops without explicit confirmation.
	ErrConfirmRequired = errors.New("session: unvisited stops remain, confirmation required")
	// ErrSessionDone is returned for stop operations on a completed session.
	ErrSessionDone = errors.New("session: already completed")
)

// Clock supplies the current time; injectable for tests.
type Clock func() time.Time

// CompleteResult tells the caller how the outcome was delivered.
type CompleteResult struct {
	Session *model.RouteSession
	Offline bool
	Pending int
}

// Manager owns the single active route session on this device.
type Manager struct {
	store  localstore.Store
	repo   prospects.Repository
	queue  *queue.Queue
	log    zerolog.Logger
	now    Clock
	events func(eventType string, data map[string]any)

	mu     sync.Mutex
	active *model.RouteSession
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock overrides the manager's time source.
func WithClock(c Clock) Option { return func(m *Manager) { m.now = c } }

// WithEvents wires an event sink for progress notifications.
func WithEvents(fn func(eventType string, data map[string]any)) Option {
	return func(m *Manager) { m.events = fn }
}

// NewManager restores any committed session from durable storage. A
// missing or corrupt record means no active session; it never fails
// startup.
func NewManager(store localstore.Store, repo prospects.Repository, q *queue.Queue, log zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:  store,
		repo:   repo,
		queue:  q,
		log:    log,
		now:    time.Now,
		events: func(string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(m)
	}

	raw, err := store.Get(localstore.KeyActiveSession)
	switch {
	case errors.Is(err, localstore.ErrNotFound):
	case err != nil:
		log.Warn().Err(err).Msg("session record unreadable, starting without one")
	default:
		var s model.RouteSession
		if err := json.Unmarshal(raw, &s); err != nil {
			log.Warn().Err(err).Msg("session record corrupt, starting without one")
		} else {
			m.active = &s
			log.Info().Str("session", s.ID).Int("currentStop", s.CurrentStop).Msg("resumed session from storage")
		}
	}
	return m
}

// Create turns a plan result into the active session. The session
// starts InProgress with the elapsed-time timer running, and is
// committed durably before being returned.
func (m *Manager) Create(result *plan.Result, startAddress string) (*model.RouteSession, error) {
	if len(result.Stops) == 0 {
		return nil, errors.New("session: cannot create a session with no stops")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active != nil && m.active.State != model.SessionCompleted {
		return nil, ErrSessionActive
	}

	now := m.now().UTC()
	s := &model.RouteSession{
		ID:               uuid.New().String(),
		State:            model.SessionInProgress,
		Stops:            result.Stops,
		StartAddress:     startAddress,
		CurrentStop:      0,
		TotalDistanceM:   result.TotalDistanceM,
		TotalDurationSec: result.TotalDurationSec,
		Optimized:        result.Optimized,
		TimerRunning:     true,
		ResumedAt:        &now,
		CreatedAt:        now,
	}
	if err := m.commitLocked(s); err != nil {
		return nil, err
	}
	m.events("session.created", map[string]any{"sessionId": s.ID, "stops": len(s.Stops)})
	cp := *s
	return &cp, nil
}

// Active returns a copy of the active session, or nil.
func (m *Manager) Active() *model.RouteSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	cp := *m.active
	cp.Stops = append([]model.RouteStop(nil), m.active.Stops...)
	return &cp
}

// Elapsed returns accumulated tracked time for the active session.
func (m *Manager) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return 0
	}
	return m.elapsedLocked(m.active)
}

func (m *Manager) elapsedLocked(s *model.RouteSession) time.Duration {
	d := time.Duration(s.ElapsedSec) * time.Second
	if s.TimerRunning && s.ResumedAt != nil {
		d += m.now().Sub(*s.ResumedAt)
	}
	return d
}

// CompleteStop applies the captured outcome to the current stop's
// prospect, marks the stop visited, and advances. A network-classified
// submit failure queues the outcome and continues optimistically; a
// validation failure is surfaced and changes nothing.
func (m *Manager) CompleteStop(ctx context.Context, outcome model.VisitOutcome) (*CompleteResult, error) {
	if err := prospects.ValidateOutcome(outcome); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	if m.active.State == model.SessionCompleted {
		return nil, ErrSessionDone
	}

	s := m.cloneLocked()
	stop := &s.Stops[s.CurrentStop]

	offline := false
	if err := m.repo.ApplyOutcome(ctx, stop.ProspectID, outcome); err != nil {
		if !prospects.IsNetworkError(err) {
			return nil, err
		}
		// Still update local state so route progress is never blocked.
		if _, qerr := m.queue.Enqueue(stop.ProspectID, s.ID, outcome); qerr != nil {
			return nil, fmt.Errorf("session: queue outcome: %w", qerr)
		}
		offline = true
		m.log.Info().Str("prospect", stop.ProspectID).Msg("submit failed, outcome queued for replay")
	}

	now := m.now().UTC()
	stop.State = model.StopVisited
	stop.VisitedAt = &now
	s.CurrentStop++

	if s.CurrentStop >= len(s.Stops) {
		s.State = model.SessionCompleted
		s.CompletedAt = &now
		s.ElapsedSec = int64(m.elapsedLocked(s) / time.Second)
		s.TimerRunning = false
		s.ResumedAt = nil
	}

	if err := m.commitLocked(s); err != nil {
		return nil, err
	}

	m.events("stop.completed", map[string]any{
		"sessionId": s.ID, "prospectId": stop.ProspectID,
		"seq": stop.Seq, "offline": offline,
	})
	if s.State == model.SessionCompleted {
		m.events("session.completed", map[string]any{"sessionId": s.ID})
	}

	cp := *s
	return &CompleteResult{Session: &cp, Offline: offline, Pending: m.queue.Count()}, nil
}

// Pause stops elapsed-time accumulation without touching stop state.
func (m *Manager) Pause() (*model.RouteSession, error) {
	return m.setTimer(false)
}

// Resume restarts elapsed-time accumulation.
func (m *Manager) Resume() (*model.RouteSession, error) {
	return m.setTimer(true)
}

func (m *Manager) setTimer(running bool) (*model.RouteSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, ErrNoActiveSession
	}
	if m.active.State == model.SessionCompleted {
		return nil, ErrSessionDone
	}
	if m.active.TimerRunning == running {
		cp := *m.active
		return &cp, nil
	}

	s := m.cloneLocked()
	now := m.now().UTC()
	if running {
		s.TimerRunning = true
		s.ResumedAt = &now
	} else {
		s.ElapsedSec = int64(m.elapsedLocked(s) / time.Second)
		s.TimerRunning = false
		s.ResumedAt = nil
	}
	if err := m.commitLocked(s); err != nil {
		return nil, err
	}
	cp := *s
	return &cp, nil
}

// Close discards the active session. Unvisited stops require confirm,
// and closing removes the durable record entirely.
func (m *Manager) Close(confirm bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return ErrNoActiveSession
	}
	if m.active.State != model.SessionCompleted && m.active.CurrentStop < len(m.active.Stops) && !confirm {
		return ErrConfirmRequired
	}
	if err := m.store.Delete(localstore.KeyActiveSession); err != nil {
		return fmt.Errorf("session: remove record: %w", err)
	}
	id := m.active.ID
	m.active = nil
	m.events("session.closed", map[string]any{"sessionId": id})
	return nil
}

func (m *Manager) cloneLocked() *model.RouteSession {
	cp := *m.active
	cp.Stops = append([]model.RouteStop(nil), m.active.Stops...)
	return &cp
}

// commitLocked writes the session durably, then swaps it in as the
// active state. A failed write leaves the previous state untouched.
func (m *Manager) commitLocked(s *model.RouteSession) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: marshal: %w", err)
	}
	if err := m.store.Put(localstore.KeyActiveSession, data); err != nil {
		return fmt.Errorf("session: commit: %w", err)
	}
	m.active = s
	return nil
}
