package prospects

import (
	"context"
	"sync"

	"fieldroute/internal/model"
)

// Memory is an in-process Repository used when no DATABASE_URL is set
// and throughout the tests. SetUnavailable simulates losing the
// backend, which is how offline behavior is exercised end to end.
type Memory struct {
	mu          sync.Mutex
	byID        map[string]*model.Prospect
	order       []string
	unavailable bool
}

// NewMemory builds a Memory seeded with the given prospects.
func NewMemory(seed []*model.Prospect) *Memory {
	m := &Memory{byID: map[string]*model.Prospect{}}
	for _, p := range seed {
		cp := *p
		m.byID[p.ID] = &cp
		m.order = append(m.order, p.ID)
	}
	return m
}

// SetUnavailable toggles simulated connectivity loss; while set, every
// ApplyOutcome fails with ErrUnavailable.
func (m *Memory) SetUnavailable(v bool) {
	m.mu.Lock()
	m.unavailable = v
	m.mu.Unlock()
}

func (m *Memory) List(_ context.Context) ([]*model.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Prospect, 0, len(m.order))
	for _, id := range m.order {
		cp := *m.byID[id]
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, id string) (*model.Prospect, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ApplyOutcome(_ context.Context, id string, outcome model.VisitOutcome) error {
	if err := ValidateOutcome(outcome); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return ErrUnavailable
	}
	p, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if outcome.Status != nil {
		p.Status = *outcome.Status
	}
	if outcome.Temperature != nil {
		p.Temperature = *outcome.Temperature
	}
	if outcome.Notes != nil {
		p.Notes = *outcome.Notes
	}
	return nil
}
