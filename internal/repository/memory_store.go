package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"Aegis/internal/domain/models"
	"Aegis/internal/domain/repository"
)

// MemoryStore is an in-process EventStore and AuditLog for local runs and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	accounts  map[string]models.Account
	events    map[string]models.OrderFlowEvent
	signals   map[string]*models.Signal
	byEvent   map[string]string
	decisions map[string][]models.Decision
	audit     []models.AuditLogEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts:  make(map[string]models.Account),
		events:    make(map[string]models.OrderFlowEvent),
		signals:   make(map[string]*models.Signal),
		byEvent:   make(map[string]string),
		decisions: make(map[string][]models.Decision),
	}
}

var (
	_ repository.EventStore = (*MemoryStore)(nil)
	_ repository.AuditLog   = (*MemoryStore)(nil)
)

func (m *MemoryStore) PutAccount(_ context.Context, a *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[a.ID] = *a
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account: %w", models.ErrNotFound)
	}
	return &a, nil
}

func (m *MemoryStore) CreateEvent(_ context.Context, e *models.OrderFlowEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; ok {
		return fmt.Errorf("event %s: %w", e.ID, models.ErrConflict)
	}
	m.events[e.ID] = *e
	return nil
}

func (m *MemoryStore) GetEvent(_ context.Context, id string) (*models.OrderFlowEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, fmt.Errorf("event: %w", models.ErrNotFound)
	}
	return &e, nil
}

func (m *MemoryStore) CreateSignalWithDecision(_ context.Context, s *models.Signal, d *models.Decision) (*models.Signal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byEvent[s.OrderFlowEventID]; ok {
		return m.copySignal(m.signals[id], true), false, nil
	}
	stored := *s
	stored.Decisions = nil
	m.signals[s.ID] = &stored
	m.byEvent[s.OrderFlowEventID] = s.ID
	d.SignalID = s.ID
	m.decisions[s.ID] = append(m.decisions[s.ID], *d)
	return m.copySignal(&stored, true), true, nil
}

func (m *MemoryStore) GetSignal(_ context.Context, id string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.signals[id]
	if !ok {
		return nil, fmt.Errorf("signal: %w", models.ErrNotFound)
	}
	return m.withOrderFlow(m.copySignal(s, true)), nil
}

func (m *MemoryStore) GetSignalByEvent(_ context.Context, eventID string) (*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byEvent[eventID]
	if !ok {
		return nil, fmt.Errorf("signal: %w", models.ErrNotFound)
	}
	return m.copySignal(m.signals[id], false), nil
}

func (m *MemoryStore) ListSignals(_ context.Context, userID string, q models.SignalQuery) ([]*models.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.Signal, 0)
	for _, s := range m.signals {
		a, ok := m.accounts[s.AccountID]
		if !ok || a.UserID != userID {
			continue
		}
		if q.AccountID != "" && s.AccountID != q.AccountID {
			continue
		}
		out = append(out, m.withOrderFlow(m.copySignal(s, true)))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) AppendDecision(_ context.Context, d *models.Decision) (*models.Signal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.signals[d.SignalID]
	if !ok {
		return nil, fmt.Errorf("signal: %w", models.ErrNotFound)
	}
	to, err := models.NextStatus(s.Status, d.NextAction)
	if err != nil {
		return nil, fmt.Errorf("%w: %s from %s", err, d.NextAction, s.Status)
	}
	s.Status = to
	m.decisions[s.ID] = append(m.decisions[s.ID], *d)
	return m.copySignal(s, true), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// Append implements AuditLog.
func (m *MemoryStore) Append(_ context.Context, e *models.AuditLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audit = append(m.audit, *e)
	return nil
}

// AuditEntries returns a copy of the audit trail.
func (m *MemoryStore) AuditEntries() []models.AuditLogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.AuditLogEntry(nil), m.audit...)
}

// Counts returns the number of stored events and signals.
func (m *MemoryStore) Counts() (events, signals int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.events), len(m.signals)
}

func (m *MemoryStore) withOrderFlow(s *models.Signal) *models.Signal {
	if e, ok := m.events[s.OrderFlowEventID]; ok {
		s.OrderFlow = &e
	}
	return s
}

func (m *MemoryStore) copySignal(s *models.Signal, withDecisions bool) *models.Signal {
	c := *s
	c.OrderFlow = nil
	c.Decisions = nil
	if withDecisions {
		c.Decisions = append([]models.Decision(nil), m.decisions[s.ID]...)
	}
	return &c
}
