package cache

import (
	"context"
	"sort"
	"sync"

	"github.com/starford/ticketdesk/internal/apperr"
	"github.com/starford/ticketdesk/internal/models"
)

// Memory is a process-local Cache. It does not survive restarts and is used
// for tests and the "memory" driver.
type Memory struct {
	mu      sync.Mutex
	tickets map[string]models.Ticket
	queue   map[int64]models.PendingChange
	seq     int64
	closed  bool
}

// NewMemory returns an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		tickets: make(map[string]models.Ticket),
		queue:   make(map[int64]models.PendingChange),
	}
}

func (m *Memory) check() error {
	if m.closed {
		return apperr.ErrCacheClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) ReplaceAll(_ context.Context, tickets []models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.tickets = make(map[string]models.Ticket, len(tickets))
	for _, t := range tickets {
		m.tickets[t.ID] = t.Clone()
	}
	return nil
}

func (m *Memory) ReadAll(_ context.Context) ([]models.Ticket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]models.Ticket, 0, len(m.tickets))
	for _, t := range m.tickets {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) UpsertOne(_ context.Context, t models.Ticket) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.tickets[t.ID] = t.Clone()
	return nil
}

func (m *Memory) Append(_ context.Context, c models.PendingChange) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	m.seq++
	c.Key = m.seq
	m.queue[c.Key] = c
	return c.Key, nil
}

func (m *Memory) ReadAllOrdered(_ context.Context) ([]models.PendingChange, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	out := make([]models.PendingChange, 0, len(m.queue))
	for _, c := range m.queue {
		out = append(out, c)
	}
	sortChanges(out)
	return out, nil
}

func (m *Memory) Remove(_ context.Context, key int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	delete(m.queue, key)
	return nil
}

func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return 0, err
	}
	return len(m.queue), nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.queue = make(map[int64]models.PendingChange)
	return nil
}

// sortChanges orders by timestamp, then by key for equal timestamps.
func sortChanges(cs []models.PendingChange) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Timestamp != cs[j].Timestamp {
			return cs[i].Timestamp < cs[j].Timestamp
		}
		return cs[i].Key < cs[j].Key
	})
}
