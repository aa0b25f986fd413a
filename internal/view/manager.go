package view

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"opsconsole/internal/core"
	applog "opsconsole/internal/log"
	"opsconsole/internal/store"
)

// Manager owns the sessions of every configured view and fans snapshots
// out to watchers.
type Manager struct {
	sessions map[string]*Session
	logger   *applog.Logger

	mu       sync.Mutex
	watchers map[string]map[int]chan Snapshot
	nextID   int
}

func NewManager(defs []Definition, categories []core.Category, sub store.Subscriber, logger *applog.Logger) (*Manager, error) {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	m := &Manager{
		sessions: make(map[string]*Session, len(defs)),
		logger:   logger,
		watchers: map[string]map[int]chan Snapshot{},
	}
	for _, def := range defs {
		if err := def.Validate(); err != nil {
			return nil, err
		}
		if _, dup := m.sessions[def.Name]; dup {
			return nil, fmt.Errorf("duplicate view %q", def.Name)
		}
		m.sessions[def.Name] = NewSession(def, categories, sub, logger, m.broadcast)
	}
	return m, nil
}

// Start starts every session.
func (m *Manager) Start(ctx context.Context) error {
	for _, name := range m.Names() {
		if err := m.sessions[name].Start(ctx); err != nil {
			return fmt.Errorf("start view %s: %w", name, err)
		}
		m.logger.Info("View started",
			applog.FieldView, name,
			applog.FieldPath, m.sessions[name].def.Paths)
	}
	return nil
}

// Names lists the configured views in name order.
func (m *Manager) Names() []string {
	names := make([]string, 0, len(m.sessions))
	for n := range m.sessions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (m *Manager) Definition(name string) (Definition, bool) {
	s, ok := m.sessions[name]
	if !ok {
		return Definition{}, false
	}
	return s.def, true
}

// Snapshot returns the latest state of the named view.
func (m *Manager) Snapshot(name string) (Snapshot, bool) {
	s, ok := m.sessions[name]
	if !ok {
		return Snapshot{}, false
	}
	return s.Snapshot(), true
}

// Watch returns a channel receiving the named view's snapshots, starting
// with the current one. A slow reader only sees the latest snapshot. The
// cancel func closes the channel.
func (m *Manager) Watch(name string) (<-chan Snapshot, func(), error) {
	s, ok := m.sessions[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown view %q", name)
	}

	ch := make(chan Snapshot, 1)
	current := s.Snapshot()
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.watchers[name] == nil {
		m.watchers[name] = map[int]chan Snapshot{}
	}
	m.watchers[name][id] = ch
	offer(ch, current)
	m.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers[name], id)
			m.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

func (m *Manager) broadcast(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.watchers[snap.View] {
		offer(ch, snap)
	}
}

// offer replaces any unread snapshot in ch with the newer of the two.
// Callers hold the manager lock.
func offer(ch chan Snapshot, snap Snapshot) {
	for {
		select {
		case ch <- snap:
			return
		default:
		}
		select {
		case old := <-ch:
			if old.Version > snap.Version {
				snap = old
			}
		default:
		}
	}
}

// Close stops every session.
func (m *Manager) Close() {
	for _, s := range m.sessions {
		s.Close()
	}
}
