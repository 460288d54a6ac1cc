/*
manager.go - Registry of engines with persistence

PURPOSE:
  Owns one Engine per session, creates sessions with generated IDs,
  persists transitions to a SessionStore and drives all running engines
  from a single tick source.

PERSISTENCE:
  - Start/Stop/Reset/Create save immediately.
  - Ticks do not write; Checkpoint saves every running session and is
    called on the coarse mirror cadence.
  - Load restores every stored session, Stopped (see store.go), with
    its engine continuing from the stored Seq.
  - Saves of one session are serialised and each record carries the
    engine Seq it was taken at, so a checkpoint racing a transition can
    never leave the older state in the store.

HOOKS:
  OnCreate callbacks run for every engine the manager creates or loads,
  so transports (websocket hub, activity mirrors) can register sinks
  without the manager knowing about them.
*/
package earnings

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type managedEngine struct {
	engine    *Engine
	label     string
	createdAt time.Time

	saveMu sync.Mutex
}

type Manager struct {
	mu      sync.RWMutex
	engines map[SessionID]*managedEngine
	store   SessionStore
	clock   Clock
	hooks   []func(*Engine)
}

// NewManager creates a manager. store may be nil for a purely in-memory run.
func NewManager(store SessionStore, clock Clock) *Manager {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Manager{
		engines: make(map[SessionID]*managedEngine),
		store:   store,
		clock:   clock,
	}
}

// OnCreate registers fn to run for every engine created or loaded after the call.
func (m *Manager) OnCreate(fn func(*Engine)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, fn)
}

// Clock returns the manager's clock.
func (m *Manager) Clock() Clock { return m.clock }

// =============================================================================
// LIFECYCLE
// =============================================================================

// Load restores stored sessions that are not already managed.
func (m *Manager) Load(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	recs, err := m.store.ListSessions(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	loaded := 0
	for _, rec := range recs {
		m.mu.Lock()
		if _, exists := m.engines[rec.ID]; exists {
			m.mu.Unlock()
			continue
		}
		me := &managedEngine{
			engine:    RestoreEngine(rec.Restore(), m.clock, rec.Seq),
			label:     rec.Label,
			createdAt: rec.CreatedAt,
		}
		m.engines[rec.ID] = me
		hooks := append([]func(*Engine){}, m.hooks...)
		m.mu.Unlock()

		for _, fn := range hooks {
			fn(me.engine)
		}
		loaded++
	}
	return loaded, nil
}

// Create starts tracking a new stopped session under a generated ID.
func (m *Manager) Create(ctx context.Context, label string, cfg WageConfig) (*Engine, error) {
	return m.CreateWithID(ctx, SessionID(uuid.NewString()), label, cfg)
}

// CreateWithID is Create with a caller-chosen ID.
func (m *Manager) CreateWithID(ctx context.Context, id SessionID, label string, cfg WageConfig) (*Engine, error) {
	if id == "" {
		id = SessionID(uuid.NewString())
	}

	m.mu.Lock()
	if _, exists := m.engines[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	me := &managedEngine{
		engine:    NewEngine(NewSession(id, cfg), m.clock),
		label:     label,
		createdAt: m.clock.Now().UTC(),
	}
	m.engines[id] = me
	hooks := append([]func(*Engine){}, m.hooks...)
	m.mu.Unlock()

	if err := m.save(ctx, me); err != nil {
		m.mu.Lock()
		delete(m.engines, id)
		m.mu.Unlock()
		return nil, err
	}

	for _, fn := range hooks {
		fn(me.engine)
	}
	return me.engine, nil
}

// Get returns the engine for id.
func (m *Manager) Get(id SessionID) (*Engine, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	me, ok := m.engines[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return me.engine, nil
}

// Label returns the display label of a session.
func (m *Manager) Label(id SessionID) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if me, ok := m.engines[id]; ok {
		return me.label
	}
	return ""
}

// CreatedAt returns when a session was created.
func (m *Manager) CreatedAt(id SessionID) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if me, ok := m.engines[id]; ok {
		return me.createdAt
	}
	return time.Time{}
}

// List returns all engines ordered by creation time.
func (m *Manager) List() []*Engine {
	m.mu.RLock()
	all := make([]*managedEngine, 0, len(m.engines))
	for _, me := range m.engines {
		all = append(all, me)
	}
	m.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].createdAt.Equal(all[j].createdAt) {
			return all[i].engine.ID() < all[j].engine.ID()
		}
		return all[i].createdAt.Before(all[j].createdAt)
	})
	out := make([]*Engine, len(all))
	for i, me := range all {
		out[i] = me.engine
	}
	return out
}

// Delete stops tracking a session and removes it from the store.
// Sinks registered on the engine are left to their owners.
func (m *Manager) Delete(ctx context.Context, id SessionID) error {
	m.mu.Lock()
	me, ok := m.engines[id]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	delete(m.engines, id)
	m.mu.Unlock()

	me.engine.Stop()
	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	return nil
}

// =============================================================================
// TRANSITIONS (persisted)
// =============================================================================

func (m *Manager) Start(ctx context.Context, id SessionID) (Snapshot, error) {
	return m.transition(ctx, id, (*Engine).Start)
}

func (m *Manager) Stop(ctx context.Context, id SessionID) (Snapshot, error) {
	return m.transition(ctx, id, (*Engine).Stop)
}

func (m *Manager) Reset(ctx context.Context, id SessionID) (Snapshot, error) {
	return m.transition(ctx, id, (*Engine).Reset)
}

func (m *Manager) transition(ctx context.Context, id SessionID, fn func(*Engine) Snapshot) (Snapshot, error) {
	m.mu.RLock()
	me, ok := m.engines[id]
	m.mu.RUnlock()
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	snap := fn(me.engine)
	if err := m.save(ctx, me); err != nil {
		return snap, err
	}
	return snap, nil
}

// TickAll ticks every running engine at now. Returns how many ticked.
func (m *Manager) TickAll(now time.Time) int {
	ticked := 0
	for _, eng := range m.List() {
		if _, ok := eng.TickAt(now); ok {
			ticked++
		}
	}
	return ticked
}

// Checkpoint saves every running session's elapsed time.
func (m *Manager) Checkpoint(ctx context.Context) error {
	if m.store == nil {
		return nil
	}

	m.mu.RLock()
	all := make([]*managedEngine, 0, len(m.engines))
	for _, me := range m.engines {
		all = append(all, me)
	}
	m.mu.RUnlock()

	var firstErr error
	for _, me := range all {
		if !me.engine.Session().Running() {
			continue
		}
		if err := m.save(ctx, me); err != nil {
			log.Printf("[Manager] checkpoint %s: %v", me.engine.ID(), err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Record returns the persisted form of a managed session.
func (m *Manager) Record(id SessionID) (SessionRecord, error) {
	m.mu.RLock()
	me, ok := m.engines[id]
	m.mu.RUnlock()
	if !ok {
		return SessionRecord{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return m.record(me), nil
}

func (m *Manager) record(me *managedEngine) SessionRecord {
	s, seq := me.engine.state()
	return SessionRecord{
		ID:        s.ID(),
		Label:     me.label,
		Config:    s.Config(),
		Elapsed:   s.Elapsed(),
		Running:   s.Running(),
		Seq:       seq,
		CreatedAt: me.createdAt,
		UpdatedAt: m.clock.Now().UTC(),
	}
}

// save takes the record under the session's save lock so records reach
// the store in the order they were taken.
func (m *Manager) save(ctx context.Context, me *managedEngine) error {
	if m.store == nil {
		return nil
	}
	me.saveMu.Lock()
	defer me.saveMu.Unlock()
	if err := m.store.SaveSession(ctx, m.record(me)); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
