// Package store provides in-memory SessionStore and ActivityStore
// implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/touchfish/earnings"
	"github.com/warp/touchfish/mirror"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	sessions   map[earnings.SessionID]earnings.SessionRecord
	activities map[string]mirror.ActivityRecord
}

func NewMemory() *Memory {
	return &Memory{
		sessions:   make(map[earnings.SessionID]earnings.SessionRecord),
		activities: make(map[string]mirror.ActivityRecord),
	}
}

func (m *Memory) SaveSession(_ context.Context, rec earnings.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[rec.ID]; ok {
		if existing.Seq > rec.Seq {
			return nil
		}
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = existing.CreatedAt
		}
	}
	m.sessions[rec.ID] = rec
	return nil
}

func (m *Memory) GetSession(_ context.Context, id earnings.SessionID) (*earnings.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) ListSessions(_ context.Context) ([]earnings.SessionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]earnings.SessionRecord, 0, len(m.sessions))
	for _, rec := range m.sessions {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *Memory) DeleteSession(_ context.Context, id earnings.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	for aid, a := range m.activities {
		if a.SessionID == id {
			delete(m.activities, aid)
		}
	}
	return nil
}

func (m *Memory) SaveActivity(_ context.Context, rec mirror.ActivityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activities[rec.ID] = rec
	return nil
}

func (m *Memory) ListActivities(_ context.Context) ([]mirror.ActivityRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]mirror.ActivityRecord, 0, len(m.activities))
	for _, rec := range m.activities {
		result = append(result, rec)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}
