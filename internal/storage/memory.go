package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"tgcast/internal/task"
)

// memoryStore keeps tasks in a map. Records are deep-copied through JSON on
// the way in and out so callers cannot alias stored state.
type memoryStore struct {
	mu    sync.RWMutex
	tasks map[string]*task.Task
}

// NewMemory returns an empty in-process store.
func NewMemory() Store {
	return &memoryStore{tasks: map[string]*task.Task{}}
}

func clone(t *task.Task) *task.Task {
	b, _ := json.Marshal(t)
	var cp task.Task
	_ = json.Unmarshal(b, &cp)
	return &cp
}

func (m *memoryStore) CreateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; ok {
		return ErrExists
	}
	m.tasks[t.ID] = clone(t)
	return nil
}

func (m *memoryStore) GetTask(_ context.Context, id string) (*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(t), nil
}

func (m *memoryStore) UpdateTask(_ context.Context, t *task.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tasks[t.ID]; !ok {
		return ErrNotFound
	}
	m.tasks[t.ID] = clone(t)
	return nil
}

func (m *memoryStore) SetStatus(_ context.Context, id string, from, to task.Status) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != from {
		return false, nil
	}
	t.Status = to
	return true, nil
}

func (m *memoryStore) ListTasks(_ context.Context, limit int) ([]*task.Task, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*task.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, clone(t))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStore) ListExpirable(_ context.Context, now time.Time) ([]*task.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*task.Task
	for _, t := range m.tasks {
		if at, ok := t.ExpiresAt(); ok && !at.After(now) {
			out = append(out, clone(t))
		}
	}
	return out, nil
}

func (m *memoryStore) DeleteAll(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.tasks))
	m.tasks = map[string]*task.Task{}
	return n, nil
}

func (m *memoryStore) Close() error { return nil }
