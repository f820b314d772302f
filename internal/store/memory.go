package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is a mutex-guarded in-memory Store used by tests and local mode.
type Memory struct {
	mu        sync.RWMutex
	errors    map[string]*ErrorRecord
	tasks     map[string]*RemediationTask
	patches   map[string]*PatchSuggestion
	actions   []*AgentAction
	memories  []*LearningMemory
	snapshots map[int]*KnowledgeBaseSnapshot
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		errors:    make(map[string]*ErrorRecord),
		tasks:     make(map[string]*RemediationTask),
		patches:   make(map[string]*PatchSuggestion),
		snapshots: make(map[int]*KnowledgeBaseSnapshot),
	}
}

// CreateError implements Store.
func (m *Memory) CreateError(ctx context.Context, rec *ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.errors[rec.ID]; exists {
		return fmt.Errorf("error record %s already exists", rec.ID)
	}
	cp := *rec
	m.errors[rec.ID] = &cp
	return nil
}

// GetError implements Store.
func (m *Memory) GetError(ctx context.Context, id string) (*ErrorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.errors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

// UpdateError implements Store.
func (m *Memory) UpdateError(ctx context.Context, rec *ErrorRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.errors[rec.ID]; !ok {
		return ErrNotFound
	}
	cp := *rec
	m.errors[rec.ID] = &cp
	return nil
}

// ListErrorsSince implements Store.
func (m *Memory) ListErrorsSince(ctx context.Context, since time.Time) ([]*ErrorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ErrorRecord
	for _, rec := range m.errors {
		if !rec.EffectiveTime().Before(since) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EffectiveTime().Before(out[j].EffectiveTime())
	})
	return out, nil
}

// ListResolvedErrorsSince implements Store.
func (m *Memory) ListResolvedErrorsSince(ctx context.Context, since time.Time) ([]*ErrorRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ErrorRecord
	for _, rec := range m.errors {
		if rec.Status == ErrorStatusResolved && !rec.Updated.Before(since) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Updated.Before(out[j].Updated)
	})
	return out, nil
}

// CountErrorsByMessage implements Store.
func (m *Memory) CountErrorsByMessage(ctx context.Context, message string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, rec := range m.errors {
		if rec.Message == message {
			count++
		}
	}
	return count, nil
}

// CreateTask implements Store.
func (m *Memory) CreateTask(ctx context.Context, task *RemediationTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; exists {
		return fmt.Errorf("task %s already exists", task.ID)
	}
	cp := *task
	m.tasks[task.ID] = &cp
	return nil
}

// GetTask implements Store.
func (m *Memory) GetTask(ctx context.Context, id string) (*RemediationTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *task
	return &cp, nil
}

// CountTasksForError implements Store.
func (m *Memory) CountTasksForError(ctx context.Context, errorID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, task := range m.tasks {
		if task.ErrorID == errorID {
			count++
		}
	}
	return count, nil
}

// CreatePatch implements Store.
func (m *Memory) CreatePatch(ctx context.Context, patch *PatchSuggestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.patches[patch.ID]; exists {
		return fmt.Errorf("patch %s already exists", patch.ID)
	}
	cp := *patch
	m.patches[patch.ID] = &cp
	return nil
}

// AppendAction implements Store.
func (m *Memory) AppendAction(ctx context.Context, action *AgentAction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *action
	m.actions = append(m.actions, &cp)
	return nil
}

// CreateMemory implements Store.
func (m *Memory) CreateMemory(ctx context.Context, mem *LearningMemory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *mem
	m.memories = append(m.memories, &cp)
	return nil
}

// ListRecentMemories implements Store.
func (m *Memory) ListRecentMemories(ctx context.Context, n int) ([]*LearningMemory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*LearningMemory, 0, n)
	for i := len(m.memories) - 1; i >= 0 && len(out) < n; i-- {
		cp := *m.memories[i]
		out = append(out, &cp)
	}
	return out, nil
}

// MaxSnapshotVersion implements Store.
func (m *Memory) MaxSnapshotVersion(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	max := 0
	for v := range m.snapshots {
		if v > max {
			max = v
		}
	}
	return max, nil
}

// CreateSnapshot implements Store.
func (m *Memory) CreateSnapshot(ctx context.Context, snap *KnowledgeBaseSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.snapshots[snap.Version]; exists {
		return ErrVersionConflict
	}
	cp := *snap
	m.snapshots[snap.Version] = &cp
	return nil
}

// Actions returns a copy of the ledger, oldest first. Test helper.
func (m *Memory) Actions() []*AgentAction {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*AgentAction, 0, len(m.actions))
	for _, a := range m.actions {
		cp := *a
		out = append(out, &cp)
	}
	return out
}

// Tasks returns a copy of all tasks. Test helper.
func (m *Memory) Tasks() []*RemediationTask {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*RemediationTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

// Patches returns a copy of all patch suggestions. Test helper.
func (m *Memory) Patches() []*PatchSuggestion {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*PatchSuggestion, 0, len(m.patches))
	for _, p := range m.patches {
		cp := *p
		out = append(out, &cp)
	}
	return out
}

// Snapshot returns the snapshot at a version. Test helper.
func (m *Memory) Snapshot(version int) (*KnowledgeBaseSnapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snapshots[version]
	if !ok {
		return nil, false
	}
	cp := *snap
	return &cp, true
}
