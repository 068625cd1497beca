package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/rudihinds/propforge/workflow"
)

// MemoryStore is an in-memory Store used in tests and for ephemeral runs.
// Values are cloned on the way in and out so callers cannot alias the
// stored state.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]*workflow.WorkflowState
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]*workflow.WorkflowState),
	}
}

// Save stores a clone of the state.
func (m *MemoryStore) Save(_ context.Context, workflowID string, st *workflow.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[workflowID] = st.Clone()
	return nil
}

// Load returns a clone of the stored state, or ErrNotFound.
func (m *MemoryStore) Load(_ context.Context, workflowID string) (*workflow.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.states[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	return st.Clone(), nil
}

// Delete removes the stored state.
func (m *MemoryStore) Delete(_ context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, workflowID)
	return nil
}

// List returns all stored workflow ids, sorted.
func (m *MemoryStore) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
