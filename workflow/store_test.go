package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPersister is a minimal in-process persister for store tests.
type memPersister struct {
	mu     sync.Mutex
	states map[string]*WorkflowState
	saves  int
	fail   error
}

func newMemPersister() *memPersister {
	return &memPersister{states: make(map[string]*WorkflowState)}
}

func (m *memPersister) Save(_ context.Context, workflowID string, st *WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.saves++
	m.states[workflowID] = st.Clone()
	return nil
}

func (m *memPersister) Load(_ context.Context, workflowID string) (*WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[workflowID]
	if !ok {
		return nil, errors.New("not found")
	}
	return st.Clone(), nil
}

func TestStore_ApplyPersistsEveryDelta(t *testing.T) {
	persist := newMemPersister()
	st := NewWorkflowState(nil, []string{"topic"})
	store, err := NewStore(st, persist)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Apply(ctx, ResearchDelta{Topic: "topic", SearchQueries: []string{"q1"}})
	require.NoError(t, err)
	_, err = store.Apply(ctx, ResearchDelta{Topic: "topic", SearchQueries: []string{"q2"}})
	require.NoError(t, err)

	assert.Equal(t, 2, persist.saves)

	saved, err := persist.Load(ctx, store.WorkflowID())
	require.NoError(t, err)
	assert.Equal(t, []string{"q1", "q2"}, saved.Research["topic"].SearchQueries)
	assert.Equal(t, 2, saved.Step)
}

func TestStore_FailedSaveDoesNotAdvance(t *testing.T) {
	persist := newMemPersister()
	st := NewWorkflowState(nil, []string{"topic"})
	store, err := NewStore(st, persist)
	require.NoError(t, err)

	ctx := context.Background()
	persist.fail = errors.New("kv unavailable")
	_, err = store.Apply(ctx, ResearchDelta{Topic: "topic", SearchQueries: []string{"q1"}})
	require.Error(t, err)

	// In-memory state did not move, so the same delta can be retried
	assert.Equal(t, 0, store.Snapshot().Step)

	persist.fail = nil
	out, err := store.Apply(ctx, ResearchDelta{Topic: "topic", SearchQueries: []string{"q1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"q1"}, out.Research["topic"].SearchQueries)
	assert.Equal(t, 1, out.Step)
}

func TestStore_ConcurrentApply(t *testing.T) {
	persist := newMemPersister()
	st := NewWorkflowState(nil, []string{"a", "b"})
	store, err := NewStore(st, persist)
	require.NoError(t, err)

	ctx := context.Background()
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.Apply(ctx, ResearchDelta{Topic: "a", Insights: []Insight{{Text: "finding a"}}})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.Apply(ctx, ResearchDelta{Topic: "b", Insights: []Insight{{Text: "finding b"}}})
		}()
	}
	wg.Wait()

	final := store.Snapshot()
	assert.Equal(t, 20, final.Step)
	// Idempotent merge collapses identical insights
	assert.Len(t, final.Research["a"].Insights, 1)
	assert.Len(t, final.Research["b"].Insights, 1)
}

func TestStore_SnapshotIsIsolated(t *testing.T) {
	persist := newMemPersister()
	store, err := NewStore(NewWorkflowState([]*Section{{ID: "a"}}, nil), persist)
	require.NoError(t, err)

	snap := store.Snapshot()
	snap.Sections["a"].Content = "mutated"

	assert.Empty(t, store.Snapshot().Sections["a"].Content)
}

func TestLoadStore_RoundTrip(t *testing.T) {
	persist := newMemPersister()
	st := NewWorkflowState([]*Section{{ID: "a"}}, []string{"topic"})
	store, err := NewStore(st, persist)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = store.Apply(ctx, ResearchDelta{Topic: "topic", SearchQueries: []string{"q1"}})
	require.NoError(t, err)

	restored, err := LoadStore(ctx, st.ID, persist)
	require.NoError(t, err)
	assert.Equal(t, st.ID, restored.WorkflowID())
	assert.Equal(t, []string{"q1"}, restored.Snapshot().Research["topic"].SearchQueries)
}

func TestNewStore_Validation(t *testing.T) {
	_, err := NewStore(nil, newMemPersister())
	assert.Error(t, err)

	_, err = NewStore(NewWorkflowState(nil, nil), nil)
	assert.Error(t, err)
}
