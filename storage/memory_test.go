package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudihinds/propforge/workflow"
)

func sampleState() *workflow.WorkflowState {
	return workflow.NewWorkflowState([]*workflow.Section{
		{ID: "problem_statement", Title: "Problem Statement"},
	}, []string{"funders"})
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := sampleState()

	require.NoError(t, store.Save(ctx, st.ID, st))

	loaded, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Equal(t, st.ID, loaded.ID)
	assert.Contains(t, loaded.Sections, "problem_statement")
	assert.Contains(t, loaded.Research, "funders")
}

func TestMemoryStore_LoadMissing(t *testing.T) {
	store := NewMemoryStore()
	_, err := store.Load(context.Background(), "wf-missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_ClonesOnSaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	st := sampleState()
	require.NoError(t, store.Save(ctx, st.ID, st))

	// Mutating the original after Save must not leak into the store.
	st.Sections["problem_statement"].Content = "mutated"

	loaded, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Sections["problem_statement"].Content)

	// Mutating a loaded copy must not affect later loads.
	loaded.Sections["problem_statement"].Content = "also mutated"
	again, err := store.Load(ctx, st.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Sections["problem_statement"].Content)
}

func TestMemoryStore_DeleteAndList(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a := sampleState()
	b := sampleState()
	require.NoError(t, store.Save(ctx, "wf-b", b))
	require.NoError(t, store.Save(ctx, "wf-a", a))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-a", "wf-b"}, ids)

	require.NoError(t, store.Delete(ctx, "wf-a"))
	require.NoError(t, store.Delete(ctx, "wf-a"))

	ids, err = store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"wf-b"}, ids)
}

func TestDefaultNATSStoreConfig(t *testing.T) {
	cfg := DefaultNATSStoreConfig()
	assert.Equal(t, WorkflowsBucket, cfg.Bucket)
	assert.Equal(t, 30*24*60*60, int(cfg.TTL.Seconds()))
}
