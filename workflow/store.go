package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Persister saves and loads workflow state. Implementations live in the
// storage package; the store only needs this narrow surface.
type Persister interface {
	Save(ctx context.Context, workflowID string, st *WorkflowState) error
	Load(ctx context.Context, workflowID string) (*WorkflowState, error)
}

// Store is the single writer path for WorkflowState. Concurrent components
// submit deltas; the store serializes reduction under a mutex, persists after
// every applied delta, and hands out snapshot clones so readers always see a
// fully merged, consistent state.
type Store struct {
	mu      sync.Mutex
	state   *WorkflowState
	persist Persister
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger.
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store around an initial state. The persister is required:
// every applied delta is saved so a crash between steps never loses more than
// one in-flight delta.
func NewStore(initial *WorkflowState, persist Persister, opts ...StoreOption) (*Store, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial state is required")
	}
	if persist == nil {
		return nil, fmt.Errorf("persister is required")
	}

	s := &Store{
		state:   initial.Clone(),
		persist: persist,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// LoadStore restores a store from persisted state.
func LoadStore(ctx context.Context, workflowID string, persist Persister, opts ...StoreOption) (*Store, error) {
	if persist == nil {
		return nil, fmt.Errorf("persister is required")
	}
	st, err := persist.Load(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("load workflow %s: %w", workflowID, err)
	}
	return NewStore(st, persist, opts...)
}

// Apply reduces the deltas in order, persists the result, and returns a
// snapshot of the new state. Safe for concurrent use; deltas from concurrent
// callers are serialized and each sees a consistent before-state.
func (s *Store) Apply(ctx context.Context, deltas ...Delta) (*WorkflowState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.state
	for _, d := range deltas {
		next = Apply(next, d, s.logger)
	}

	if err := s.persist.Save(ctx, next.ID, next); err != nil {
		// The in-memory state is not advanced on a failed save, so the
		// caller can retry the same deltas without double-applying.
		return nil, fmt.Errorf("persist workflow %s: %w", next.ID, err)
	}

	s.state = next
	return next.Clone(), nil
}

// Snapshot returns a clone of the current state.
func (s *Store) Snapshot() *WorkflowState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// WorkflowID returns the id of the stored workflow.
func (s *Store) WorkflowID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.ID
}
