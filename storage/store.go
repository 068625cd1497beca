// Package storage provides durable persistence for workflow state, backed by
// NATS JetStream KV in production and an in-memory map in tests.
package storage

import (
	"context"
	"errors"

	"github.com/rudihinds/propforge/workflow"
)

// ErrNotFound indicates no state exists for the requested workflow id.
var ErrNotFound = errors.New("workflow not found")

// Store persists workflow state. Save is called after every applied delta
// and before an interrupt suspends, so a crash between steps never loses
// more than one in-flight delta.
type Store interface {
	// Save persists the state under the workflow id, replacing any prior
	// value.
	Save(ctx context.Context, workflowID string, st *workflow.WorkflowState) error

	// Load returns the persisted state, or ErrNotFound.
	Load(ctx context.Context, workflowID string) (*workflow.WorkflowState, error)

	// Delete removes the persisted state. Deleting a missing id is not an
	// error.
	Delete(ctx context.Context, workflowID string) error

	// List returns all persisted workflow ids.
	List(ctx context.Context) ([]string, error)
}
