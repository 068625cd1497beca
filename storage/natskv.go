package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/rudihinds/propforge/workflow"
)

// WorkflowsBucket is the KV bucket name for workflow state.
const WorkflowsBucket = "PROPFORGE_WORKFLOWS"

// NATSStore persists workflow state in a NATS JetStream KV bucket.
type NATSStore struct {
	bucket jetstream.KeyValue
}

// NATSStoreConfig configures the KV bucket.
type NATSStoreConfig struct {
	// Bucket overrides the bucket name. Defaults to WorkflowsBucket.
	Bucket string

	// TTL expires abandoned workflows. Zero disables expiry.
	TTL time.Duration
}

// DefaultNATSStoreConfig returns the standard bucket configuration.
func DefaultNATSStoreConfig() NATSStoreConfig {
	return NATSStoreConfig{
		Bucket: WorkflowsBucket,
		TTL:    30 * 24 * time.Hour,
	}
}

// NewNATSStore creates a store over an existing NATS connection.
// CreateOrUpdateKeyValue is idempotent and handles startup races between
// multiple processes.
func NewNATSStore(ctx context.Context, nc *nats.Conn, cfg NATSStoreConfig) (*NATSStore, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	if cfg.Bucket == "" {
		cfg.Bucket = WorkflowsBucket
	}

	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      cfg.Bucket,
		Description: "Proposal workflow state",
		TTL:         cfg.TTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}

	return &NATSStore{bucket: bucket}, nil
}

// Save persists the state as JSON under the workflow id.
func (s *NATSStore) Save(ctx context.Context, workflowID string, st *workflow.WorkflowState) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal workflow state: %w", err)
	}

	if _, err := s.bucket.Put(ctx, workflowID, data); err != nil {
		return fmt.Errorf("put workflow state: %w", err)
	}
	return nil
}

// Load retrieves and decodes the state for a workflow id.
func (s *NATSStore) Load(ctx context.Context, workflowID string) (*workflow.WorkflowState, error) {
	entry, err := s.bucket.Get(ctx, workflowID)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get workflow state: %w", err)
	}

	var st workflow.WorkflowState
	if err := json.Unmarshal(entry.Value(), &st); err != nil {
		return nil, fmt.Errorf("unmarshal workflow state: %w", err)
	}
	return &st, nil
}

// Delete removes the state for a workflow id.
func (s *NATSStore) Delete(ctx context.Context, workflowID string) error {
	err := s.bucket.Delete(ctx, workflowID)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("delete workflow state: %w", err)
	}
	return nil
}

// List returns all persisted workflow ids.
func (s *NATSStore) List(ctx context.Context) ([]string, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		// Empty bucket returns ErrNoKeysFound - this is not an error
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}
