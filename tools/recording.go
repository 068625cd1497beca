package tools

import (
	"context"
	"log/slog"
	"time"

	"github.com/rudihinds/propforge/llm"
)

// MaxRecordedResultLength is the max length of result content in a log line.
const MaxRecordedResultLength = 500

// RecordingExecutor wraps an Executor and logs timing and outcome for each
// call. The hook, when set, receives the same observations for metrics.
type RecordingExecutor struct {
	inner  Executor
	logger *slog.Logger
	hook   func(tool string, duration time.Duration, failed bool)
}

// RecordingOption configures a RecordingExecutor.
type RecordingOption func(*RecordingExecutor)

// WithRecordingLogger sets the logger.
func WithRecordingLogger(logger *slog.Logger) RecordingOption {
	return func(r *RecordingExecutor) {
		r.logger = logger
	}
}

// WithRecordingHook sets a per-call observation hook.
func WithRecordingHook(hook func(tool string, duration time.Duration, failed bool)) RecordingOption {
	return func(r *RecordingExecutor) {
		r.hook = hook
	}
}

// NewRecordingExecutor wraps an executor with call recording.
func NewRecordingExecutor(inner Executor, opts ...RecordingOption) *RecordingExecutor {
	r := &RecordingExecutor{
		inner:  inner,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Execute runs the underlying executor and records the call.
func (r *RecordingExecutor) Execute(ctx context.Context, call llm.ToolCall) (ToolResult, error) {
	startedAt := time.Now()

	result, execErr := r.inner.Execute(ctx, call)

	duration := time.Since(startedAt)
	failed := execErr != nil || result.Error != ""

	preview := result.Content
	if len(preview) > MaxRecordedResultLength {
		preview = preview[:MaxRecordedResultLength] + "..."
	}

	if failed {
		errMsg := result.Error
		if execErr != nil {
			errMsg = execErr.Error()
		}
		r.logger.Warn("Tool call failed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration_ms", duration.Milliseconds(),
			"error", errMsg)
	} else {
		r.logger.Debug("Tool call completed",
			"tool", call.Name,
			"call_id", call.ID,
			"duration_ms", duration.Milliseconds(),
			"result", preview)
	}

	if r.hook != nil {
		r.hook(call.Name, duration, failed)
	}

	return result, execErr
}

// ListTools delegates to the inner executor.
func (r *RecordingExecutor) ListTools() []llm.ToolDefinition {
	return r.inner.ListTools()
}
