// Package tools provides the tool execution surface for research agents.
// Executors are registered globally and looked up by tool name; results are
// plain values that the research coordinator turns into state deltas.
package tools

import (
	"context"

	"github.com/rudihinds/propforge/llm"
)

// ToolResult is the outcome of one tool execution. Content is the payload
// the model sees, usually JSON produced by the executor. A non-empty Error
// with a nil execution error means the tool ran but the operation failed in
// a way the model should be told about.
type ToolResult struct {
	// CallID correlates the result with the originating call.
	CallID string `json:"call_id"`

	// Content is the result payload returned to the model.
	Content string `json:"content"`

	// Error is a model-visible failure description.
	Error string `json:"error,omitempty"`
}

// Executor executes one or more named tools.
type Executor interface {
	// Execute runs the tool named in the call.
	Execute(ctx context.Context, call llm.ToolCall) (ToolResult, error)

	// ListTools returns the definitions of the tools this executor serves.
	ListTools() []llm.ToolDefinition
}
