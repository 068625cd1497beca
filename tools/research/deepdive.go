package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
)

// ToolEntityDeepDive is the deep-dive tool name.
const ToolEntityDeepDive = "entity_deep_dive"

// Invoker is the narrow agent surface the deep-dive executor needs.
type Invoker interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// DeepDiveReport is the entity_deep_dive tool payload.
type DeepDiveReport struct {
	Name       string            `json:"name"`
	Type       string            `json:"type"`
	Summary    string            `json:"summary"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// DeepDiveExecutor serves the entity_deep_dive tool: a focused model call
// that turns collected context about one entity into structured facts.
type DeepDiveExecutor struct {
	invoker Invoker
}

// NewDeepDiveExecutor creates the deep-dive executor.
func NewDeepDiveExecutor(invoker Invoker) *DeepDiveExecutor {
	return &DeepDiveExecutor{invoker: invoker}
}

// ListTools implements tools.Executor.
func (e *DeepDiveExecutor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        ToolEntityDeepDive,
		Description: "Produce a structured profile of one named entity from the research context gathered so far.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"name": map[string]any{
					"type":        "string",
					"description": "The entity name",
				},
				"type": map[string]any{
					"type":        "string",
					"description": "The entity type, e.g. funder, program, regulation",
				},
				"context": map[string]any{
					"type":        "string",
					"description": "Collected text about the entity to distill",
				},
			},
			"required": []string{"name", "type", "context"},
		},
	}}
}

const deepDiveSystemPrompt = `You distill research context about a single entity into a structured profile.
Respond with JSON only: {"summary": "...", "attributes": {"key": "value", ...}}.
Attribute keys are short snake_case facts (e.g. "funding_range", "focus_areas", "deadline").
Use only facts present in the provided context.`

// Execute implements tools.Executor.
func (e *DeepDiveExecutor) Execute(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	var args struct {
		Name    string `json:"name"`
		Type    string `json:"type"`
		Context string `json:"context"`
	}
	if err := call.ArgumentsInto(&args); err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("parse entity_deep_dive arguments: %w", err)
	}
	if args.Name == "" || args.Context == "" {
		return tools.ToolResult{CallID: call.ID, Error: "name and context are required"}, nil
	}

	resp, err := e.invoker.Complete(ctx, llm.Request{
		Capability: "fast",
		Messages: []llm.Message{
			{Role: "system", Content: deepDiveSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Entity: %s (%s)\n\nContext:\n%s", args.Name, args.Type, args.Context)},
		},
	})
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("deep dive for %s: %w", args.Name, err)
	}

	report := DeepDiveReport{Name: args.Name, Type: args.Type}
	if err := json.Unmarshal([]byte(extractJSONObject(resp.Content)), &struct {
		Summary    *string            `json:"summary"`
		Attributes *map[string]string `json:"attributes"`
	}{&report.Summary, &report.Attributes}); err != nil {
		// Model returned prose instead of JSON: keep it as the summary.
		report.Summary = strings.TrimSpace(resp.Content)
	}

	payload, err := json.Marshal(report)
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("marshal deep dive report: %w", err)
	}
	return tools.ToolResult{CallID: call.ID, Content: string(payload)}, nil
}

// extractJSONObject trims surrounding prose or code fences from a model
// response that should contain one JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
