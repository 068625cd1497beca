package llm

import "encoding/json"

// ToolDefinition describes a tool the model may call during an invocation.
type ToolDefinition struct {
	// Name is the tool identifier (e.g., "research_search").
	Name string `json:"name"`

	// Description tells the model when to use the tool.
	Description string `json:"description"`

	// Parameters is a JSON Schema object describing the arguments.
	Parameters map[string]any `json:"parameters"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	// ID correlates the call with its result.
	ID string `json:"id"`

	// Name is the tool to execute.
	Name string `json:"name"`

	// Arguments is the raw JSON argument object from the model.
	Arguments json.RawMessage `json:"arguments"`
}

// ArgumentsInto decodes the call arguments into a typed struct.
func (c ToolCall) ArgumentsInto(v any) error {
	if len(c.Arguments) == 0 {
		return nil
	}
	return json.Unmarshal(c.Arguments, v)
}
