package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rudihinds/propforge/llm"
)

// registry maps tool names to the executor serving them.
var (
	registryMu sync.RWMutex
	registry   = make(map[string]Executor)
)

// RegisterTool binds a tool name to an executor. Registering a name twice is
// an error so wiring mistakes surface at startup.
func RegisterTool(name string, exec Executor) error {
	if name == "" {
		return fmt.Errorf("tool name is required")
	}
	if exec == nil {
		return fmt.Errorf("executor is required for tool %s", name)
	}

	registryMu.Lock()
	defer registryMu.Unlock()

	if _, exists := registry[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	registry[name] = exec
	return nil
}

// RegisterExecutor registers every tool the executor lists.
func RegisterExecutor(exec Executor) error {
	for _, def := range exec.ListTools() {
		if err := RegisterTool(def.Name, exec); err != nil {
			return err
		}
	}
	return nil
}

// GetTool returns the executor for a tool name, or nil.
func GetTool(name string) Executor {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return registry[name]
}

// Execute dispatches a call to the registered executor.
func Execute(ctx context.Context, call llm.ToolCall) (ToolResult, error) {
	exec := GetTool(call.Name)
	if exec == nil {
		return ToolResult{}, fmt.Errorf("unknown tool: %s", call.Name)
	}
	return exec.Execute(ctx, call)
}

// ListToolDefinitions returns the definitions of every registered tool,
// sorted by name, matching each name to its own definition.
func ListToolDefinitions() []llm.ToolDefinition {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)

	var defs []llm.ToolDefinition
	for _, name := range names {
		for _, def := range registry[name].ListTools() {
			if def.Name == name {
				defs = append(defs, def)
				break
			}
		}
	}
	return defs
}

// ResetRegistry clears all registrations. Test helper.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry = make(map[string]Executor)
}
