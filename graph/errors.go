package graph

import "fmt"

// ConfigError indicates an invalid dependency configuration. It is fatal:
// a workflow must not start with a broken section graph.
type ConfigError struct {
	// Section is the section id the error was detected at.
	Section string

	// Message describes what is wrong with the configuration.
	Message string
}

func (e *ConfigError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("invalid dependency graph: %s", e.Message)
	}
	return fmt.Sprintf("invalid dependency graph: section %q: %s", e.Section, e.Message)
}
