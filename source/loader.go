package source

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/rudihinds/propforge/graph"
	"github.com/rudihinds/propforge/workflow"
)

// SectionDef declares one proposal section and its upstream dependencies.
type SectionDef struct {
	ID        string   `yaml:"id"`
	Title     string   `yaml:"title"`
	DependsOn []string `yaml:"depends_on,omitempty"`
}

// Definition is the proposal definition file: the section dependency list
// plus the research topics to cover before drafting starts.
type Definition struct {
	Sections []SectionDef `yaml:"sections"`
	Topics   []string     `yaml:"topics,omitempty"`
}

// Load reads and validates a proposal definition file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes and validates definition YAML.
func Parse(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// Validate checks the definition is complete and its dependency graph is a
// DAG. Graph construction performs the cycle and unknown-reference checks.
func (d *Definition) Validate() error {
	if len(d.Sections) == 0 {
		return fmt.Errorf("definition has no sections")
	}

	seen := make(map[string]bool, len(d.Sections))
	for i, sec := range d.Sections {
		if sec.ID == "" {
			return fmt.Errorf("section %d has no id", i)
		}
		if sec.Title == "" {
			return fmt.Errorf("section %q has no title", sec.ID)
		}
		if seen[sec.ID] {
			return fmt.Errorf("duplicate section id %q", sec.ID)
		}
		seen[sec.ID] = true
	}

	seenTopics := make(map[string]bool, len(d.Topics))
	for i, topic := range d.Topics {
		if topic == "" {
			return fmt.Errorf("topic %d is empty", i)
		}
		if seenTopics[topic] {
			return fmt.Errorf("duplicate topic %q", topic)
		}
		seenTopics[topic] = true
	}

	_, err := d.Graph()
	return err
}

// Graph builds the immutable dependency graph from the section list.
func (d *Definition) Graph() (*graph.Graph, error) {
	deps := make(map[string][]string, len(d.Sections))
	for _, sec := range d.Sections {
		deps[sec.ID] = sec.DependsOn
	}
	return graph.New(deps)
}

// WorkflowSections converts the definition into initial workflow sections.
func (d *Definition) WorkflowSections() []*workflow.Section {
	out := make([]*workflow.Section, 0, len(d.Sections))
	for _, sec := range d.Sections {
		out = append(out, &workflow.Section{
			ID:        sec.ID,
			Title:     sec.Title,
			Status:    workflow.StatusNotStarted,
			DependsOn: append([]string(nil), sec.DependsOn...),
		})
	}
	return out
}
