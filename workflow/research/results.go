package research

import (
	"encoding/json"
	"fmt"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
	toolsresearch "github.com/rudihinds/propforge/tools/research"
	"github.com/rudihinds/propforge/workflow"
)

// ToolRecordEntities is the coordinator-local tool that lets the agent note
// entities it found. It has no external executor; the coordinator turns the
// arguments straight into a research delta.
const ToolRecordEntities = "record_entities"

// recordEntitiesDefinition is appended to the executor-backed tool set.
var recordEntitiesDefinition = llm.ToolDefinition{
	Name:        ToolRecordEntities,
	Description: "Record named entities discovered during research, for later deep-dives.",
	Parameters: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"entities": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"name": map[string]any{"type": "string"},
						"type": map[string]any{"type": "string", "description": "funder, program, regulation, statistic"},
					},
					"required": []string{"name", "type"},
				},
			},
		},
		"required": []string{"entities"},
	},
}

// deltaFromToolResult converts one completed tool call into the research
// delta to merge. The mapping is what the topic record tracks against its
// ceilings: searches record the query, extractions the URL, deep-dives the
// profiled entity.
func deltaFromToolResult(topic string, call llm.ToolCall, result tools.ToolResult) (workflow.ResearchDelta, error) {
	delta := workflow.ResearchDelta{Topic: topic}

	switch call.Name {
	case toolsresearch.ToolWebSearch:
		var args struct {
			Query string `json:"query"`
		}
		if err := call.ArgumentsInto(&args); err != nil {
			return delta, fmt.Errorf("parse search arguments: %w", err)
		}
		if args.Query != "" {
			delta.SearchQueries = []string{args.Query}
		}

	case toolsresearch.ToolFetchPage:
		var args struct {
			URL string `json:"url"`
		}
		if err := call.ArgumentsInto(&args); err != nil {
			return delta, fmt.Errorf("parse fetch arguments: %w", err)
		}
		if args.URL != "" {
			delta.ExtractedURLs = []string{args.URL}
		}
		var extract toolsresearch.PageExtract
		if result.Content != "" && json.Unmarshal([]byte(result.Content), &extract) == nil && extract.Title != "" {
			delta.Insights = []workflow.Insight{{
				Text:      fmt.Sprintf("Extracted %q from %s", extract.Title, extract.Domain),
				SourceURL: args.URL,
			}}
		}

	case toolsresearch.ToolEntityDeepDive:
		var report toolsresearch.DeepDiveReport
		if result.Content == "" {
			return delta, fmt.Errorf("empty deep dive result")
		}
		if err := json.Unmarshal([]byte(result.Content), &report); err != nil {
			return delta, fmt.Errorf("parse deep dive result: %w", err)
		}
		delta.Entities = []workflow.Entity{{
			Name:       report.Name,
			Type:       report.Type,
			Searched:   true,
			Attributes: report.Attributes,
		}}
		if report.Summary != "" {
			delta.Insights = []workflow.Insight{{Text: report.Summary}}
		}

	case ToolRecordEntities:
		var args struct {
			Entities []struct {
				Name string `json:"name"`
				Type string `json:"type"`
			} `json:"entities"`
		}
		if err := call.ArgumentsInto(&args); err != nil {
			return delta, fmt.Errorf("parse record_entities arguments: %w", err)
		}
		for _, e := range args.Entities {
			if e.Name == "" {
				continue
			}
			delta.Entities = append(delta.Entities, workflow.Entity{Name: e.Name, Type: e.Type})
		}

	default:
		return delta, fmt.Errorf("unexpected tool in research loop: %s", call.Name)
	}

	return delta, nil
}
