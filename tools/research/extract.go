package research

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
)

// ToolFetchPage is the extraction tool name.
const ToolFetchPage = "fetch_page"

// maxExtractMarkdown bounds the markdown returned to the model.
const maxExtractMarkdown = 20000

// PageExtract is the fetch_page tool payload.
type PageExtract struct {
	URL      string `json:"url"`
	Domain   string `json:"domain"`
	Title    string `json:"title"`
	Markdown string `json:"markdown"`
}

// ExtractExecutor serves the fetch_page extraction tool: validated fetch,
// readability pass, markdown conversion.
type ExtractExecutor struct {
	fetcher   *Fetcher
	converter *Converter
}

// NewExtractExecutor creates the extraction executor.
func NewExtractExecutor(timeout time.Duration, userAgent string) *ExtractExecutor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = "propforge/1.0"
	}
	return &ExtractExecutor{
		fetcher:   NewFetcher(timeout, userAgent, DefaultMaxContentSize),
		converter: NewConverter(),
	}
}

// ListTools implements tools.Executor.
func (e *ExtractExecutor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        ToolFetchPage,
		Description: "Fetch a web page and extract its readable content as markdown. HTTPS only.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"url": map[string]any{
					"type":        "string",
					"description": "The HTTPS URL to fetch",
				},
			},
			"required": []string{"url"},
		},
	}}
}

// Execute implements tools.Executor. Validation failures are returned as
// model-visible errors so the agent can pick a different URL instead of the
// whole topic failing.
func (e *ExtractExecutor) Execute(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := call.ArgumentsInto(&args); err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("parse fetch_page arguments: %w", err)
	}
	if args.URL == "" {
		return tools.ToolResult{CallID: call.ID, Error: "url is required"}, nil
	}

	if err := ValidateURL(args.URL); err != nil {
		return tools.ToolResult{CallID: call.ID, Error: err.Error()}, nil
	}

	body, err := e.fetcher.Fetch(ctx, args.URL)
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("fetch %s: %w", args.URL, err)
	}

	content, err := e.converter.Convert(body, args.URL)
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("extract %s: %w", args.URL, err)
	}

	markdown := content.Markdown
	if len(markdown) > maxExtractMarkdown {
		markdown = markdown[:maxExtractMarkdown] + "\n\n[truncated]"
	}

	payload, err := json.Marshal(PageExtract{
		URL:      args.URL,
		Domain:   ExtractDomain(args.URL),
		Title:    content.Title,
		Markdown: markdown,
	})
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("marshal page extract: %w", err)
	}
	return tools.ToolResult{CallID: call.ID, Content: string(payload)}, nil
}
