package research

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
)

// ToolWebSearch is the discovery tool name.
const ToolWebSearch = "web_search"

// SearchConfig configures the discovery executor's search API.
type SearchConfig struct {
	// BaseURL is the search endpoint; the query is passed as the q
	// parameter. Operator-configured, not model-controlled.
	BaseURL string `json:"base_url" yaml:"base_url"`

	// APIKey authenticates to the search API, sent as a bearer token.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// MaxResults caps results per query.
	MaxResults int `json:"max_results,omitempty" yaml:"max_results,omitempty"`

	// Timeout bounds one search request.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SearchResult is one discovered page.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet,omitempty"`
}

// SearchResults is the web_search tool payload.
type SearchResults struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}

// SearchExecutor serves the web_search discovery tool against an HTTP
// search API.
type SearchExecutor struct {
	cfg    SearchConfig
	client *http.Client
}

// NewSearchExecutor creates the discovery executor.
func NewSearchExecutor(cfg SearchConfig) *SearchExecutor {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &SearchExecutor{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

// ListTools implements tools.Executor.
func (e *SearchExecutor) ListTools() []llm.ToolDefinition {
	return []llm.ToolDefinition{{
		Name:        ToolWebSearch,
		Description: "Search the web for pages about a topic. Returns titles, URLs, and snippets.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query": map[string]any{
					"type":        "string",
					"description": "The search query",
				},
			},
			"required": []string{"query"},
		},
	}}
}

// Execute implements tools.Executor.
func (e *SearchExecutor) Execute(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	var args struct {
		Query string `json:"query"`
	}
	if err := call.ArgumentsInto(&args); err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("parse web_search arguments: %w", err)
	}
	if args.Query == "" {
		return tools.ToolResult{CallID: call.ID, Error: "query is required"}, nil
	}

	results, err := e.search(ctx, args.Query)
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, err
	}

	payload, err := json.Marshal(SearchResults{Query: args.Query, Results: results})
	if err != nil {
		return tools.ToolResult{CallID: call.ID}, fmt.Errorf("marshal search results: %w", err)
	}
	return tools.ToolResult{CallID: call.ID, Content: string(payload)}, nil
}

func (e *SearchExecutor) search(ctx context.Context, query string) ([]SearchResult, error) {
	if e.cfg.BaseURL == "" {
		return nil, fmt.Errorf("search API is not configured")
	}

	reqURL, err := url.Parse(e.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid search base URL: %w", err)
	}
	q := reqURL.Query()
	q.Set("q", query)
	q.Set("count", fmt.Sprintf("%d", e.cfg.MaxResults))
	reqURL.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if e.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}

	var parsed struct {
		Results []SearchResult `json:"results"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	if len(parsed.Results) > e.cfg.MaxResults {
		parsed.Results = parsed.Results[:e.cfg.MaxResults]
	}
	return parsed.Results, nil
}
