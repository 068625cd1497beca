package providers

import (
	"net/http"
	"testing"

	"github.com/rudihinds/propforge/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicProvider_BuildURL(t *testing.T) {
	p := &AnthropicProvider{}

	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{
			name:    "empty uses default",
			baseURL: "",
			want:    "https://api.anthropic.com/v1/messages",
		},
		{
			name:    "custom base URL",
			baseURL: "https://proxy.example.com",
			want:    "https://proxy.example.com/v1/messages",
		},
		{
			name:    "already has endpoint",
			baseURL: "https://api.anthropic.com/v1/messages",
			want:    "https://api.anthropic.com/v1/messages",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := p.BuildURL(tt.baseURL)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAnthropicProvider_SetHeaders(t *testing.T) {
	p := &AnthropicProvider{}
	t.Setenv("ANTHROPIC_API_KEY", "sk-test")

	req, err := http.NewRequest(http.MethodPost, "https://api.anthropic.com/v1/messages", nil)
	require.NoError(t, err)

	p.SetHeaders(req)

	assert.Equal(t, "sk-test", req.Header.Get("x-api-key"))
	assert.Equal(t, "2023-06-01", req.Header.Get("anthropic-version"))
}

func TestAnthropicProvider_BuildRequestBody_SystemHoisted(t *testing.T) {
	p := &AnthropicProvider{}

	messages := []llm.Message{
		{Role: "system", Content: "You are a proposal writer."},
		{Role: "user", Content: "Draft the budget section."},
	}

	body, err := p.BuildRequestBody("claude-sonnet-4-20250514", messages, nil, 1024, nil)
	require.NoError(t, err)

	// System prompt is a top-level field, not a message
	assert.Contains(t, string(body), `"system":"You are a proposal writer."`)
	assert.NotContains(t, string(body), `"role":"system"`)
	assert.Contains(t, string(body), `"role":"user"`)
	assert.Contains(t, string(body), `"max_tokens":1024`)
}

func TestAnthropicProvider_BuildRequestBody_DefaultMaxTokens(t *testing.T) {
	p := &AnthropicProvider{}

	body, err := p.BuildRequestBody("claude-sonnet-4-20250514",
		[]llm.Message{{Role: "user", Content: "hi"}}, nil, 0, nil)
	require.NoError(t, err)

	// max_tokens is required by the Messages API
	assert.Contains(t, string(body), `"max_tokens":4096`)
}

func TestAnthropicProvider_BuildRequestBody_Tools(t *testing.T) {
	p := &AnthropicProvider{}

	tools := []llm.ToolDefinition{
		{
			Name:        "fetch_page",
			Description: "Fetch and extract a web page",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{"type": "string"},
				},
			},
		},
	}

	body, err := p.BuildRequestBody("claude-sonnet-4-20250514",
		[]llm.Message{{Role: "user", Content: "go"}}, nil, 0, tools)
	require.NoError(t, err)

	assert.Contains(t, string(body), `"name":"fetch_page"`)
	assert.Contains(t, string(body), `"input_schema"`)
}

func TestAnthropicProvider_ParseResponse(t *testing.T) {
	p := &AnthropicProvider{}

	responseBody := []byte(`{
		"id": "msg_123",
		"model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Here is the draft."}
		],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 25, "output_tokens": 12}
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	assert.Equal(t, "Here is the draft.", resp.Content)
	assert.Equal(t, "claude-sonnet-4-20250514", resp.Model)
	assert.Equal(t, "end_turn", resp.FinishReason)
	assert.Equal(t, 25, resp.Usage.PromptTokens)
	assert.Equal(t, 12, resp.Usage.CompletionTokens)
	assert.Equal(t, 37, resp.Usage.TotalTokens)
}

func TestAnthropicProvider_ParseResponse_ToolUse(t *testing.T) {
	p := &AnthropicProvider{}

	responseBody := []byte(`{
		"id": "msg_456",
		"model": "claude-sonnet-4-20250514",
		"content": [
			{"type": "text", "text": "Searching now."},
			{"type": "tool_use", "id": "toolu_01", "name": "web_search",
			 "input": {"query": "youth employment statistics"}}
		],
		"stop_reason": "tool_use",
		"usage": {"input_tokens": 40, "output_tokens": 20}
	}`)

	resp, err := p.ParseResponse(responseBody, "test-model")
	require.NoError(t, err)

	assert.Equal(t, "Searching now.", resp.Content)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "toolu_01", resp.ToolCalls[0].ID)
	assert.Equal(t, "web_search", resp.ToolCalls[0].Name)
	assert.JSONEq(t, `{"query": "youth employment statistics"}`, string(resp.ToolCalls[0].Arguments))
}

func TestAnthropicProvider_ParseResponse_NoContent(t *testing.T) {
	p := &AnthropicProvider{}

	_, err := p.ParseResponse([]byte(`{"id": "msg_789", "content": []}`), "test-model")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no content blocks")
}
