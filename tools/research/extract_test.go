package research

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudihinds/propforge/llm"
)

func TestExtractExecutor_RejectsUnsafeURLs(t *testing.T) {
	exec := NewExtractExecutor(0, "")

	tests := []struct {
		name string
		url  string
	}{
		{"http", "http://example.org"},
		{"localhost", "https://localhost/admin"},
		{"private ip", "https://10.0.0.1/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, err := json.Marshal(map[string]string{"url": tt.url})
			require.NoError(t, err)

			result, err := exec.Execute(context.Background(), llm.ToolCall{
				ID: "call-1", Name: ToolFetchPage, Arguments: args,
			})
			// Unsafe URLs are a model-visible error, not an execution failure
			require.NoError(t, err)
			assert.NotEmpty(t, result.Error)
		})
	}
}

func TestExtractExecutor_MissingURL(t *testing.T) {
	exec := NewExtractExecutor(0, "")

	result, err := exec.Execute(context.Background(), llm.ToolCall{
		ID: "call-1", Name: ToolFetchPage, Arguments: json.RawMessage(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "url is required", result.Error)
}

func TestExtractExecutor_ListTools(t *testing.T) {
	defs := NewExtractExecutor(0, "").ListTools()
	require.Len(t, defs, 1)
	assert.Equal(t, ToolFetchPage, defs[0].Name)
}
