package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	// Every capability must resolve to at least one configured endpoint
	for name, cap := range cfg.Capabilities {
		require.NotEmpty(t, cap.Preferred, "capability %s has no preferred endpoints", name)
		for _, ep := range append(cap.Preferred, cap.Fallback...) {
			assert.Contains(t, cfg.Endpoints, ep, "capability %s references unknown endpoint %s", name, ep)
		}
	}
}

func TestNewRegistryFromConfig(t *testing.T) {
	r := NewRegistryFromConfig(DefaultConfig())

	chain := r.GetFallbackChain(CapabilityWriting)
	require.NotEmpty(t, chain)
	assert.Equal(t, "claude-sonnet", chain[0])
}

func TestNewRegistryFromConfig_CustomCapability(t *testing.T) {
	cfg := Config{
		Capabilities: map[string]*CapabilityConfig{
			"summarization": {Preferred: []string{"local"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"local": {Provider: "ollama", Model: "qwen2.5:14b"},
		},
	}

	r := NewRegistryFromConfig(cfg)
	assert.Equal(t, []string{"local"}, r.GetFallbackChain(Capability("summarization")))
}

func TestConfig_Merge(t *testing.T) {
	base := DefaultConfig()
	overlay := Config{
		Capabilities: map[string]*CapabilityConfig{
			string(CapabilityWriting): {Preferred: []string{"qwen"}},
		},
		Endpoints: map[string]*EndpointConfig{
			"qwen": {Provider: "ollama", Model: "qwen3:32b"},
		},
	}

	base.Merge(overlay)

	assert.Equal(t, []string{"qwen"}, base.Capabilities[string(CapabilityWriting)].Preferred)
	assert.Equal(t, "qwen3:32b", base.Endpoints["qwen"].Model)
	// Untouched entries survive the merge
	assert.Contains(t, base.Endpoints, "claude-sonnet")
}

func TestConfig_YAMLRoundTrip(t *testing.T) {
	raw := `
capabilities:
  writing:
    description: Drafting proposal sections
    preferred: [sonnet]
    fallback: [local]
endpoints:
  sonnet:
    provider: anthropic
    model: claude-sonnet-4-20250514
  local:
    provider: ollama
    url: http://localhost:11434/v1
    model: qwen2.5:14b
    max_tokens: 128000
`
	var cfg Config
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))

	require.Contains(t, cfg.Capabilities, "writing")
	assert.Equal(t, []string{"sonnet"}, cfg.Capabilities["writing"].Preferred)
	require.Contains(t, cfg.Endpoints, "local")
	assert.Equal(t, 128000, cfg.Endpoints["local"].MaxTokens)
}
