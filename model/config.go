package model

// Config is the YAML/JSON shape for the model registry, embedded in the
// propforge configuration under "model".
type Config struct {
	Capabilities map[string]*CapabilityConfig `json:"capabilities" yaml:"capabilities"`
	Endpoints    map[string]*EndpointConfig   `json:"endpoints" yaml:"endpoints"`
}

// DefaultConfig returns a registry configuration using Anthropic models with
// a local Ollama fallback.
func DefaultConfig() Config {
	return Config{
		Capabilities: map[string]*CapabilityConfig{
			string(CapabilityWriting): {
				Description: "Drafting proposal sections",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"qwen"},
			},
			string(CapabilityReview): {
				Description: "Evaluating drafted sections",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"claude-haiku", "qwen"},
			},
			string(CapabilityResearch): {
				Description: "Topic research loops with tool calls",
				Preferred:   []string{"claude-sonnet"},
				Fallback:    []string{"qwen"},
			},
			string(CapabilityClassification): {
				Description: "Short structured verdicts",
				Preferred:   []string{"claude-haiku"},
				Fallback:    []string{"qwen"},
			},
			string(CapabilityFast): {
				Description: "Quick auxiliary calls",
				Preferred:   []string{"claude-haiku"},
				Fallback:    []string{"qwen"},
			},
		},
		Endpoints: map[string]*EndpointConfig{
			"claude-sonnet": {
				Provider:  "anthropic",
				Model:     "claude-sonnet-4-20250514",
				MaxTokens: 200000,
			},
			"claude-haiku": {
				Provider:  "anthropic",
				Model:     "claude-haiku-3-5-20241022",
				MaxTokens: 200000,
			},
			"qwen": {
				Provider:  "ollama",
				URL:       "http://localhost:11434/v1",
				Model:     "qwen2.5:14b",
				MaxTokens: 128000,
			},
		},
	}
}

// NewRegistryFromConfig converts a Config to a Registry. Unknown capability
// names are kept verbatim so deployments can define extra capabilities.
func NewRegistryFromConfig(cfg Config) *Registry {
	caps := make(map[Capability]*CapabilityConfig, len(cfg.Capabilities))
	for k, v := range cfg.Capabilities {
		c := ParseCapability(k)
		if c == "" {
			c = Capability(k)
		}
		caps[c] = v
	}
	return NewRegistry(caps, cfg.Endpoints)
}

// Merge overlays non-empty fields from other onto the config.
func (c *Config) Merge(other Config) {
	if c.Capabilities == nil {
		c.Capabilities = make(map[string]*CapabilityConfig)
	}
	for k, v := range other.Capabilities {
		c.Capabilities[k] = v
	}
	if c.Endpoints == nil {
		c.Endpoints = make(map[string]*EndpointConfig)
	}
	for k, v := range other.Endpoints {
		c.Endpoints[k] = v
	}
}
