// Package config provides layered configuration loading for propforge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rudihinds/propforge/model"
	"github.com/rudihinds/propforge/source"
	toolsresearch "github.com/rudihinds/propforge/tools/research"
	"github.com/rudihinds/propforge/workflow"
	wfresearch "github.com/rudihinds/propforge/workflow/research"
)

// Config is the complete propforge configuration.
type Config struct {
	// Definition is the path to the proposal definition file.
	Definition string `yaml:"definition"`

	Model    model.Config       `yaml:"model"`
	NATS     NATSConfig         `yaml:"nats"`
	Search   SearchConfig       `yaml:"search"`
	Workflow WorkflowConfig     `yaml:"workflow"`
	Research ResearchConfig     `yaml:"research"`
	Watch    source.WatchConfig `yaml:"watch"`
}

// NATSConfig configures workflow state persistence.
type NATSConfig struct {
	// URL is the NATS server URL. Empty keeps state in memory only.
	URL string `yaml:"url"`

	// Bucket overrides the JetStream KV bucket name.
	Bucket string `yaml:"bucket"`

	// TTL expires abandoned workflows, as a duration string. Empty uses
	// the 30-day default; "0" disables expiry.
	TTL string `yaml:"ttl"`
}

// GetTTL returns the workflow TTL as a duration.
func (c *NATSConfig) GetTTL() (time.Duration, error) {
	if c.TTL == "" {
		return 30 * 24 * time.Hour, nil
	}
	return time.ParseDuration(c.TTL)
}

// SearchConfig configures the web_search tool endpoint.
type SearchConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	MaxResults int    `yaml:"max_results"`

	// Timeout bounds one search request, as a duration string.
	Timeout string `yaml:"timeout"`
}

// ToolConfig converts to the search executor's configuration.
func (c *SearchConfig) ToolConfig() toolsresearch.SearchConfig {
	out := toolsresearch.SearchConfig{
		BaseURL:    c.BaseURL,
		APIKey:     c.APIKey,
		MaxResults: c.MaxResults,
	}
	if d, err := time.ParseDuration(c.Timeout); err == nil && d > 0 {
		out.Timeout = d
	}
	return out
}

// WorkflowConfig holds the lifecycle and review thresholds.
type WorkflowConfig struct {
	// MaxRevisions bounds failed evaluations before human review.
	MaxRevisions int `yaml:"max_revisions"`

	// MaxRefinements bounds refinement cycles per interrupt checkpoint.
	MaxRefinements int `yaml:"max_refinements"`

	// ApproveThreshold is the evaluation score at or above which a draft
	// is approved without human review.
	ApproveThreshold float64 `yaml:"approve_threshold"`
}

// ResearchConfig holds the research ceilings and sufficiency thresholds.
type ResearchConfig struct {
	MaxQueries    int `yaml:"max_queries"`
	MaxURLs       int `yaml:"max_urls"`
	MaxEntities   int `yaml:"max_entities"`
	MaxIterations int `yaml:"max_iterations"`

	// MinEntities is the sufficiency entity count.
	MinEntities int `yaml:"min_entities"`

	// AuthoritativeDomains lists domains whose extraction marks a topic
	// sufficient on its own.
	AuthoritativeDomains []string `yaml:"authoritative_domains"`
}

// Limits converts to the router's research ceilings.
func (c *ResearchConfig) Limits() workflow.ResearchLimits {
	return workflow.ResearchLimits{
		MaxQueries:  c.MaxQueries,
		MaxURLs:     c.MaxURLs,
		MaxEntities: c.MaxEntities,
	}
}

// Sufficiency converts to the coordinator's sufficiency thresholds.
func (c *ResearchConfig) Sufficiency() wfresearch.SufficiencyConfig {
	return wfresearch.SufficiencyConfig{
		AuthoritativeDomains: append([]string(nil), c.AuthoritativeDomains...),
		MinEntities:          c.MinEntities,
	}
}

// DefaultConfig returns a Config with the standard defaults.
func DefaultConfig() *Config {
	limits := workflow.DefaultResearchLimits()
	return &Config{
		Definition: "proposal.yaml",
		Model:      model.DefaultConfig(),
		NATS: NATSConfig{
			URL: "",
		},
		Search: SearchConfig{
			MaxResults: 5,
			Timeout:    "15s",
		},
		Workflow: WorkflowConfig{
			MaxRevisions:     workflow.DefaultMaxRevisions,
			MaxRefinements:   workflow.DefaultMaxRefinements,
			ApproveThreshold: 0.8,
		},
		Research: ResearchConfig{
			MaxQueries:    limits.MaxQueries,
			MaxURLs:       limits.MaxURLs,
			MaxEntities:   limits.MaxEntities,
			MaxIterations: wfresearch.DefaultMaxIterations,
			MinEntities:   wfresearch.DefaultSufficiencyConfig().MinEntities,
		},
		Watch: source.DefaultWatchConfig(),
	}
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Definition == "" {
		return fmt.Errorf("definition path is required")
	}
	if c.Workflow.MaxRevisions <= 0 {
		return fmt.Errorf("workflow.max_revisions must be positive")
	}
	if c.Workflow.MaxRefinements <= 0 {
		return fmt.Errorf("workflow.max_refinements must be positive")
	}
	if c.Workflow.ApproveThreshold <= 0 || c.Workflow.ApproveThreshold > 1 {
		return fmt.Errorf("workflow.approve_threshold must be in (0, 1]")
	}
	if c.Research.MaxQueries <= 0 || c.Research.MaxURLs <= 0 || c.Research.MaxEntities <= 0 {
		return fmt.Errorf("research ceilings must be positive")
	}
	if c.Research.MaxIterations <= 0 {
		return fmt.Errorf("research.max_iterations must be positive")
	}
	if c.NATS.TTL != "" {
		if _, err := time.ParseDuration(c.NATS.TTL); err != nil {
			return fmt.Errorf("nats.ttl: %w", err)
		}
	}
	if len(c.Model.Capabilities) == 0 || len(c.Model.Endpoints) == 0 {
		return fmt.Errorf("model capabilities and endpoints are required")
	}
	for name, capability := range c.Model.Capabilities {
		for _, endpoint := range append(append([]string(nil), capability.Preferred...), capability.Fallback...) {
			if _, ok := c.Model.Endpoints[endpoint]; !ok {
				return fmt.Errorf("capability %q references undefined endpoint %q", name, endpoint)
			}
		}
	}
	return nil
}

// LoadFromFile loads configuration from a YAML file, overlaid on defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return config, nil
}

// SaveToFile writes the configuration as YAML, creating parent directories.
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Merge overlays non-zero values from other onto the config.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Definition != "" {
		c.Definition = other.Definition
	}

	c.Model.Merge(other.Model)

	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
	}
	if other.NATS.Bucket != "" {
		c.NATS.Bucket = other.NATS.Bucket
	}
	if other.NATS.TTL != "" {
		c.NATS.TTL = other.NATS.TTL
	}

	if other.Search.BaseURL != "" {
		c.Search.BaseURL = other.Search.BaseURL
	}
	if other.Search.APIKey != "" {
		c.Search.APIKey = other.Search.APIKey
	}
	if other.Search.MaxResults != 0 {
		c.Search.MaxResults = other.Search.MaxResults
	}
	if other.Search.Timeout != "" {
		c.Search.Timeout = other.Search.Timeout
	}

	if other.Workflow.MaxRevisions != 0 {
		c.Workflow.MaxRevisions = other.Workflow.MaxRevisions
	}
	if other.Workflow.MaxRefinements != 0 {
		c.Workflow.MaxRefinements = other.Workflow.MaxRefinements
	}
	if other.Workflow.ApproveThreshold != 0 {
		c.Workflow.ApproveThreshold = other.Workflow.ApproveThreshold
	}

	if other.Research.MaxQueries != 0 {
		c.Research.MaxQueries = other.Research.MaxQueries
	}
	if other.Research.MaxURLs != 0 {
		c.Research.MaxURLs = other.Research.MaxURLs
	}
	if other.Research.MaxEntities != 0 {
		c.Research.MaxEntities = other.Research.MaxEntities
	}
	if other.Research.MaxIterations != 0 {
		c.Research.MaxIterations = other.Research.MaxIterations
	}
	if other.Research.MinEntities != 0 {
		c.Research.MinEntities = other.Research.MinEntities
	}
	if len(other.Research.AuthoritativeDomains) > 0 {
		c.Research.AuthoritativeDomains = other.Research.AuthoritativeDomains
	}

	if other.Watch.Enabled {
		c.Watch.Enabled = true
	}
	if other.Watch.DebounceDelay != "" {
		c.Watch.DebounceDelay = other.Watch.DebounceDelay
	}
	if len(other.Watch.Include) > 0 {
		c.Watch.Include = other.Watch.Include
	}
	if len(other.Watch.Exclude) > 0 {
		c.Watch.Exclude = other.Watch.Exclude
	}
}
