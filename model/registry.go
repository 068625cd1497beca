package model

import (
	"sync"
	"time"
)

// Registry manages model selection based on capabilities. It maps
// capabilities to preferred endpoints with fallback chains and tracks
// per-endpoint health so repeatedly failing endpoints are skipped.
type Registry struct {
	mu           sync.RWMutex
	capabilities map[Capability]*CapabilityConfig
	endpoints    map[string]*EndpointConfig
	health       map[string]*EndpointHealth
	healthCfg    HealthConfig
}

// CapabilityConfig defines model preferences for a capability.
type CapabilityConfig struct {
	// Description explains what this capability is for.
	Description string `json:"description" yaml:"description"`

	// Preferred lists endpoint names in order of preference.
	Preferred []string `json:"preferred" yaml:"preferred"`

	// Fallback lists backup endpoints if all preferred fail.
	Fallback []string `json:"fallback" yaml:"fallback"`
}

// EndpointConfig defines an available model endpoint.
type EndpointConfig struct {
	// Provider is the model provider (anthropic, openai, ollama).
	Provider string `json:"provider" yaml:"provider"`

	// URL is the API endpoint URL (empty uses the provider default).
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Model is the actual model identifier to send to the provider.
	Model string `json:"model" yaml:"model"`

	// MaxTokens is the context window size.
	MaxTokens int `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
}

// EndpointHealth tracks the recent behavior of one endpoint.
type EndpointHealth struct {
	// Available indicates if the endpoint is currently usable.
	Available bool `json:"available"`

	// LastSuccess is the time of the last successful request.
	LastSuccess time.Time `json:"last_success,omitempty"`

	// LastFailure is the time of the last failed request.
	LastFailure time.Time `json:"last_failure,omitempty"`

	// FailureCount is the number of consecutive failures.
	FailureCount int `json:"failure_count"`
}

// HealthConfig configures the health tracking behavior.
type HealthConfig struct {
	// FailureThreshold is the consecutive-failure count that marks an
	// endpoint unavailable.
	FailureThreshold int

	// RecoveryTimeout is how long to wait before trying a failed endpoint
	// again.
	RecoveryTimeout time.Duration
}

// DefaultHealthConfig returns sensible defaults for health tracking.
func DefaultHealthConfig() HealthConfig {
	return HealthConfig{
		FailureThreshold: 3,
		RecoveryTimeout:  30 * time.Second,
	}
}

// NewRegistry creates a registry with the given configuration.
func NewRegistry(caps map[Capability]*CapabilityConfig, endpoints map[string]*EndpointConfig) *Registry {
	return &Registry{
		capabilities: caps,
		endpoints:    endpoints,
		health:       make(map[string]*EndpointHealth),
		healthCfg:    DefaultHealthConfig(),
	}
}

// GetEndpoint returns the endpoint configuration for an endpoint name, or
// nil when not configured.
func (r *Registry) GetEndpoint(name string) *EndpointConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

// GetFallbackChain returns all endpoint names for a capability in order of
// preference: preferred first, then fallbacks.
func (r *Registry) GetFallbackChain(c Capability) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cfg, ok := r.capabilities[c]
	if !ok {
		return nil
	}
	chain := make([]string, 0, len(cfg.Preferred)+len(cfg.Fallback))
	chain = append(chain, cfg.Preferred...)
	chain = append(chain, cfg.Fallback...)
	return chain
}

// GetAvailableFallbackChain returns the fallback chain with endpoints that
// are currently marked unavailable filtered out, unless their recovery
// timeout has elapsed.
func (r *Registry) GetAvailableFallbackChain(c Capability) []string {
	chain := r.GetFallbackChain(c)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var available []string
	for _, name := range chain {
		if r.isAvailableLocked(name) {
			available = append(available, name)
		}
	}
	return available
}

// IsEndpointAvailable reports whether the endpoint is currently usable.
func (r *Registry) IsEndpointAvailable(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isAvailableLocked(name)
}

func (r *Registry) isAvailableLocked(name string) bool {
	h, ok := r.health[name]
	if !ok {
		return true
	}
	if h.Available {
		return true
	}
	// Allow a probe after the recovery timeout.
	return time.Since(h.LastFailure) >= r.healthCfg.RecoveryTimeout
}

// MarkEndpointSuccess records a successful request to an endpoint.
func (r *Registry) MarkEndpointSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.getOrCreateLocked(name)
	h.LastSuccess = time.Now()
	h.FailureCount = 0
	h.Available = true
}

// MarkEndpointFailure records a failed request to an endpoint. Reaching the
// failure threshold marks the endpoint unavailable until the recovery
// timeout elapses.
func (r *Registry) MarkEndpointFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h := r.getOrCreateLocked(name)
	h.LastFailure = time.Now()
	h.FailureCount++
	if h.FailureCount >= r.healthCfg.FailureThreshold {
		h.Available = false
	}
}

func (r *Registry) getOrCreateLocked(name string) *EndpointHealth {
	if h, ok := r.health[name]; ok {
		return h
	}
	h := &EndpointHealth{Available: true}
	r.health[name] = h
	return h
}

// ListEndpoints returns all configured endpoint names.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.endpoints))
	for name := range r.endpoints {
		names = append(names, name)
	}
	return names
}
