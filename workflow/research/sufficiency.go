// Package research coordinates concurrent topic research agents. Each topic
// runs a bounded tool-call loop; findings merge into workflow state through
// the reducers, never by direct write.
package research

import (
	"strings"

	"github.com/rudihinds/propforge/workflow"
)

// SufficiencyConfig tunes when a topic's findings are judged enough to stop
// before the hard ceilings force the issue.
type SufficiencyConfig struct {
	// AuthoritativeDomains lists domains whose extracted pages count as
	// sufficient on their own (e.g. the funder's own site, grants.gov).
	AuthoritativeDomains []string `json:"authoritative_domains,omitempty" yaml:"authoritative_domains,omitempty"`

	// MinEntities is the entity count treated as sufficient coverage.
	MinEntities int `json:"min_entities,omitempty" yaml:"min_entities,omitempty"`
}

// DefaultSufficiencyConfig returns the standard sufficiency thresholds.
func DefaultSufficiencyConfig() SufficiencyConfig {
	return SufficiencyConfig{
		MinEntities: 3,
	}
}

// Sufficient reports whether the topic record satisfies the heuristic:
// content from an authoritative domain, or at least MinEntities entities.
func (c SufficiencyConfig) Sufficient(rec *workflow.TopicResearch) bool {
	if rec == nil {
		return false
	}

	minEntities := c.MinEntities
	if minEntities <= 0 {
		minEntities = 3
	}
	if len(rec.Entities) >= minEntities {
		return true
	}

	for _, u := range rec.ExtractedURLs {
		if c.isAuthoritative(u) {
			return true
		}
	}
	return false
}

func (c SufficiencyConfig) isAuthoritative(rawURL string) bool {
	host := domainOf(rawURL)
	if host == "" {
		return false
	}
	for _, d := range c.AuthoritativeDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" {
			continue
		}
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func domainOf(rawURL string) string {
	s := strings.ToLower(rawURL)
	s = strings.TrimPrefix(s, "https://")
	s = strings.TrimPrefix(s, "http://")
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	return s
}
