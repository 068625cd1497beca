// Package model provides capability-based model selection for workflow
// agents. Components specify capabilities (writing, review, research,
// classification) and the registry resolves them to configured endpoints
// with fallback chains and health tracking.
package model

// Capability represents a semantic capability for model selection.
// Instead of specifying a model name, components specify what kind of work
// the call performs.
type Capability string

const (
	// CapabilityWriting is for drafting proposal sections.
	CapabilityWriting Capability = "writing"

	// CapabilityReview is for evaluating drafted sections.
	CapabilityReview Capability = "review"

	// CapabilityResearch is for topic agent loops with tool calls.
	CapabilityResearch Capability = "research"

	// CapabilityClassification is for short structured verdicts, such as
	// classifying a human answer on resume.
	CapabilityClassification Capability = "classification"

	// CapabilityFast is for quick auxiliary calls.
	CapabilityFast Capability = "fast"
)

// String returns the string representation of the capability.
func (c Capability) String() string {
	return string(c)
}

// IsValid checks if a capability string is a known capability.
func (c Capability) IsValid() bool {
	switch c {
	case CapabilityWriting, CapabilityReview, CapabilityResearch,
		CapabilityClassification, CapabilityFast:
		return true
	}
	return false
}

// ParseCapability converts a string to a Capability, returning empty for
// invalid values.
func ParseCapability(s string) Capability {
	c := Capability(s)
	if c.IsValid() {
		return c
	}
	return ""
}
