package workflow

import "time"

// SectionStatus represents the lifecycle state of a proposal section.
type SectionStatus string

const (
	// StatusNotStarted indicates no generation attempt has been made.
	StatusNotStarted SectionStatus = "not_started"
	// StatusQueued indicates the section is waiting to be generated.
	StatusQueued SectionStatus = "queued"
	// StatusRunning indicates generation is in progress.
	StatusRunning SectionStatus = "running"
	// StatusReadyForEvaluation indicates content exists and awaits evaluation.
	StatusReadyForEvaluation SectionStatus = "ready_for_evaluation"
	// StatusAwaitingReview indicates a human must decide before proceeding.
	StatusAwaitingReview SectionStatus = "awaiting_review"
	// StatusApproved indicates the section passed evaluation or human review.
	StatusApproved SectionStatus = "approved"
	// StatusStale indicates an upstream dependency changed after approval.
	StatusStale SectionStatus = "stale"
)

// String returns the string representation of the status.
func (s SectionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known section status.
func (s SectionStatus) IsValid() bool {
	switch s {
	case StatusNotStarted, StatusQueued, StatusRunning, StatusReadyForEvaluation,
		StatusAwaitingReview, StatusApproved, StatusStale:
		return true
	default:
		return false
	}
}

// CanTransitionTo returns true if the status can transition to the target status.
func (s SectionStatus) CanTransitionTo(target SectionStatus) bool {
	switch s {
	case StatusNotStarted:
		return target == StatusQueued || target == StatusRunning
	case StatusQueued:
		return target == StatusRunning
	case StatusRunning:
		// ready (draft complete), queued (retry after an interrupted
		// process), awaiting_review (generation failed, human decides)
		return target == StatusReadyForEvaluation || target == StatusQueued ||
			target == StatusAwaitingReview
	case StatusReadyForEvaluation:
		// approved (passed), queued (revision), awaiting_review (revision cap hit)
		return target == StatusApproved || target == StatusQueued || target == StatusAwaitingReview
	case StatusAwaitingReview:
		// Human approves as-is or requests another attempt.
		return target == StatusApproved || target == StatusQueued
	case StatusApproved:
		// Side transition: an upstream dependency changed.
		return target == StatusStale
	case StatusStale:
		// Regeneration requested, or a human keeps the content as-is.
		return target == StatusQueued || target == StatusApproved
	default:
		return false
	}
}

// Section is one addressable unit of the generated document with its own
// lifecycle. Content and status only change together; Version increments on
// every content change and is the basis for optimistic concurrency.
type Section struct {
	// ID uniquely identifies the section within a workflow.
	ID string `json:"id"`

	// Title is the human-readable section heading.
	Title string `json:"title"`

	// Content is the current generated text, empty until first generation.
	Content string `json:"content,omitempty"`

	// Status is the current lifecycle state.
	Status SectionStatus `json:"status"`

	// Version counts content changes. A delta carrying a lower version than
	// the stored section is a stale concurrent write and is dropped.
	Version int `json:"version"`

	// Revisions counts failed evaluation attempts since the last approval.
	Revisions int `json:"revisions"`

	// Guidance carries reviewer feedback for the next generation attempt.
	Guidance string `json:"guidance,omitempty"`

	// DependsOn lists the section ids this section requires to be approved.
	DependsOn []string `json:"depends_on,omitempty"`

	// LastUpdated is when content or status last changed.
	LastUpdated time.Time `json:"last_updated"`
}

// Clone returns a deep copy of the section.
func (s *Section) Clone() *Section {
	if s == nil {
		return nil
	}
	out := *s
	out.DependsOn = append([]string(nil), s.DependsOn...)
	return &out
}
