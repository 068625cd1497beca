package workflow

import (
	"fmt"
	"strings"
)

// BlockedError indicates a section cannot start because one or more of its
// dependencies is not approved yet. Recoverable: callers retry once the
// missing dependencies are approved.
type BlockedError struct {
	// SectionID is the section that could not start.
	SectionID string

	// Missing lists the dependencies that are not approved.
	Missing []string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("section %q blocked: dependencies not approved: %s",
		e.SectionID, strings.Join(e.Missing, ", "))
}

// AlreadyInterruptedError indicates Raise was called while an interrupt is
// still unresolved. Protocol misuse: only one outstanding question at a time.
type AlreadyInterruptedError struct {
	// Checkpoint is the checkpoint of the pending interrupt.
	Checkpoint string
}

func (e *AlreadyInterruptedError) Error() string {
	return fmt.Sprintf("interrupt already pending at checkpoint %q", e.Checkpoint)
}

// NoPendingInterruptError indicates Resume was called with no active
// interrupt. Protocol misuse, surfaced immediately.
type NoPendingInterruptError struct{}

func (e *NoPendingInterruptError) Error() string {
	return "no pending interrupt to resume"
}

// TransitionError indicates an invalid section status transition was
// requested. Programming error in the calling component.
type TransitionError struct {
	SectionID string
	From      SectionStatus
	To        SectionStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("section %q cannot transition from %s to %s", e.SectionID, e.From, e.To)
}

// UnknownSectionError indicates an operation referenced a section id that is
// not part of the workflow.
type UnknownSectionError struct {
	SectionID string
}

func (e *UnknownSectionError) Error() string {
	return fmt.Sprintf("unknown section %q", e.SectionID)
}
