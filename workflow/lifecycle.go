package workflow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rudihinds/propforge/graph"
)

// DefaultMaxRevisions bounds how many failed evaluations a section may
// accumulate before a human decides instead of looping forever.
const DefaultMaxRevisions = 3

// Controller drives the per-section generate/evaluate/approve state machine
// and propagates staleness through dependents. All mutations go through the
// store's reducers.
type Controller struct {
	store        *Store
	graph        *graph.Graph
	maxRevisions int
	logger       *slog.Logger
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithMaxRevisions overrides the revision cap.
func WithMaxRevisions(n int) ControllerOption {
	return func(c *Controller) {
		if n > 0 {
			c.maxRevisions = n
		}
	}
}

// WithControllerLogger sets the logger.
func WithControllerLogger(logger *slog.Logger) ControllerOption {
	return func(c *Controller) {
		c.logger = logger
	}
}

// NewController creates a lifecycle controller over the store and graph.
func NewController(store *Store, g *graph.Graph, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:        store,
		graph:        g,
		maxRevisions: DefaultMaxRevisions,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StartGeneration moves a section to running. Every dependency must be
// approved; otherwise a BlockedError listing the missing sections is
// returned and the section is left untouched.
func (c *Controller) StartGeneration(ctx context.Context, id string) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if !sec.Status.CanTransitionTo(StatusRunning) {
		return &TransitionError{SectionID: id, From: sec.Status, To: StatusRunning}
	}

	var missing []string
	for _, dep := range c.graph.DependenciesOf(id) {
		depSec := st.Sections[dep]
		if depSec == nil || depSec.Status != StatusApproved {
			missing = append(missing, dep)
		}
	}
	if len(missing) > 0 {
		return &BlockedError{SectionID: id, Missing: missing}
	}

	updated := sec.Clone()
	updated.Status = StatusRunning

	_, err := c.store.Apply(ctx, SectionDelta{Section: *updated})
	return err
}

// CompleteGeneration records generated content and moves the section to
// ready_for_evaluation. Requires the section to be running.
func (c *Controller) CompleteGeneration(ctx context.Context, id, content string) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if sec.Status != StatusRunning {
		return &TransitionError{SectionID: id, From: sec.Status, To: StatusReadyForEvaluation}
	}

	updated := sec.Clone()
	updated.Status = StatusReadyForEvaluation
	updated.Content = content

	_, err := c.store.Apply(ctx, SectionDelta{Section: *updated})
	return err
}

// RecordEvaluation applies an evaluation verdict. A passing result approves
// the section and stales its approved dependents (their content predates the
// new approval). A failing result queues another attempt with the reviewer
// feedback attached, until the revision cap forces awaiting_review.
func (c *Controller) RecordEvaluation(ctx context.Context, id string, result EvaluationResult) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if sec.Status != StatusReadyForEvaluation {
		return &TransitionError{SectionID: id, From: sec.Status, To: StatusApproved}
	}

	result.SectionID = id
	updated := sec.Clone()

	if result.Passed {
		updated.Status = StatusApproved
		updated.Revisions = 0
		updated.Guidance = ""

		deltas := []Delta{
			EvaluationDelta{Results: []EvaluationResult{result}},
			SectionDelta{Section: *updated},
		}
		deltas = append(deltas, c.staleDeltas(st, id)...)
		_, err := c.store.Apply(ctx, deltas...)
		return err
	}

	if updated.Revisions+1 >= c.maxRevisions {
		updated.Status = StatusAwaitingReview
		updated.Revisions++
		updated.Guidance = result.Feedback
		c.logger.Info("Section hit revision cap, escalating to human review",
			"section", id, "revisions", updated.Revisions)
	} else {
		updated.Status = StatusQueued
		updated.Revisions++
		updated.Guidance = result.Feedback
	}

	_, err := c.store.Apply(ctx,
		EvaluationDelta{Results: []EvaluationResult{result}},
		SectionDelta{Section: *updated})
	return err
}

// ApproveOverride approves a section awaiting human review, keeping its
// current draft. Approved dependents are staled since the content is new
// relative to their last approval.
func (c *Controller) ApproveOverride(ctx context.Context, id string) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if sec.Status != StatusAwaitingReview {
		return &TransitionError{SectionID: id, From: sec.Status, To: StatusApproved}
	}

	updated := sec.Clone()
	updated.Status = StatusApproved
	updated.Revisions = 0
	updated.Guidance = ""

	deltas := append([]Delta{SectionDelta{Section: *updated}}, c.staleDeltas(st, id)...)
	_, err := c.store.Apply(ctx, deltas...)
	return err
}

// UpdateApprovedContent replaces the content of an approved section, for
// example after a human edit, and stales every approved transitive
// dependent. This is the core correctness guarantee: no approved section may
// silently reference an out-of-date upstream section.
func (c *Controller) UpdateApprovedContent(ctx context.Context, id, content string) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if sec.Status != StatusApproved {
		return &TransitionError{SectionID: id, From: sec.Status, To: StatusApproved}
	}

	updated := sec.Clone()
	updated.Content = content

	deltas := append([]Delta{SectionDelta{Section: *updated}}, c.staleDeltas(st, id)...)
	_, err := c.store.Apply(ctx, deltas...)
	return err
}

// KeepAsIs accepts a stale section's existing content as still valid. This
// is an explicit human decision; it does not stale dependents because the
// content itself did not change.
func (c *Controller) KeepAsIs(ctx context.Context, id string) error {
	return c.transitionStale(ctx, id, StatusApproved)
}

// RequestRegeneration queues a stale section for another generation pass.
func (c *Controller) RequestRegeneration(ctx context.Context, id string) error {
	return c.transitionStale(ctx, id, StatusQueued)
}

func (c *Controller) transitionStale(ctx context.Context, id string, target SectionStatus) error {
	st := c.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &UnknownSectionError{SectionID: id}
	}
	if sec.Status != StatusStale {
		return &TransitionError{SectionID: id, From: sec.Status, To: target}
	}

	updated := sec.Clone()
	updated.Status = target

	_, err := c.store.Apply(ctx, SectionDelta{Section: *updated})
	return err
}

// MarkStaleFrom moves every approved transitive dependent of id to stale.
// Idempotent: re-marking an already-stale section is a no-op.
func (c *Controller) MarkStaleFrom(ctx context.Context, id string) error {
	st := c.store.Snapshot()
	if _, ok := st.Sections[id]; !ok {
		return &UnknownSectionError{SectionID: id}
	}

	deltas := c.staleDeltas(st, id)
	if len(deltas) == 0 {
		return nil
	}
	_, err := c.store.Apply(ctx, deltas...)
	return err
}

// staleDeltas builds the section deltas that stale every currently approved
// transitive dependent of id.
func (c *Controller) staleDeltas(st *WorkflowState, id string) []Delta {
	var deltas []Delta
	for _, dep := range c.graph.AllDependents(id) {
		depSec := st.Sections[dep]
		if depSec == nil || depSec.Status != StatusApproved {
			continue
		}
		updated := depSec.Clone()
		updated.Status = StatusStale
		deltas = append(deltas, SectionDelta{Section: *updated})
		c.logger.Debug("Staling dependent section", "section", dep, "changed_upstream", id)
	}
	return deltas
}

// SectionsReadyToStart returns sections whose full dependency set is
// approved and whose own status is not_started or queued, in topological
// order, enabling safe parallel dispatch.
func SectionsReadyToStart(st *WorkflowState, g *graph.Graph) []string {
	var ready []string
	for _, id := range g.TopologicalOrder() {
		sec := st.Sections[id]
		if sec == nil {
			continue
		}
		if sec.Status != StatusNotStarted && sec.Status != StatusQueued {
			continue
		}
		blocked := false
		for _, dep := range g.DependenciesOf(id) {
			depSec := st.Sections[dep]
			if depSec == nil || depSec.Status != StatusApproved {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, id)
		}
	}
	return ready
}

// SectionsByStatus returns section ids with the given status, sorted.
func SectionsByStatus(st *WorkflowState, status SectionStatus) []string {
	var out []string
	for _, id := range st.SectionIDs() {
		if st.Sections[id].Status == status {
			out = append(out, id)
		}
	}
	return out
}

// ValidateAgainstGraph checks that state and graph agree on the
// section set.
func ValidateAgainstGraph(st *WorkflowState, g *graph.Graph) error {
	for id := range st.Sections {
		if !g.Contains(id) {
			return fmt.Errorf("section %q present in state but not in dependency graph", id)
		}
	}
	for _, id := range g.Sections() {
		if _, ok := st.Sections[id]; !ok {
			return fmt.Errorf("section %q present in dependency graph but not in state", id)
		}
	}
	return nil
}
