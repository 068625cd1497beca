package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rudihinds/propforge/graph"
	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

// Invoker is the narrow agent surface the engine needs.
type Invoker interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Researcher runs the research phase for the given topics.
type Researcher interface {
	Run(ctx context.Context, topics []string) error
}

// Drafter produces section content.
type Drafter interface {
	Generate(ctx context.Context, id string) (string, error)
}

// Scorer evaluates a section draft.
type Scorer interface {
	Evaluate(ctx context.Context, id string) (workflow.EvaluationResult, error)
}

// Components are the phase implementations the engine dispatches to.
type Components struct {
	Research  Researcher
	Generator Drafter
	Evaluator Scorer
}

// Engine drives the workflow: route, dispatch, apply, persist, route again,
// until a stop condition. Component failures are contained as workflow
// errors; the engine only returns an error when the context is cancelled or
// state cannot be persisted.
type Engine struct {
	store         *workflow.Store
	graph         *graph.Graph
	controller    *workflow.Controller
	interrupts    *workflow.InterruptManager
	components    Components
	classifier    workflow.AnswerClassifier
	interruptOpts []workflow.InterruptOption
	metrics       *Metrics
	logger        *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics sets the metrics collectors.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithClassifier sets the interrupt answer classifier. Without one the
// interrupt manager uses keyword classification only.
func WithClassifier(c workflow.AnswerClassifier) Option {
	return func(e *Engine) {
		e.classifier = c
	}
}

// WithMaxRefinements overrides the cap on refinement rounds per interrupt.
func WithMaxRefinements(n int) Option {
	return func(e *Engine) {
		e.interruptOpts = append(e.interruptOpts, workflow.WithMaxRefinements(n))
	}
}

// WithController overrides the lifecycle controller, for a non-default
// revision cap.
func WithController(c *workflow.Controller) Option {
	return func(e *Engine) {
		e.controller = c
	}
}

// New creates an engine over the store and dependency graph.
func New(store *workflow.Store, g *graph.Graph, components Components, opts ...Option) (*Engine, error) {
	if components.Research == nil || components.Generator == nil || components.Evaluator == nil {
		return nil, fmt.Errorf("engine requires research, generator, and evaluator components")
	}

	e := &Engine{
		store:      store,
		graph:      g,
		controller: workflow.NewController(store, g),
		components: components,
		metrics:    NopMetrics(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.interrupts = workflow.NewInterruptManager(store, e.classifier,
		append(e.interruptOpts, workflow.WithInterruptLogger(e.logger))...)
	return e, nil
}

// Run drives the workflow until it needs a human, finishes, or goes idle.
// The returned action is the stop condition; callers inspect the state for
// the pending question or the error log.
func (e *Engine) Run(ctx context.Context) (workflow.NextAction, error) {
	if err := ctx.Err(); err != nil {
		return workflow.NextAction{}, err
	}
	e.recoverStalled(ctx)

	for {
		if err := ctx.Err(); err != nil {
			return workflow.NextAction{}, err
		}

		st := e.store.Snapshot()
		action := workflow.Route(st, e.graph)
		e.metrics.routed(string(action.Kind), st.Step)
		e.logger.Debug("Routed", "action", string(action.Kind), "step", st.Step)

		switch action.Kind {
		case workflow.ActionWaitForHuman, workflow.ActionFinalize:
			return action, nil

		case workflow.ActionContinueResearch:
			if err := e.components.Research.Run(ctx, action.Topics); err != nil {
				return workflow.NextAction{}, err
			}

		case workflow.ActionGenerateSections:
			e.generateSections(ctx, action.Sections)

		case workflow.ActionEvaluate:
			e.evaluateSection(ctx, action.Sections[0])

		case workflow.ActionIdle:
			if raised := e.raisePendingDecision(ctx, st); raised {
				continue
			}
			return action, nil

		default:
			return action, fmt.Errorf("unknown action kind %s", action.Kind)
		}
	}
}

// Resume records the human answer to the pending interrupt, applies the
// resolved decision to the checkpoint's section, and re-enters the run loop.
func (e *Engine) Resume(ctx context.Context, answer string) (workflow.NextAction, error) {
	st := e.store.Snapshot()
	if !st.IsInterrupted() {
		return workflow.NextAction{}, &workflow.NoPendingInterruptError{}
	}
	checkpoint := st.Interrupt.Checkpoint

	resolution, err := e.interrupts.Resume(ctx, answer)
	if err != nil {
		return workflow.NextAction{}, err
	}
	e.metrics.interrupted("resumed")

	if id, ok := sectionFromCheckpoint(checkpoint); ok {
		if err := e.applySectionDecision(ctx, id, resolution, answer); err != nil {
			e.recordError(ctx, "engine", err)
		}
	}

	return e.Run(ctx)
}

// generateSections drafts the given independent sections in parallel. A
// failed draft is contained: the error lands in the log and the section is
// escalated to human review so the workflow never wedges on it.
func (e *Engine) generateSections(ctx context.Context, ids []string) {
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			err := e.generateSection(ctx, id)
			e.metrics.generated(err)
			if err != nil {
				e.logger.Warn("Section generation failed", "section", id, "error", err)
				e.recordError(ctx, "generator", err)
				if ctx.Err() == nil {
					// A cancelled run leaves the section running; the next
					// Run requeues it. A real failure goes to the human.
					e.escalateFailedGeneration(ctx, id, err)
				}
			}
		}(id)
	}
	wg.Wait()
}

// recoverStalled requeues sections a previous process left running. Run is
// entered with no generation in flight, so a running section can only be the
// residue of a crash or cancellation mid-draft.
func (e *Engine) recoverStalled(ctx context.Context) {
	st := e.store.Snapshot()
	for _, id := range workflow.SectionsByStatus(st, workflow.StatusRunning) {
		updated := st.Sections[id].Clone()
		updated.Status = workflow.StatusQueued
		if _, err := e.store.Apply(ctx, workflow.SectionDelta{Section: *updated}); err != nil {
			e.recordError(ctx, "engine", err)
			continue
		}
		e.logger.Warn("Requeued section left running by an interrupted run", "section", id)
	}
}

func (e *Engine) generateSection(ctx context.Context, id string) error {
	if err := e.controller.StartGeneration(ctx, id); err != nil {
		return err
	}
	content, err := e.components.Generator.Generate(ctx, id)
	if err != nil {
		return err
	}
	return e.controller.CompleteGeneration(ctx, id, content)
}

// evaluateSection scores one draft and records the verdict. An evaluator
// failure escalates the section to human review instead of looping.
func (e *Engine) evaluateSection(ctx context.Context, id string) {
	result, err := e.components.Evaluator.Evaluate(ctx, id)
	if err != nil {
		e.logger.Warn("Section evaluation failed, escalating to human review",
			"section", id, "error", err)
		e.recordError(ctx, "evaluator", err)
		e.escalateToReview(ctx, id)
		return
	}

	e.metrics.evaluated(result.Passed)
	if err := e.controller.RecordEvaluation(ctx, id, result); err != nil {
		e.recordError(ctx, "engine", err)
	}
}

// raisePendingDecision suspends the workflow when idle state still holds a
// section that needs a human decision: awaiting_review after the revision
// cap, or stale after an upstream change. Returns true if an interrupt was
// raised.
func (e *Engine) raisePendingDecision(ctx context.Context, st *workflow.WorkflowState) bool {
	for _, id := range workflow.SectionsByStatus(st, workflow.StatusAwaitingReview) {
		sec := st.Sections[id]
		question := fmt.Sprintf(
			"Section %q did not pass automated review after %d attempts. Reviewer feedback: %s\nApprove as-is, request changes, or restart it?",
			sec.Title, sec.Revisions, sec.Guidance)
		return e.raise(ctx, id, question)
	}

	for _, id := range workflow.SectionsByStatus(st, workflow.StatusStale) {
		sec := st.Sections[id]
		question := fmt.Sprintf(
			"Section %q was approved against content that has since changed. Keep it as-is or regenerate it?",
			sec.Title)
		return e.raise(ctx, id, question)
	}

	return false
}

func (e *Engine) raise(ctx context.Context, sectionID, question string) bool {
	if _, err := e.interrupts.Raise(ctx, sectionCheckpoint(sectionID), question); err != nil {
		e.recordError(ctx, "engine", err)
		return false
	}
	e.metrics.interrupted("raised")
	return true
}

// applySectionDecision turns a classified answer into the lifecycle
// transition for the checkpoint's section.
func (e *Engine) applySectionDecision(ctx context.Context, id string, resolution workflow.Resolution, answer string) error {
	st := e.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &workflow.UnknownSectionError{SectionID: id}
	}

	switch resolution {
	case workflow.ResolutionSatisfied:
		if sec.Status == workflow.StatusStale {
			return e.controller.KeepAsIs(ctx, id)
		}
		return e.controller.ApproveOverride(ctx, id)

	case workflow.ResolutionNeedsRefinement:
		if sec.Status == workflow.StatusStale {
			if err := e.controller.RequestRegeneration(ctx, id); err != nil {
				return err
			}
			return e.setGuidance(ctx, id, answer)
		}
		return e.requeue(ctx, sec, answer, sec.Content)

	case workflow.ResolutionNeedsRestart:
		if sec.Status == workflow.StatusStale {
			if err := e.controller.RequestRegeneration(ctx, id); err != nil {
				return err
			}
		}
		st = e.store.Snapshot()
		return e.requeue(ctx, st.Sections[id], answer, "")

	case workflow.ResolutionEscalate:
		// The refinement conversation is exhausted; leave the section
		// where it is so the next idle pass re-raises it for a wider
		// review.
		return nil

	default:
		return fmt.Errorf("unknown resolution %s", resolution)
	}
}

// requeue puts a section back in the generation queue with the human answer
// as guidance. The revision count restarts; the human opened a fresh
// conversation about the draft.
func (e *Engine) requeue(ctx context.Context, sec *workflow.Section, guidance, content string) error {
	updated := sec.Clone()
	updated.Status = workflow.StatusQueued
	updated.Guidance = strings.TrimSpace(guidance)
	updated.Content = content
	updated.Revisions = 0

	_, err := e.store.Apply(ctx, workflow.SectionDelta{Section: *updated})
	return err
}

func (e *Engine) setGuidance(ctx context.Context, id, guidance string) error {
	st := e.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil {
		return &workflow.UnknownSectionError{SectionID: id}
	}
	updated := sec.Clone()
	updated.Guidance = strings.TrimSpace(guidance)

	_, err := e.store.Apply(ctx, workflow.SectionDelta{Section: *updated})
	return err
}

// escalateToReview moves a ready_for_evaluation section to awaiting_review
// when automated evaluation cannot produce a verdict.
func (e *Engine) escalateToReview(ctx context.Context, id string) {
	st := e.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil || sec.Status != workflow.StatusReadyForEvaluation {
		return
	}
	updated := sec.Clone()
	updated.Status = workflow.StatusAwaitingReview
	updated.Guidance = "Automated evaluation was unavailable; review the draft manually."

	if _, err := e.store.Apply(ctx, workflow.SectionDelta{Section: *updated}); err != nil {
		e.recordError(ctx, "engine", err)
	}
}

// escalateFailedGeneration moves a running section whose draft attempt
// failed to awaiting_review. Running has no other exit once the attempt is
// over, so without this the router would idle past the section forever.
func (e *Engine) escalateFailedGeneration(ctx context.Context, id string, cause error) {
	st := e.store.Snapshot()
	sec := st.Sections[id]
	if sec == nil || sec.Status != workflow.StatusRunning {
		return
	}
	updated := sec.Clone()
	updated.Status = workflow.StatusAwaitingReview
	updated.Guidance = fmt.Sprintf("Generation failed: %v. Restart it or approve existing content.", cause)

	if _, err := e.store.Apply(ctx, workflow.SectionDelta{Section: *updated}); err != nil {
		e.recordError(ctx, "engine", err)
	}
}

func (e *Engine) recordError(ctx context.Context, component string, err error) {
	if _, applyErr := e.store.Apply(ctx, workflow.ErrorDelta{
		Component: component,
		Message:   err.Error(),
	}); applyErr != nil {
		e.logger.Error("Failed to record workflow error",
			"component", component, "error", applyErr)
	}
}

// Document assembles the final proposal: approved section content in
// dependency order, with titles as headings.
func (e *Engine) Document() string {
	st := e.store.Snapshot()
	var b strings.Builder
	for _, id := range e.graph.TopologicalOrder() {
		sec := st.Sections[id]
		if sec == nil || sec.Status != workflow.StatusApproved || sec.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", sec.Title, sec.Content)
	}
	return strings.TrimSpace(b.String())
}

const checkpointPrefix = "section:"

func sectionCheckpoint(id string) string {
	return checkpointPrefix + id
}

func sectionFromCheckpoint(checkpoint string) (string, bool) {
	if !strings.HasPrefix(checkpoint, checkpointPrefix) {
		return "", false
	}
	return strings.TrimPrefix(checkpoint, checkpointPrefix), true
}
