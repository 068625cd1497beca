package workflow

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxRefinements bounds how many needs_refinement cycles one
// checkpoint may go through before escalating to a wider review.
const DefaultMaxRefinements = 3

// Resolution classifies a human answer to a pending interrupt.
type Resolution string

const (
	// ResolutionSatisfied means the human accepted the work.
	ResolutionSatisfied Resolution = "satisfied"
	// ResolutionNeedsRefinement means the human wants targeted changes.
	ResolutionNeedsRefinement Resolution = "needs_refinement"
	// ResolutionNeedsRestart means the human rejected the direction entirely.
	ResolutionNeedsRestart Resolution = "needs_restart"
	// ResolutionEscalate means the refinement cap was exceeded and the
	// decision must be surfaced to a wider review.
	ResolutionEscalate Resolution = "escalate"
)

// AnswerClassifier decides how a free-text human answer resolves an
// interrupt. The LLM-backed implementation lives outside this package; the
// manager falls back to keyword classification when it fails, so resumption
// never blocks on an unavailable model.
type AnswerClassifier interface {
	Classify(ctx context.Context, question, answer string) (Resolution, error)
}

// InterruptManager suspends the workflow at named checkpoints and resumes it
// when a human answer arrives. Raise is the single suspension point in the
// engine; the suspension is durable state, not an in-memory block, because
// resumption may happen in a different process.
type InterruptManager struct {
	store          *Store
	classifier     AnswerClassifier
	maxRefinements int
	logger         *slog.Logger
}

// InterruptOption configures an InterruptManager.
type InterruptOption func(*InterruptManager)

// WithMaxRefinements overrides the refinement cap.
func WithMaxRefinements(n int) InterruptOption {
	return func(m *InterruptManager) {
		if n > 0 {
			m.maxRefinements = n
		}
	}
}

// WithInterruptLogger sets the logger.
func WithInterruptLogger(logger *slog.Logger) InterruptOption {
	return func(m *InterruptManager) {
		m.logger = logger
	}
}

// NewInterruptManager creates an interrupt manager. classifier may be nil,
// in which case only keyword classification is used.
func NewInterruptManager(store *Store, classifier AnswerClassifier, opts ...InterruptOption) *InterruptManager {
	m := &InterruptManager{
		store:          store,
		classifier:     classifier,
		maxRefinements: DefaultMaxRefinements,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Raise suspends the workflow at the named checkpoint with a question for
// the human. The state, including the pending question, is persisted before
// Raise returns, so a crash cannot orphan the suspension. Fails with
// AlreadyInterruptedError if an interrupt is already pending.
func (m *InterruptManager) Raise(ctx context.Context, checkpoint, question string) (*InterruptState, error) {
	st := m.store.Snapshot()
	if st.IsInterrupted() {
		return nil, &AlreadyInterruptedError{Checkpoint: st.Interrupt.Checkpoint}
	}

	interrupt := NewInterruptState(checkpoint, question)
	// Carry the refinement count across repeated raises of one checkpoint
	// so the bound holds per conversation, not per question.
	if st.Interrupt != nil && st.Interrupt.Checkpoint == checkpoint {
		interrupt.Refinements = st.Interrupt.Refinements
	}

	if _, err := m.store.Apply(ctx, InterruptDelta{Interrupt: interrupt}); err != nil {
		return nil, err
	}

	m.logger.Info("Workflow suspended awaiting human answer",
		"checkpoint", checkpoint, "interrupt_id", interrupt.ID)
	return interrupt, nil
}

// Resume records the human answer, classifies it, clears the interrupt, and
// returns the resolution the router should act on. Fails with
// NoPendingInterruptError if nothing is pending.
func (m *InterruptManager) Resume(ctx context.Context, answer string) (Resolution, error) {
	st := m.store.Snapshot()
	if !st.IsInterrupted() {
		return "", &NoPendingInterruptError{}
	}
	pending := st.Interrupt

	resolution := m.classify(ctx, pending.Question, answer)

	if resolution == ResolutionNeedsRefinement && pending.Refinements+1 >= m.maxRefinements {
		resolution = ResolutionEscalate
		m.logger.Warn("Refinement cap exceeded, escalating",
			"checkpoint", pending.Checkpoint, "refinements", pending.Refinements+1)
	}

	now := time.Now().UTC()
	resolved := *pending
	resolved.Answer = answer
	resolved.ResumedAt = &now
	if resolution == ResolutionNeedsRefinement {
		resolved.Refinements++
	}

	// The resolved record stays in state (with ResumedAt set) so the
	// refinement count survives a follow-up raise of the same checkpoint.
	// A resolved interrupt no longer counts as interrupted for routing.
	if _, err := m.store.Apply(ctx, InterruptDelta{Interrupt: &resolved}); err != nil {
		return "", err
	}

	m.logger.Info("Workflow resumed",
		"checkpoint", pending.Checkpoint,
		"resolution", string(resolution))
	return resolution, nil
}

// classify runs the configured classifier with the deterministic keyword
// fallback on failure.
func (m *InterruptManager) classify(ctx context.Context, question, answer string) Resolution {
	if m.classifier != nil {
		resolution, err := m.classifier.Classify(ctx, question, answer)
		if err == nil && resolution != "" {
			return resolution
		}
		if err != nil {
			m.logger.Warn("Answer classifier unavailable, using keyword fallback", "error", err)
		}
	}
	return ClassifyAnswerKeywords(answer)
}

// satisfiedKeywords and restartKeywords drive the deterministic fallback
// classification used when the model capability is unavailable.
var (
	satisfiedKeywords = []string{"yes", "good", "approve", "approved", "accept", "ok", "lgtm", "fine"}
	restartKeywords   = []string{"no", "wrong", "restart", "reject", "rejected", "start over", "redo"}
)

// ClassifyAnswerKeywords is the deterministic fallback classifier:
// affirmative answers are satisfied, negative answers request a restart, and
// anything else requests refinement.
func ClassifyAnswerKeywords(answer string) Resolution {
	normalized := strings.ToLower(strings.TrimSpace(answer))
	if normalized == "" {
		return ResolutionNeedsRefinement
	}

	for _, kw := range satisfiedKeywords {
		if normalized == kw || strings.HasPrefix(normalized, kw+" ") || strings.HasPrefix(normalized, kw+",") {
			return ResolutionSatisfied
		}
	}
	for _, kw := range restartKeywords {
		if normalized == kw || strings.HasPrefix(normalized, kw+" ") || strings.HasPrefix(normalized, kw+",") {
			return ResolutionNeedsRestart
		}
	}
	return ResolutionNeedsRefinement
}
