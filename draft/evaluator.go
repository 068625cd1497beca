package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

// DefaultApproveThreshold is the score at or above which a draft passes
// without human review.
const DefaultApproveThreshold = 0.8

const evaluatorSystemPrompt = `You review one drafted section of a grant proposal.
Judge whether it is specific, grounded in the provided research, consistent
with the approved sections, and persuasive to a funder.
Respond with JSON only: {"score": 0.0-1.0, "feedback": "..."}.
Feedback must name concrete fixes when the draft falls short.`

// Evaluator scores section drafts with the "review" capability. Like the
// Generator it only reads state; the verdict is recorded by the caller.
type Evaluator struct {
	store     *workflow.Store
	invoker   Invoker
	threshold float64
	logger    *slog.Logger
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithApproveThreshold overrides the auto-approve score threshold.
func WithApproveThreshold(t float64) EvaluatorOption {
	return func(e *Evaluator) {
		if t > 0 && t <= 1 {
			e.threshold = t
		}
	}
}

// WithEvaluatorLogger sets the logger.
func WithEvaluatorLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		e.logger = logger
	}
}

// NewEvaluator creates a draft evaluator over the store.
func NewEvaluator(store *workflow.Store, invoker Invoker, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		store:     store,
		invoker:   invoker,
		threshold: DefaultApproveThreshold,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate scores the section's current draft and returns the verdict. A
// verdict the model failed to express as a parseable score is an error, not
// a failed evaluation.
func (e *Evaluator) Evaluate(ctx context.Context, id string) (workflow.EvaluationResult, error) {
	st := e.store.Snapshot()
	section, ok := st.Sections[id]
	if !ok {
		return workflow.EvaluationResult{}, fmt.Errorf("evaluate section: unknown section %s", id)
	}
	if section.Content == "" {
		return workflow.EvaluationResult{}, fmt.Errorf("evaluate section %s: no draft content", id)
	}

	resp, err := e.invoker.Complete(ctx, llm.Request{
		Capability: "review",
		Messages: []llm.Message{
			{Role: "system", Content: evaluatorSystemPrompt},
			{Role: "user", Content: buildEvaluationPrompt(st, section)},
		},
	})
	if err != nil {
		return workflow.EvaluationResult{}, fmt.Errorf("evaluate section %s: %w", id, err)
	}

	verdict, err := parseVerdict(resp.Content)
	if err != nil {
		return workflow.EvaluationResult{}, fmt.Errorf("evaluate section %s: %w", id, err)
	}

	result := workflow.EvaluationResult{
		SectionID: id,
		Passed:    verdict.Score >= e.threshold,
		Score:     verdict.Score,
		Feedback:  strings.TrimSpace(verdict.Feedback),
		Sources:   evaluationSources(st, section),
	}

	e.logger.Info("Section evaluated",
		"section", id,
		"score", result.Score,
		"passed", result.Passed)
	return result, nil
}

type verdict struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// parseVerdict extracts the scored verdict from the model response,
// tolerating surrounding prose or code fences.
func parseVerdict(content string) (verdict, error) {
	var v verdict
	if err := json.Unmarshal([]byte(extractJSONObject(content)), &v); err != nil {
		return v, fmt.Errorf("parse verdict: %w", err)
	}
	if v.Score < 0 || v.Score > 1 {
		return v, fmt.Errorf("verdict score %v out of range", v.Score)
	}
	return v, nil
}

// buildEvaluationPrompt renders the draft plus the context it must be
// consistent with.
func buildEvaluationPrompt(st *workflow.WorkflowState, section *workflow.Section) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Section under review: %s\n\n", section.Title)
	fmt.Fprintf(&b, "Draft:\n%s\n\n", section.Content)

	for _, depID := range section.DependsOn {
		dep, ok := st.Sections[depID]
		if !ok || dep.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "Approved section %q it must be consistent with:\n%s\n\n", dep.Title, dep.Content)
	}

	writeResearchContext(&b, st)

	b.WriteString("Score the draft now.")
	return b.String()
}

// evaluationSources lists what the verdict was based on: upstream sections
// and the completed research topics.
func evaluationSources(st *workflow.WorkflowState, section *workflow.Section) []string {
	var sources []string
	for _, depID := range section.DependsOn {
		sources = append(sources, "section:"+depID)
	}
	for _, rec := range sortedResearch(st) {
		if rec.Complete {
			sources = append(sources, "research:"+rec.Topic)
		}
	}
	return sources
}

// extractJSONObject trims surrounding prose or code fences from a model
// response that should contain one JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}

// sortedResearch returns research records in topic order for deterministic
// prompts.
func sortedResearch(st *workflow.WorkflowState) []*workflow.TopicResearch {
	topics := make([]string, 0, len(st.Research))
	for topic := range st.Research {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	out := make([]*workflow.TopicResearch, 0, len(topics))
	for _, topic := range topics {
		out = append(out, st.Research[topic])
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
