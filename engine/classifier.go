package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

const classifierSystemPrompt = `You classify a human's answer to a workflow question.
Reply with exactly one word:
- satisfied: the human accepts the work as-is
- needs_refinement: the human wants targeted changes
- needs_restart: the human rejects the direction entirely`

// AgentClassifier resolves interrupt answers with the "classification"
// capability. Errors propagate to the interrupt manager, which falls back to
// keyword classification, so an unavailable model never blocks resumption.
type AgentClassifier struct {
	invoker Invoker
}

// NewAgentClassifier creates an LLM-backed answer classifier.
func NewAgentClassifier(invoker Invoker) *AgentClassifier {
	return &AgentClassifier{invoker: invoker}
}

// Classify implements workflow.AnswerClassifier.
func (c *AgentClassifier) Classify(ctx context.Context, question, answer string) (workflow.Resolution, error) {
	resp, err := c.invoker.Complete(ctx, llm.Request{
		Capability: "classification",
		Messages: []llm.Message{
			{Role: "system", Content: classifierSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("Question: %s\n\nAnswer: %s", question, answer)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("classify answer: %w", err)
	}

	switch resolution := workflow.Resolution(strings.ToLower(strings.TrimSpace(resp.Content))); resolution {
	case workflow.ResolutionSatisfied, workflow.ResolutionNeedsRefinement, workflow.ResolutionNeedsRestart:
		return resolution, nil
	default:
		return "", fmt.Errorf("classify answer: unrecognized resolution %q", resp.Content)
	}
}
