package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

const analysisSystemPrompt = `You are an analyst connecting research findings for a grant proposal.
Given the entities and findings gathered across research topics, identify pairs
that reinforce each other: a funder and a program it funds, a statistic that
supports a claimed need, a regulation that constrains a proposed approach.

Reply with ONLY a JSON array, no prose:
[{"a": "first item", "b": "second item", "description": "how they connect", "confidence": 0.0-1.0}]
Reply with [] if nothing connects.`

// connectionVerdict is the JSON shape the analysis reply must carry.
type connectionVerdict struct {
	A           string  `json:"a"`
	B           string  `json:"b"`
	Description string  `json:"description"`
	Confidence  float64 `json:"confidence"`
}

// analyzeConnections runs the cross-topic analysis pass once every topic is
// complete, linking entities and findings that reinforce each other. The
// pass degrades like the rest of the phase: an unavailable agent or an
// unparseable reply is logged and recorded, and drafting proceeds without
// connections.
func (c *Coordinator) analyzeConnections(ctx context.Context) {
	st := c.store.Snapshot()
	if len(st.Connections) > 0 {
		return
	}

	entities := 0
	for _, topic := range st.Topics() {
		rec := st.Research[topic]
		if !rec.Complete {
			return
		}
		entities += len(rec.Entities)
	}
	if entities < 2 {
		return
	}

	resp, err := c.invoker.Complete(ctx, llm.Request{
		Capability: "research",
		Messages: []llm.Message{
			{Role: "system", Content: analysisSystemPrompt},
			{Role: "user", Content: buildAnalysisPrompt(st)},
		},
	})
	if err != nil {
		c.logger.Warn("Connection analysis unavailable", "error", err)
		c.recordAnalysisError(ctx, err)
		return
	}

	pairs, err := parseConnections(resp.Content)
	if err != nil {
		c.logger.Warn("Connection analysis reply unusable", "error", err)
		c.recordAnalysisError(ctx, err)
		return
	}
	if len(pairs) == 0 {
		return
	}

	if _, err := c.store.Apply(ctx, workflow.ConnectionDelta{Pairs: pairs}); err != nil {
		c.logger.Error("Failed to persist connections", "error", err)
		return
	}
	c.logger.Info("Connection analysis complete", "connections", len(pairs))
}

func (c *Coordinator) recordAnalysisError(ctx context.Context, cause error) {
	if _, err := c.store.Apply(ctx, workflow.ErrorDelta{
		Component: "research",
		Message:   "connection analysis: " + cause.Error(),
	}); err != nil {
		c.logger.Error("Failed to record analysis error", "error", err)
	}
}

// buildAnalysisPrompt renders every topic's entities and findings for the
// cross-topic pass.
func buildAnalysisPrompt(st *workflow.WorkflowState) string {
	var b strings.Builder
	b.WriteString("Research gathered so far:\n\n")

	for _, topic := range st.Topics() {
		rec := st.Research[topic]
		fmt.Fprintf(&b, "Topic: %s\n", topic)
		for _, e := range rec.Entities {
			fmt.Fprintf(&b, "- entity: %s (%s)", e.Name, e.Type)
			for _, k := range sortedAttributeKeys(e.Attributes) {
				fmt.Fprintf(&b, " %s=%s;", k, e.Attributes[k])
			}
			b.WriteString("\n")
		}
		for _, ins := range rec.Insights {
			fmt.Fprintf(&b, "- finding: %s\n", ins.Text)
		}
		b.WriteString("\n")
	}

	b.WriteString("List the pairs that reinforce each other.")
	return b.String()
}

// parseConnections extracts the JSON array from the reply and converts each
// usable verdict into a connection pair. Entries missing a side or carrying
// an out-of-range confidence are dropped rather than failing the batch.
func parseConnections(content string) ([]workflow.ConnectionPair, error) {
	raw := extractJSONArray(content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON array in analysis reply")
	}

	var verdicts []connectionVerdict
	if err := json.Unmarshal([]byte(raw), &verdicts); err != nil {
		return nil, fmt.Errorf("parse analysis reply: %w", err)
	}

	var pairs []workflow.ConnectionPair
	for _, v := range verdicts {
		if v.A == "" || v.B == "" || v.Confidence < 0 || v.Confidence > 1 {
			continue
		}
		pairs = append(pairs, workflow.ConnectionPair{
			ID:          connectionID(v.A, v.B),
			Description: v.Description,
			Confidence:  v.Confidence,
			Sources:     []string{v.A, v.B},
		})
	}
	return pairs, nil
}

// connectionID is the stable dedup key for a pair: both sides normalized and
// ordered, so re-analysis merges instead of duplicating.
func connectionID(a, b string) string {
	sides := []string{strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))}
	sort.Strings(sides)
	return sides[0] + "|" + sides[1]
}

func extractJSONArray(s string) string {
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func sortedAttributeKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
