package draft

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

// Invoker is the narrow agent surface the drafting components need.
type Invoker interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

const generatorSystemPrompt = `You write one section of a grant proposal.
Ground every claim in the research findings and the already-approved sections
provided. Write in clear, persuasive prose addressed to the funder. Respond
with the section text only, no preamble and no headings.`

// Generator drafts section content with the "writing" capability. It reads
// state but never mutates it; the caller records the result through the
// lifecycle controller.
type Generator struct {
	store   *workflow.Store
	invoker Invoker
	logger  *slog.Logger
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithGeneratorLogger sets the logger.
func WithGeneratorLogger(logger *slog.Logger) GeneratorOption {
	return func(g *Generator) {
		g.logger = logger
	}
}

// NewGenerator creates a section generator over the store.
func NewGenerator(store *workflow.Store, invoker Invoker, opts ...GeneratorOption) *Generator {
	g := &Generator{
		store:   store,
		invoker: invoker,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate drafts content for the given section from its approved
// dependencies, the research findings, and any reviewer guidance from a
// failed evaluation.
func (g *Generator) Generate(ctx context.Context, id string) (string, error) {
	st := g.store.Snapshot()
	section, ok := st.Sections[id]
	if !ok {
		return "", fmt.Errorf("generate section: unknown section %s", id)
	}

	resp, err := g.invoker.Complete(ctx, llm.Request{
		Capability: "writing",
		Messages: []llm.Message{
			{Role: "system", Content: generatorSystemPrompt},
			{Role: "user", Content: buildGenerationPrompt(st, section)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("generate section %s: %w", id, err)
	}

	content := strings.TrimSpace(resp.Content)
	if content == "" {
		return "", fmt.Errorf("generate section %s: empty draft", id)
	}

	g.logger.Info("Section drafted",
		"section", id,
		"chars", len(content),
		"revision", section.Revisions)
	return content, nil
}

// buildGenerationPrompt renders everything the writer needs: the section
// brief, upstream approved content, research findings, and revision guidance.
func buildGenerationPrompt(st *workflow.WorkflowState, section *workflow.Section) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Section to write: %s\n", section.Title)
	fmt.Fprintf(&b, "Section id: %s\n\n", section.ID)

	for _, depID := range section.DependsOn {
		dep, ok := st.Sections[depID]
		if !ok || dep.Content == "" {
			continue
		}
		fmt.Fprintf(&b, "Approved section %q:\n%s\n\n", dep.Title, dep.Content)
	}

	writeResearchContext(&b, st)

	if section.Guidance != "" {
		fmt.Fprintf(&b, "Reviewer feedback on the previous draft:\n%s\n\n", section.Guidance)
		if section.Content != "" {
			fmt.Fprintf(&b, "Previous draft:\n%s\n\n", section.Content)
		}
	}

	b.WriteString("Write the section now.")
	return b.String()
}

// writeResearchContext appends completed research findings to the prompt:
// insights first, then profiled entities with their attributes.
func writeResearchContext(b *strings.Builder, st *workflow.WorkflowState) {
	var wrote bool
	for _, rec := range sortedResearch(st) {
		for _, ins := range rec.Insights {
			if !wrote {
				b.WriteString("Research findings:\n")
				wrote = true
			}
			fmt.Fprintf(b, "- [%s] %s\n", rec.Topic, ins.Text)
		}
	}
	if wrote {
		b.WriteString("\n")
		wrote = false
	}

	for _, rec := range sortedResearch(st) {
		for _, e := range rec.Entities {
			if !e.Searched {
				continue
			}
			if !wrote {
				b.WriteString("Profiled entities:\n")
				wrote = true
			}
			fmt.Fprintf(b, "- %s (%s)", e.Name, e.Type)
			for _, k := range sortedKeys(e.Attributes) {
				fmt.Fprintf(b, " %s=%s;", k, e.Attributes[k])
			}
			b.WriteString("\n")
		}
	}
	if wrote {
		b.WriteString("\n")
	}
}
