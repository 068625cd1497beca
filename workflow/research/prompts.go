package research

import (
	"fmt"
	"strings"

	"github.com/rudihinds/propforge/workflow"
)

const topicSystemPrompt = `You are a research agent gathering material for a grant proposal.
Work one topic at a time using the available tools:
- web_search to discover relevant pages
- fetch_page to extract a page's content
- record_entities to note named entities you found (funders, programs, regulations, statistics sources)
- entity_deep_dive to build a structured profile of one recorded entity

Never repeat a search query or re-fetch a URL listed as already used.
When your findings cover the topic, reply with a short summary and no tool calls.`

// BuildTopicPrompt renders the per-iteration user prompt for a topic. It
// lists everything already gathered so the model does not repeat work, plus
// the remaining resource budget.
func BuildTopicPrompt(rec *workflow.TopicResearch, limits workflow.ResearchLimits) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Research topic: %s\n\n", rec.Topic)

	if len(rec.SearchQueries) > 0 {
		b.WriteString("Queries already issued (do not repeat):\n")
		for _, q := range rec.SearchQueries {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	if len(rec.ExtractedURLs) > 0 {
		b.WriteString("URLs already extracted (do not re-fetch):\n")
		for _, u := range rec.ExtractedURLs {
			fmt.Fprintf(&b, "- %s\n", u)
		}
		b.WriteString("\n")
	}

	if len(rec.Entities) > 0 {
		b.WriteString("Entities recorded so far:\n")
		for _, e := range rec.Entities {
			mark := "needs deep-dive"
			if e.Searched {
				mark = "profiled"
			}
			fmt.Fprintf(&b, "- %s (%s) [%s]\n", e.Name, e.Type, mark)
		}
		b.WriteString("\n")
	}

	if len(rec.Insights) > 0 {
		b.WriteString("Findings so far:\n")
		for _, ins := range rec.Insights {
			fmt.Fprintf(&b, "- %s\n", ins.Text)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Remaining budget: %d searches, %d page fetches, %d entities.\n",
		remaining(limits.MaxQueries, len(rec.SearchQueries)),
		remaining(limits.MaxURLs, len(rec.ExtractedURLs)),
		remaining(limits.MaxEntities, len(rec.Entities)))
	b.WriteString("Continue researching with tool calls, or summarize if the topic is covered.")

	return b.String()
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
