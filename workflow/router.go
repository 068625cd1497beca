package workflow

import (
	"github.com/rudihinds/propforge/graph"
)

// ActionKind identifies what the engine should do next.
type ActionKind string

const (
	// ActionWaitForHuman means an interrupt is pending; nothing runs until
	// the human answers.
	ActionWaitForHuman ActionKind = "wait_for_human"
	// ActionContinueResearch means one or more research topics still have
	// headroom under their resource ceilings.
	ActionContinueResearch ActionKind = "continue_research"
	// ActionGenerateSections means sections are ready to generate; the ids
	// are independent and may be dispatched in parallel.
	ActionGenerateSections ActionKind = "generate_sections"
	// ActionEvaluate means a section draft awaits evaluation.
	ActionEvaluate ActionKind = "evaluate"
	// ActionFinalize means every section is approved.
	ActionFinalize ActionKind = "finalize"
	// ActionIdle means nothing is actionable. Combined with a non-empty
	// error log this is the "something needs attention" signal.
	ActionIdle ActionKind = "idle"
)

// NextAction is the router's decision.
type NextAction struct {
	// Kind is what to do.
	Kind ActionKind

	// Topics lists research topics to continue, for ActionContinueResearch.
	Topics []string

	// Sections lists section ids, for ActionGenerateSections and
	// ActionEvaluate (a single id for the latter).
	Sections []string
}

// ResearchLimits are the resource ceilings bounding each topic agent loop.
// The first ceiling hit forces the topic complete.
type ResearchLimits struct {
	// MaxQueries caps search queries per topic.
	MaxQueries int

	// MaxURLs caps extracted URLs per topic.
	MaxURLs int

	// MaxEntities caps extracted entities per topic.
	MaxEntities int
}

// DefaultResearchLimits returns the standard topic ceilings.
func DefaultResearchLimits() ResearchLimits {
	return ResearchLimits{
		MaxQueries:  8,
		MaxURLs:     5,
		MaxEntities: 5,
	}
}

// AtCeiling reports whether a research record has hit any resource ceiling.
func (l ResearchLimits) AtCeiling(r *TopicResearch) bool {
	return len(r.SearchQueries) >= l.MaxQueries ||
		len(r.ExtractedURLs) >= l.MaxURLs ||
		len(r.Entities) >= l.MaxEntities
}

// Route inspects the state and decides the next component to invoke. It is a
// pure function of the state and graph: no hidden routing state, so resuming
// after a process restart reproduces the same decision.
//
// Priority order: pending interrupt, then research, then generation, then
// evaluation, then finalize, then idle.
//
// Every incomplete topic is routed, including one already at a resource
// ceiling: the coordinator force-completes such topics, so a crash between
// the ceiling-reaching delta and the completion mark still converges.
func Route(st *WorkflowState, g *graph.Graph) NextAction {
	if st.IsInterrupted() {
		return NextAction{Kind: ActionWaitForHuman}
	}

	var topics []string
	for _, topic := range st.Topics() {
		if st.Research[topic].Complete {
			continue
		}
		topics = append(topics, topic)
	}
	if len(topics) > 0 {
		return NextAction{Kind: ActionContinueResearch, Topics: topics}
	}

	if ready := SectionsReadyToStart(st, g); len(ready) > 0 {
		return NextAction{Kind: ActionGenerateSections, Sections: ready}
	}

	if pending := SectionsByStatus(st, StatusReadyForEvaluation); len(pending) > 0 {
		return NextAction{Kind: ActionEvaluate, Sections: pending[:1]}
	}

	if st.AllSectionsApproved() {
		return NextAction{Kind: ActionFinalize}
	}

	return NextAction{Kind: ActionIdle}
}
