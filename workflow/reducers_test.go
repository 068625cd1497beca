package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply_DoesNotMutateInput(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a"}}, []string{"topic"})

	out := Apply(st, ResearchDelta{Topic: "topic", SearchQueries: []string{"q1"}}, nil)

	assert.Empty(t, st.Research["topic"].SearchQueries)
	assert.Equal(t, []string{"q1"}, out.Research["topic"].SearchQueries)
	assert.Equal(t, st.Step+1, out.Step)
}

func TestReduceResearch_IdempotentMerge(t *testing.T) {
	st := NewWorkflowState(nil, []string{"funders"})
	delta := ResearchDelta{
		Topic:         "funders",
		SearchQueries: []string{"q1", "q2"},
		ExtractedURLs: []string{"https://example.org/a"},
		Entities:      []Entity{{Name: "Acme Fund", Type: "funder"}},
		Insights:      []Insight{{Text: "Acme funds rural health programs"}},
	}

	once := Apply(st, delta, nil)
	twice := Apply(once, delta, nil)

	rec := twice.Research["funders"]
	assert.Equal(t, []string{"q1", "q2"}, rec.SearchQueries)
	assert.Equal(t, []string{"https://example.org/a"}, rec.ExtractedURLs)
	assert.Len(t, rec.Entities, 1)
	assert.Len(t, rec.Insights, 1)
}

func TestReduceResearch_EntityMergeByKey(t *testing.T) {
	st := NewWorkflowState(nil, []string{"funders"})

	st = Apply(st, ResearchDelta{
		Topic: "funders",
		Entities: []Entity{
			{Name: "Acme Fund", Type: "funder", Attributes: map[string]string{"focus": "health"}},
		},
	}, nil)

	// Case-insensitive key: same entity, now with deep-dive results
	st = Apply(st, ResearchDelta{
		Topic: "funders",
		Entities: []Entity{
			{Name: "acme fund", Type: "funder", Searched: true,
				Attributes: map[string]string{"budget": "2M", "focus": "rural health"}},
		},
	}, nil)

	rec := st.Research["funders"]
	require.Len(t, rec.Entities, 1)
	e := rec.Entities[0]
	assert.True(t, e.Searched)
	assert.Equal(t, "rural health", e.Attributes["focus"]) // later write wins per field
	assert.Equal(t, "2M", e.Attributes["budget"])
}

func TestReduceResearch_CompleteNeverUnset(t *testing.T) {
	st := NewWorkflowState(nil, []string{"funders"})

	st = Apply(st, ResearchDelta{Topic: "funders", Complete: true}, nil)
	st = Apply(st, ResearchDelta{Topic: "funders", SearchQueries: []string{"late query"}}, nil)

	assert.True(t, st.Research["funders"].Complete)
}

func TestReduceResearch_UnknownTopicCreated(t *testing.T) {
	st := NewWorkflowState(nil, nil)
	st = Apply(st, ResearchDelta{Topic: "surprise", SearchQueries: []string{"q"}}, nil)

	require.Contains(t, st.Research, "surprise")
	assert.Equal(t, []string{"q"}, st.Research["surprise"].SearchQueries)
}

func TestReduceResearch_MissingTopicDropped(t *testing.T) {
	st := NewWorkflowState(nil, []string{"topic"})
	out := Apply(st, ResearchDelta{SearchQueries: []string{"q"}}, nil)

	// Fail-soft: the delta is dropped, the state survives
	assert.Empty(t, out.Research["topic"].SearchQueries)
}

func TestReduceSection_StaleWriteDropped(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a", Version: 3, Content: "current"}}, nil)

	out := Apply(st, SectionDelta{Section: Section{
		ID: "a", Version: 1, Content: "stale concurrent write", Status: StatusRunning,
	}}, nil)

	assert.Equal(t, "current", out.Sections["a"].Content)
	assert.Equal(t, 3, out.Sections["a"].Version)
}

func TestReduceSection_VersionBumpsOnContentChange(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a", Version: 3, Content: "old", Status: StatusRunning}}, nil)

	out := Apply(st, SectionDelta{Section: Section{
		ID: "a", Version: 3, Content: "new", Status: StatusReadyForEvaluation,
	}}, nil)
	assert.Equal(t, 4, out.Sections["a"].Version)

	// Status-only change keeps the version
	out = Apply(out, SectionDelta{Section: Section{
		ID: "a", Version: 4, Content: "new", Status: StatusApproved,
	}}, nil)
	assert.Equal(t, 4, out.Sections["a"].Version)
	assert.Equal(t, StatusApproved, out.Sections["a"].Status)
}

func TestReduceSection_InvalidStatusDropped(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a", Status: StatusQueued}}, nil)

	out := Apply(st, SectionDelta{Section: Section{ID: "a", Status: "exploded"}}, nil)
	assert.Equal(t, StatusQueued, out.Sections["a"].Status)
}

func TestReduceConnections_ConfidenceMerge(t *testing.T) {
	st := NewWorkflowState(nil, nil)

	st = Apply(st, ConnectionDelta{Pairs: []ConnectionPair{
		{ID: "c1", Description: "weak", Confidence: 0.4, Sources: []string{"s1"}},
	}}, nil)
	st = Apply(st, ConnectionDelta{Pairs: []ConnectionPair{
		{ID: "c1", Description: "strong", Confidence: 0.9, Sources: []string{"s2"}},
	}}, nil)

	c := st.Connections["c1"]
	assert.Equal(t, "strong", c.Description)
	assert.Equal(t, 0.9, c.Confidence)
	// Sources are unioned regardless of which record wins
	assert.ElementsMatch(t, []string{"s1", "s2"}, c.Sources)

	// A lower-confidence record does not replace, but its sources survive
	st = Apply(st, ConnectionDelta{Pairs: []ConnectionPair{
		{ID: "c1", Description: "weaker again", Confidence: 0.2, Sources: []string{"s3"}},
	}}, nil)
	c = st.Connections["c1"]
	assert.Equal(t, "strong", c.Description)
	assert.ElementsMatch(t, []string{"s1", "s2", "s3"}, c.Sources)
}

func TestReduceEvaluations_ScoreMerge(t *testing.T) {
	st := NewWorkflowState(nil, nil)

	st = Apply(st, EvaluationDelta{Results: []EvaluationResult{
		{SectionID: "a", Passed: false, Score: 0.5, Sources: []string{"r1"}},
	}}, nil)
	st = Apply(st, EvaluationDelta{Results: []EvaluationResult{
		{SectionID: "a", Passed: true, Score: 0.9, Sources: []string{"r2"}},
	}}, nil)

	e := st.Evaluations["a"]
	assert.True(t, e.Passed)
	assert.ElementsMatch(t, []string{"r1", "r2"}, e.Sources)
}

func TestReduceInterrupt(t *testing.T) {
	st := NewWorkflowState(nil, nil)

	interrupt := NewInterruptState("final_review", "Ship it?")
	st = Apply(st, InterruptDelta{Interrupt: interrupt}, nil)
	require.NotNil(t, st.Interrupt)
	assert.True(t, st.IsInterrupted())

	st = Apply(st, InterruptDelta{Clear: true}, nil)
	assert.Nil(t, st.Interrupt)
}

func TestApply_ErrorDelta(t *testing.T) {
	st := NewWorkflowState(nil, nil)

	st = Apply(st, ErrorDelta{Component: "research", Message: "search API down"}, nil)

	require.Len(t, st.Errors, 1)
	assert.Equal(t, "research", st.Errors[0].Component)
	assert.False(t, st.Errors[0].OccurredAt.IsZero())
}
