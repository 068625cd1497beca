package workflow

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWorkflowState(t *testing.T) {
	st := NewWorkflowState([]*Section{
		{ID: "problem_statement", Title: "Problem Statement"},
		{ID: "solution", Title: "Solution", DependsOn: []string{"problem_statement"}},
	}, []string{"funder_background", "community_needs"})

	assert.True(t, strings.HasPrefix(st.ID, "wf-"))
	assert.Equal(t, 0, st.Step)
	assert.Equal(t, []string{"problem_statement", "solution"}, st.SectionIDs())
	assert.Equal(t, []string{"community_needs", "funder_background"}, st.Topics())

	// Sections default to not_started
	assert.Equal(t, StatusNotStarted, st.Sections["solution"].Status)

	// Research records start empty and incomplete
	rec := st.Research["funder_background"]
	require.NotNil(t, rec)
	assert.False(t, rec.Complete)
	assert.Empty(t, rec.SearchQueries)
}

func TestWorkflowState_Clone_Isolation(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a", Title: "A"}}, []string{"topic"})
	st.Research["topic"].SearchQueries = []string{"q1"}
	st.Research["topic"].Entities = []Entity{
		{Name: "Acme Fund", Type: "funder", Attributes: map[string]string{"focus": "health"}},
	}
	st.Connections["c1"] = &ConnectionPair{ID: "c1", Confidence: 0.5, Sources: []string{"s1"}}
	now := time.Now().UTC()
	st.Interrupt = &InterruptState{ID: "int-1", Checkpoint: "final", ResumedAt: &now}

	clone := st.Clone()
	clone.Sections["a"].Content = "changed"
	clone.Research["topic"].SearchQueries[0] = "changed"
	clone.Research["topic"].Entities[0].Attributes["focus"] = "changed"
	clone.Connections["c1"].Sources[0] = "changed"
	*clone.Interrupt.ResumedAt = clone.Interrupt.ResumedAt.Add(time.Hour)

	assert.Empty(t, st.Sections["a"].Content)
	assert.Equal(t, "q1", st.Research["topic"].SearchQueries[0])
	assert.Equal(t, "health", st.Research["topic"].Entities[0].Attributes["focus"])
	assert.Equal(t, "s1", st.Connections["c1"].Sources[0])
	assert.Equal(t, now, *st.Interrupt.ResumedAt)
}

func TestWorkflowState_IsInterrupted(t *testing.T) {
	st := NewWorkflowState([]*Section{{ID: "a"}}, nil)
	assert.False(t, st.IsInterrupted())

	st.Interrupt = NewInterruptState("final_review", "Approve the draft?")
	assert.True(t, st.IsInterrupted())

	// A resolved interrupt stays in state but no longer suspends routing
	now := time.Now().UTC()
	st.Interrupt.ResumedAt = &now
	assert.False(t, st.IsInterrupted())
}

func TestWorkflowState_AllSectionsApproved(t *testing.T) {
	empty := NewWorkflowState(nil, nil)
	assert.False(t, empty.AllSectionsApproved())

	st := NewWorkflowState([]*Section{
		{ID: "a", Status: StatusApproved},
		{ID: "b", Status: StatusApproved},
	}, nil)
	assert.True(t, st.AllSectionsApproved())

	st.Sections["b"].Status = StatusStale
	assert.False(t, st.AllSectionsApproved())
}

func TestEntity_Key(t *testing.T) {
	a := Entity{Name: "Acme Fund", Type: "Funder"}
	b := Entity{Name: "  acme fund ", Type: "funder"}
	c := Entity{Name: "Acme Fund", Type: "program"}

	assert.Equal(t, a.Key(), b.Key())
	assert.NotEqual(t, a.Key(), c.Key())
}
