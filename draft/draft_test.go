package draft

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/workflow"
)

type memPersister struct {
	mu     sync.Mutex
	states map[string]*workflow.WorkflowState
}

func (m *memPersister) Save(_ context.Context, id string, st *workflow.WorkflowState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.states == nil {
		m.states = make(map[string]*workflow.WorkflowState)
	}
	m.states[id] = st.Clone()
	return nil
}

func (m *memPersister) Load(_ context.Context, id string) (*workflow.WorkflowState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return st.Clone(), nil
}

// stubInvoker captures the last request and returns a canned response.
type stubInvoker struct {
	content string
	err     error
	last    llm.Request
}

func (s *stubInvoker) Complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func proposalStore(t *testing.T) *workflow.Store {
	t.Helper()

	st := workflow.NewWorkflowState([]*workflow.Section{
		{ID: "problem_statement", Title: "Problem Statement", Status: workflow.StatusApproved,
			Content: "Rural clinics lack telehealth capacity.", Version: 1},
		{ID: "solution", Title: "Proposed Solution", Status: workflow.StatusRunning,
			DependsOn: []string{"problem_statement"}},
	}, []string{"funders"})

	st.Research["funders"] = &workflow.TopicResearch{
		Topic:    "funders",
		Complete: true,
		Insights: []workflow.Insight{{Text: "The Acme Foundation funds rural telehealth."}},
		Entities: []workflow.Entity{{
			Name: "Acme Foundation", Type: "funder", Searched: true,
			Attributes: map[string]string{"funding_range": "$50k-$200k"},
		}},
	}

	store, err := workflow.NewStore(st, &memPersister{})
	require.NoError(t, err)
	return store
}

func TestGenerator_BuildsGroundedPrompt(t *testing.T) {
	store := proposalStore(t)
	invoker := &stubInvoker{content: "Our solution deploys telehealth carts to twelve rural clinics."}

	gen := NewGenerator(store, invoker)
	content, err := gen.Generate(context.Background(), "solution")
	require.NoError(t, err)
	assert.Contains(t, content, "telehealth carts")

	assert.Equal(t, "writing", invoker.last.Capability)
	require.Len(t, invoker.last.Messages, 2)
	prompt := invoker.last.Messages[1].Content
	assert.Contains(t, prompt, "Proposed Solution")
	assert.Contains(t, prompt, "Rural clinics lack telehealth capacity.")
	assert.Contains(t, prompt, "[funders] The Acme Foundation funds rural telehealth.")
	assert.Contains(t, prompt, "Acme Foundation (funder) funding_range=$50k-$200k;")
	assert.NotContains(t, prompt, "Reviewer feedback")
}

func TestGenerator_IncludesRevisionGuidance(t *testing.T) {
	store := proposalStore(t)
	_, err := store.Apply(context.Background(), workflow.SectionDelta{Section: workflow.Section{
		ID: "solution", Title: "Proposed Solution", Status: workflow.StatusRunning,
		Content:  "A vague first draft.",
		Guidance: "Name the clinics and cite the needs assessment.",
		Version:  1,
	}})
	require.NoError(t, err)

	invoker := &stubInvoker{content: "Revised draft."}
	gen := NewGenerator(store, invoker)
	_, err = gen.Generate(context.Background(), "solution")
	require.NoError(t, err)

	prompt := invoker.last.Messages[1].Content
	assert.Contains(t, prompt, "Name the clinics and cite the needs assessment.")
	assert.Contains(t, prompt, "A vague first draft.")
}

func TestGenerator_Errors(t *testing.T) {
	store := proposalStore(t)

	t.Run("unknown section", func(t *testing.T) {
		gen := NewGenerator(store, &stubInvoker{content: "x"})
		_, err := gen.Generate(context.Background(), "missing")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown section")
	})

	t.Run("empty draft", func(t *testing.T) {
		gen := NewGenerator(store, &stubInvoker{content: "   \n"})
		_, err := gen.Generate(context.Background(), "solution")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty draft")
	})

	t.Run("agent unavailable", func(t *testing.T) {
		gen := NewGenerator(store, &stubInvoker{err: errors.New("all endpoints down")})
		_, err := gen.Generate(context.Background(), "solution")
		require.Error(t, err)
	})
}

func draftedStore(t *testing.T) *workflow.Store {
	t.Helper()
	store := proposalStore(t)
	_, err := store.Apply(context.Background(), workflow.SectionDelta{Section: workflow.Section{
		ID: "solution", Title: "Proposed Solution", Status: workflow.StatusReadyForEvaluation,
		Content: "Our solution deploys telehealth carts.", Version: 1,
	}})
	require.NoError(t, err)
	return store
}

func TestEvaluator_PassesAtThreshold(t *testing.T) {
	store := draftedStore(t)
	invoker := &stubInvoker{content: `{"score": 0.85, "feedback": "Strong and specific."}`}

	ev := NewEvaluator(store, invoker)
	result, err := ev.Evaluate(context.Background(), "solution")
	require.NoError(t, err)

	assert.Equal(t, "review", invoker.last.Capability)
	assert.True(t, result.Passed)
	assert.InDelta(t, 0.85, result.Score, 1e-9)
	assert.Contains(t, result.Sources, "section:problem_statement")
	assert.Contains(t, result.Sources, "research:funders")
}

func TestEvaluator_FailsBelowThreshold(t *testing.T) {
	store := draftedStore(t)
	invoker := &stubInvoker{content: "Here is my review:\n" +
		"```json\n{\"score\": 0.55, \"feedback\": \"Cite the needs assessment.\"}\n```"}

	ev := NewEvaluator(store, invoker)
	result, err := ev.Evaluate(context.Background(), "solution")
	require.NoError(t, err)

	assert.False(t, result.Passed)
	assert.Equal(t, "Cite the needs assessment.", result.Feedback)
}

func TestEvaluator_CustomThreshold(t *testing.T) {
	store := draftedStore(t)
	invoker := &stubInvoker{content: `{"score": 0.65, "feedback": ""}`}

	ev := NewEvaluator(store, invoker, WithApproveThreshold(0.6))
	result, err := ev.Evaluate(context.Background(), "solution")
	require.NoError(t, err)
	assert.True(t, result.Passed)
}

func TestEvaluator_Errors(t *testing.T) {
	tests := []struct {
		name    string
		section string
		invoker *stubInvoker
		wantMsg string
	}{
		{
			name:    "unknown section",
			section: "missing",
			invoker: &stubInvoker{content: `{"score": 0.9}`},
			wantMsg: "unknown section",
		},
		{
			name:    "no draft content",
			section: "budget",
			invoker: &stubInvoker{content: `{"score": 0.9}`},
			wantMsg: "no draft content",
		},
		{
			name:    "unparseable verdict",
			section: "solution",
			invoker: &stubInvoker{content: "Looks fine to me."},
			wantMsg: "parse verdict",
		},
		{
			name:    "score out of range",
			section: "solution",
			invoker: &stubInvoker{content: `{"score": 8.5, "feedback": ""}`},
			wantMsg: "out of range",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := draftedStore(t)
			if tt.section == "budget" {
				_, err := store.Apply(context.Background(), workflow.SectionDelta{Section: workflow.Section{
					ID: "budget", Title: "Budget", Status: workflow.StatusNotStarted,
				}})
				require.NoError(t, err)
			}

			ev := NewEvaluator(store, tt.invoker)
			_, err := ev.Evaluate(context.Background(), tt.section)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseVerdict(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    float64
		wantErr bool
	}{
		{name: "bare json", content: `{"score": 0.9, "feedback": "ok"}`, want: 0.9},
		{name: "fenced", content: "```json\n{\"score\": 0.4, \"feedback\": \"thin\"}\n```", want: 0.4},
		{name: "prose wrapped", content: `My verdict: {"score": 1.0, "feedback": ""} as requested`, want: 1.0},
		{name: "zero score", content: `{"score": 0, "feedback": "off topic"}`, want: 0},
		{name: "no json", content: "seems good", wantErr: true},
		{name: "negative", content: `{"score": -0.2}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := parseVerdict(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tt.want, v.Score, 1e-9)
		})
	}
}
