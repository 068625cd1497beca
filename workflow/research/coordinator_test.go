package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
	toolsresearch "github.com/rudihinds/propforge/tools/research"
	"github.com/rudihinds/propforge/workflow"
)

// memPersister is a throwaway persister for coordinator tests.
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

// scriptedInvoker returns canned responses in order, then repeats the last.
type scriptedInvoker struct {
	mu        sync.Mutex
	responses []*llm.Response
	err       error
	calls     int
}

func (s *scriptedInvoker) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	i := s.calls
	s.calls++
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

// stubRunner serves canned tool results by tool name.
type stubRunner struct {
	results map[string]tools.ToolResult
	errs    map[string]error
}

func (s stubRunner) Execute(_ context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	if err, ok := s.errs[call.Name]; ok {
		return tools.ToolResult{}, err
	}
	r := s.results[call.Name]
	r.CallID = call.ID
	return r, nil
}

func researchStore(t *testing.T, topics ...string) *workflow.Store {
	t.Helper()
	store, err := workflow.NewStore(workflow.NewWorkflowState(nil, topics), &memPersister{})
	require.NoError(t, err)
	return store
}

func searchCall(query string) llm.ToolCall {
	args, _ := json.Marshal(map[string]string{"query": query})
	return llm.ToolCall{ID: "c-" + query, Name: toolsresearch.ToolWebSearch, Arguments: args}
}

func recordEntitiesCall(names ...string) llm.ToolCall {
	var entities []map[string]string
	for _, n := range names {
		entities = append(entities, map[string]string{"name": n, "type": "funder"})
	}
	args, _ := json.Marshal(map[string]any{"entities": entities})
	return llm.ToolCall{ID: "c-record", Name: ToolRecordEntities, Arguments: args}
}

func TestCoordinator_TopicCompletesOnSummary(t *testing.T) {
	store := researchStore(t, "funders")
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("community health grants")}},
		{Content: "Funders identified; the Acme Foundation is the strongest match."},
	}}

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{
		results: map[string]tools.ToolResult{toolsresearch.ToolWebSearch: {Content: `{"query":"q","results":[]}`}},
	}))

	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	rec := store.Snapshot().Research["funders"]
	assert.True(t, rec.Complete)
	assert.Empty(t, rec.Error)
	assert.Equal(t, []string{"community health grants"}, rec.SearchQueries)
	require.NotEmpty(t, rec.Insights)
	assert.Contains(t, rec.Insights[len(rec.Insights)-1].Text, "Acme Foundation")
}

func TestCoordinator_CeilingForcesCompletion(t *testing.T) {
	store := researchStore(t, "funders")

	// The model keeps searching forever; the query ceiling must stop it.
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("q1")}},
		{ToolCalls: []llm.ToolCall{searchCall("q2")}},
		{ToolCalls: []llm.ToolCall{searchCall("q3")}},
		{ToolCalls: []llm.ToolCall{searchCall("q4")}},
	}}

	c := NewCoordinator(store, invoker,
		WithLimits(workflow.ResearchLimits{MaxQueries: 2, MaxURLs: 99, MaxEntities: 99}),
		WithToolRunner(stubRunner{results: map[string]tools.ToolResult{
			toolsresearch.ToolWebSearch: {Content: `{"query":"q","results":[]}`},
		}}))

	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	rec := store.Snapshot().Research["funders"]
	assert.True(t, rec.Complete)
	assert.Len(t, rec.SearchQueries, 2)
}

func TestCoordinator_SufficiencyStopsEarly(t *testing.T) {
	store := researchStore(t, "funders")

	invoker := &scriptedInvoker{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{recordEntitiesCall("Acme", "Beta Fund", "Gamma Trust")}},
		{Content: `[]`},
	}}

	c := NewCoordinator(store, invoker,
		WithSufficiency(SufficiencyConfig{MinEntities: 3}),
		WithToolRunner(stubRunner{}))

	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	rec := store.Snapshot().Research["funders"]
	assert.True(t, rec.Complete)
	assert.Len(t, rec.Entities, 3)
	assert.Empty(t, rec.SearchQueries)
}

func TestCoordinator_AgentUnavailableCompletesWithError(t *testing.T) {
	store := researchStore(t, "funders")
	invoker := &scriptedInvoker{err: &llm.AgentUnavailableError{
		Capability: "research", Last: errors.New("all endpoints down"),
	}}

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))
	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	st := store.Snapshot()
	rec := st.Research["funders"]
	assert.True(t, rec.Complete)
	assert.NotEmpty(t, rec.Error)
	require.NotEmpty(t, st.Errors)
	assert.Equal(t, "research", st.Errors[0].Component)
}

func TestCoordinator_ToolFailuresBounded(t *testing.T) {
	store := researchStore(t, "funders")
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("q1")}},
		{ToolCalls: []llm.ToolCall{searchCall("q2")}},
		{ToolCalls: []llm.ToolCall{searchCall("q3")}},
		{ToolCalls: []llm.ToolCall{searchCall("q4")}},
	}}

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{
		errs: map[string]error{toolsresearch.ToolWebSearch: errors.New("search API down")},
	}))

	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	st := store.Snapshot()
	rec := st.Research["funders"]
	assert.True(t, rec.Complete)
	assert.Equal(t, "too many tool failures", rec.Error)
	// Each failed call is recorded in the error log
	assert.GreaterOrEqual(t, len(st.Errors), 3)
}

func TestCoordinator_IterationBound(t *testing.T) {
	store := researchStore(t, "funders")

	// Tool calls that never advance the record (model-visible error only)
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{ToolCalls: []llm.ToolCall{searchCall("q")}},
	}}

	c := NewCoordinator(store, invoker,
		WithMaxIterations(2),
		WithToolRunner(stubRunner{results: map[string]tools.ToolResult{
			toolsresearch.ToolWebSearch: {Error: "rate limited"},
		}}))

	require.NoError(t, c.Run(context.Background(), []string{"funders"}))

	rec := store.Snapshot().Research["funders"]
	assert.True(t, rec.Complete)
	assert.Equal(t, "iteration bound reached", rec.Error)
}

func TestCoordinator_TopicsRunConcurrently(t *testing.T) {
	topics := []string{"funders", "community_needs", "regulations"}
	store := researchStore(t, topics...)

	// Barrier: every topic's agent must be in flight at once before any
	// completes, so the test hangs if topics run sequentially.
	invoker := &barrierInvoker{}
	invoker.barrier.Add(len(topics))

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))
	require.NoError(t, c.Run(context.Background(), topics))

	for _, topic := range topics {
		assert.True(t, store.Snapshot().Research[topic].Complete, "topic %s", topic)
	}
}

type barrierInvoker struct {
	barrier sync.WaitGroup
}

func (p *barrierInvoker) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	p.barrier.Done()
	p.barrier.Wait()
	return &llm.Response{Content: "topic covered"}, nil
}

func TestCoordinator_CancellationStopsLoops(t *testing.T) {
	store := researchStore(t, "funders")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	invoker := &scriptedInvoker{responses: []*llm.Response{{Content: "never reached"}}}
	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))

	err := c.Run(ctx, []string{"funders"})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, store.Snapshot().Research["funders"].Complete)
	assert.Equal(t, 0, invoker.calls)
}

func TestDeltaFromToolResult_DeepDive(t *testing.T) {
	report, _ := json.Marshal(toolsresearch.DeepDiveReport{
		Name: "Acme", Type: "funder", Summary: "Rural health funder",
		Attributes: map[string]string{"funding_range": "$50k-$200k"},
	})

	delta, err := deltaFromToolResult("funders",
		llm.ToolCall{Name: toolsresearch.ToolEntityDeepDive},
		tools.ToolResult{Content: string(report)})
	require.NoError(t, err)

	require.Len(t, delta.Entities, 1)
	assert.True(t, delta.Entities[0].Searched)
	assert.Equal(t, "$50k-$200k", delta.Entities[0].Attributes["funding_range"])
	require.Len(t, delta.Insights, 1)
}

func TestDeltaFromToolResult_FetchPage(t *testing.T) {
	extract, _ := json.Marshal(toolsresearch.PageExtract{
		URL: "https://acme.org/grants", Domain: "acme.org", Title: "Grants", Markdown: "...",
	})
	args, _ := json.Marshal(map[string]string{"url": "https://acme.org/grants"})

	delta, err := deltaFromToolResult("funders",
		llm.ToolCall{Name: toolsresearch.ToolFetchPage, Arguments: args},
		tools.ToolResult{Content: string(extract)})
	require.NoError(t, err)

	assert.Equal(t, []string{"https://acme.org/grants"}, delta.ExtractedURLs)
	require.Len(t, delta.Insights, 1)
	assert.Equal(t, "https://acme.org/grants", delta.Insights[0].SourceURL)
}

func TestDeltaFromToolResult_UnknownTool(t *testing.T) {
	_, err := deltaFromToolResult("funders",
		llm.ToolCall{Name: "rm_rf"}, tools.ToolResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected tool")
}

func TestBuildTopicPrompt_NoRepeat(t *testing.T) {
	rec := &workflow.TopicResearch{
		Topic:         "funders",
		SearchQueries: []string{"community health grants"},
		ExtractedURLs: []string{"https://acme.org/grants"},
		Entities:      []workflow.Entity{{Name: "Acme", Type: "funder"}},
		Insights:      []workflow.Insight{{Text: "Acme funds rural health"}},
	}

	prompt := BuildTopicPrompt(rec, workflow.DefaultResearchLimits())

	assert.Contains(t, prompt, "community health grants")
	assert.Contains(t, prompt, "do not repeat")
	assert.Contains(t, prompt, "https://acme.org/grants")
	assert.Contains(t, prompt, "Acme (funder) [needs deep-dive]")
	assert.Contains(t, prompt, fmt.Sprintf("%d searches", 7))
}

func TestSufficiency(t *testing.T) {
	cfg := SufficiencyConfig{
		AuthoritativeDomains: []string{"grants.gov"},
		MinEntities:          3,
	}

	assert.False(t, cfg.Sufficient(&workflow.TopicResearch{Topic: "t"}))

	assert.True(t, cfg.Sufficient(&workflow.TopicResearch{
		Topic:    "t",
		Entities: make([]workflow.Entity, 3),
	}))

	assert.True(t, cfg.Sufficient(&workflow.TopicResearch{
		Topic:         "t",
		ExtractedURLs: []string{"https://www.grants.gov/view/123"},
	}))

	assert.False(t, cfg.Sufficient(&workflow.TopicResearch{
		Topic:         "t",
		ExtractedURLs: []string{"https://notgrants.gov.example.com/x"},
	}))
}

// analysisStore is a store whose single topic already completed with
// profiled entities, ready for the cross-topic pass.
func analysisStore(t *testing.T) *workflow.Store {
	t.Helper()
	store := researchStore(t, "funders")
	_, err := store.Apply(context.Background(), workflow.ResearchDelta{
		Topic:    "funders",
		Complete: true,
		Entities: []workflow.Entity{
			{Name: "Acme Foundation", Type: "funder", Searched: true},
			{Name: "Community Health Program", Type: "program"},
		},
		Insights: []workflow.Insight{{Text: "Acme funds community health work."}},
	})
	require.NoError(t, err)
	return store
}

func TestCoordinator_AnalysisRecordsConnections(t *testing.T) {
	store := analysisStore(t)
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{Content: `Here are the links:
[{"a": "Acme Foundation", "b": "Community Health Program", "description": "Acme funds the program", "confidence": 0.85}]`},
	}}

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))
	require.NoError(t, c.Run(context.Background(), nil))

	st := store.Snapshot()
	require.Len(t, st.Connections, 1)
	pair := st.Connections["acme foundation|community health program"]
	require.NotNil(t, pair)
	assert.Equal(t, 0.85, pair.Confidence)
	assert.ElementsMatch(t, []string{"Acme Foundation", "Community Health Program"}, pair.Sources)

	// Connections already present: a second run does not re-invoke.
	require.NoError(t, c.Run(context.Background(), nil))
	assert.Equal(t, 1, invoker.calls)
}

func TestCoordinator_AnalysisFailureIsContained(t *testing.T) {
	store := analysisStore(t)
	invoker := &scriptedInvoker{responses: []*llm.Response{
		{Content: "no structured reply here"},
	}}

	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))
	require.NoError(t, c.Run(context.Background(), nil))

	st := store.Snapshot()
	assert.Empty(t, st.Connections)
	require.NotEmpty(t, st.Errors)
	assert.Equal(t, "research", st.Errors[0].Component)
	assert.Contains(t, st.Errors[0].Message, "connection analysis")
}

func TestCoordinator_AnalysisSkippedWithTooFewEntities(t *testing.T) {
	store := researchStore(t, "funders")
	_, err := store.Apply(context.Background(), workflow.ResearchDelta{
		Topic:    "funders",
		Complete: true,
		Entities: []workflow.Entity{{Name: "Acme Foundation", Type: "funder"}},
	})
	require.NoError(t, err)

	invoker := &scriptedInvoker{responses: []*llm.Response{{Content: "[]"}}}
	c := NewCoordinator(store, invoker, WithToolRunner(stubRunner{}))
	require.NoError(t, c.Run(context.Background(), nil))

	assert.Equal(t, 0, invoker.calls)
	assert.Empty(t, store.Snapshot().Connections)
}

func TestParseConnections(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"bare array", `[{"a":"x","b":"y","description":"d","confidence":0.5}]`, 1, false},
		{"prose wrapped", `Links found: [{"a":"x","b":"y","confidence":1}] as requested`, 1, false},
		{"empty array", `[]`, 0, false},
		{"drops one-sided entry", `[{"a":"x","b":"","confidence":0.5}]`, 0, false},
		{"drops out-of-range confidence", `[{"a":"x","b":"y","confidence":1.5}]`, 0, false},
		{"no array", "nothing structured", 0, true},
		{"malformed json", `[{"a": }]`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pairs, err := parseConnections(tt.content)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, pairs, tt.want)
		})
	}
}

func TestConnectionID_OrderIndependent(t *testing.T) {
	assert.Equal(t, connectionID("Acme", "Beta Fund"), connectionID("beta fund", " acme "))
}
