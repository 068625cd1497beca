// Package workflow provides the shared state model, merge reducers, section
// lifecycle, interrupt handling, and routing for proposal generation
// workflows. All state changes flow through the reducers in this package;
// components never write to WorkflowState directly.
package workflow

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entity is a named subject extracted during research.
type Entity struct {
	// Name is the entity name as extracted.
	Name string `json:"name"`

	// Type classifies the entity (e.g., "funder", "program", "regulation").
	Type string `json:"type"`

	// Searched indicates a deep-dive has been run for this entity.
	Searched bool `json:"searched"`

	// Attributes holds structured facts collected about the entity.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Key returns the merge key for the entity: case-normalized name plus type.
func (e Entity) Key() string {
	return strings.ToLower(strings.TrimSpace(e.Name)) + "|" + strings.ToLower(e.Type)
}

// Insight is a research finding relevant to one or more sections.
type Insight struct {
	// Text is the finding itself.
	Text string `json:"text"`

	// SourceURL is where the finding came from, if known.
	SourceURL string `json:"source_url,omitempty"`
}

// TopicResearch accumulates the findings of one research topic agent.
// It is mutated only through the reducer, never by direct write, because
// several tool calls inside one agent loop may update it in the same tick.
type TopicResearch struct {
	// Topic is the research subject this record covers.
	Topic string `json:"topic"`

	// SearchQueries lists queries already issued, append-only and unique.
	SearchQueries []string `json:"search_queries,omitempty"`

	// ExtractedURLs lists URLs already extracted, append-only and unique.
	ExtractedURLs []string `json:"extracted_urls,omitempty"`

	// Entities holds extracted entities merged by name and type.
	Entities []Entity `json:"entities,omitempty"`

	// Insights holds findings collected for this topic.
	Insights []Insight `json:"insights,omitempty"`

	// Complete indicates the topic agent has finished, successfully or not.
	Complete bool `json:"complete"`

	// Error records why the topic was force-completed, if it failed.
	Error string `json:"error,omitempty"`
}

// Clone returns a deep copy of the research record.
func (r *TopicResearch) Clone() *TopicResearch {
	if r == nil {
		return nil
	}
	out := *r
	out.SearchQueries = append([]string(nil), r.SearchQueries...)
	out.ExtractedURLs = append([]string(nil), r.ExtractedURLs...)
	out.Insights = append([]Insight(nil), r.Insights...)
	out.Entities = make([]Entity, len(r.Entities))
	for i, e := range r.Entities {
		out.Entities[i] = e
		if e.Attributes != nil {
			attrs := make(map[string]string, len(e.Attributes))
			for k, v := range e.Attributes {
				attrs[k] = v
			}
			out.Entities[i].Attributes = attrs
		}
	}
	return &out
}

// ConnectionPair links two findings or sections that reinforce each other,
// produced by analysis steps and merged by confidence.
type ConnectionPair struct {
	// ID is the stable dedup key for the pair.
	ID string `json:"id"`

	// Description explains the connection.
	Description string `json:"description"`

	// Confidence scores the connection in [0,1].
	Confidence float64 `json:"confidence"`

	// Sources lists provenance for the connection. Merging two records with
	// the same ID unions the sources rather than discarding either side.
	Sources []string `json:"sources,omitempty"`
}

// EvaluationResult is the scored verdict for one section draft.
type EvaluationResult struct {
	// SectionID is the evaluated section; also the dedup key.
	SectionID string `json:"section_id"`

	// Passed indicates the draft met the evaluation criteria.
	Passed bool `json:"passed"`

	// Score is the evaluator's confidence in [0,1].
	Score float64 `json:"score"`

	// Feedback is revision guidance when the draft did not pass.
	Feedback string `json:"feedback,omitempty"`

	// Sources lists what the verdict was based on.
	Sources []string `json:"sources,omitempty"`
}

// InterruptState is a durable suspension point awaiting a human answer.
// At most one interrupt is active per workflow at a time.
type InterruptState struct {
	// ID uniquely identifies this interrupt (format: int-{uuid}).
	ID string `json:"id"`

	// Checkpoint names where the workflow suspended.
	Checkpoint string `json:"checkpoint"`

	// Question is what the human is being asked.
	Question string `json:"question"`

	// Answer is the human response, set on resume.
	Answer string `json:"answer,omitempty"`

	// Refinements counts needs_refinement resumptions for this checkpoint.
	Refinements int `json:"refinements"`

	// RaisedAt is when the workflow suspended.
	RaisedAt time.Time `json:"raised_at"`

	// ResumedAt is when the answer arrived, if it has.
	ResumedAt *time.Time `json:"resumed_at,omitempty"`
}

// NewInterruptState creates an interrupt for the given checkpoint.
func NewInterruptState(checkpoint, question string) *InterruptState {
	return &InterruptState{
		ID:         fmt.Sprintf("int-%s", uuid.New().String()[:8]),
		Checkpoint: checkpoint,
		Question:   question,
		RaisedAt:   time.Now().UTC(),
	}
}

// WorkflowError records a contained component failure. Errors never unwind
// across component boundaries; they land here and processing continues.
type WorkflowError struct {
	// Component names where the error occurred.
	Component string `json:"component"`

	// Message is the error text.
	Message string `json:"message"`

	// OccurredAt is when the error was recorded.
	OccurredAt time.Time `json:"occurred_at"`
}

// WorkflowState is the aggregate root for one proposal workflow. It is
// created when a document is started, persisted after every step, and
// destroyed only when the owning document is deleted.
type WorkflowState struct {
	// ID uniquely identifies the workflow (format: wf-{uuid}).
	ID string `json:"id"`

	// Step is a monotonically increasing counter, bumped per applied delta.
	Step int `json:"step"`

	// Sections holds every section keyed by id.
	Sections map[string]*Section `json:"sections"`

	// Research holds per-topic research records keyed by topic.
	Research map[string]*TopicResearch `json:"research"`

	// Connections holds analysis connection pairs keyed by id.
	Connections map[string]*ConnectionPair `json:"connections,omitempty"`

	// Evaluations holds the latest evaluation per section keyed by section id.
	Evaluations map[string]*EvaluationResult `json:"evaluations,omitempty"`

	// Interrupt is the active suspension point, nil when running.
	Interrupt *InterruptState `json:"interrupt,omitempty"`

	// Errors is the contained-failure log.
	Errors []WorkflowError `json:"errors,omitempty"`

	// CreatedAt is when the workflow was started.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the last delta was applied.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewWorkflowState creates a workflow with the given sections and research
// topics. Section dependency lists come from the dependency graph config.
func NewWorkflowState(sections []*Section, topics []string) *WorkflowState {
	st := &WorkflowState{
		ID:          fmt.Sprintf("wf-%s", uuid.New().String()),
		Sections:    make(map[string]*Section, len(sections)),
		Research:    make(map[string]*TopicResearch, len(topics)),
		Connections: make(map[string]*ConnectionPair),
		Evaluations: make(map[string]*EvaluationResult),
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	for _, s := range sections {
		sec := s.Clone()
		if sec.Status == "" {
			sec.Status = StatusNotStarted
		}
		st.Sections[sec.ID] = sec
	}
	for _, topic := range topics {
		st.Research[topic] = &TopicResearch{Topic: topic}
	}
	return st
}

// Clone returns a deep copy of the state. Readers always receive clones so
// partially merged state is never exposed.
func (st *WorkflowState) Clone() *WorkflowState {
	if st == nil {
		return nil
	}
	out := *st
	out.Sections = make(map[string]*Section, len(st.Sections))
	for id, s := range st.Sections {
		out.Sections[id] = s.Clone()
	}
	out.Research = make(map[string]*TopicResearch, len(st.Research))
	for topic, r := range st.Research {
		out.Research[topic] = r.Clone()
	}
	out.Connections = make(map[string]*ConnectionPair, len(st.Connections))
	for id, c := range st.Connections {
		cc := *c
		cc.Sources = append([]string(nil), c.Sources...)
		out.Connections[id] = &cc
	}
	out.Evaluations = make(map[string]*EvaluationResult, len(st.Evaluations))
	for id, e := range st.Evaluations {
		ec := *e
		ec.Sources = append([]string(nil), e.Sources...)
		out.Evaluations[id] = &ec
	}
	out.Errors = append([]WorkflowError(nil), st.Errors...)
	if st.Interrupt != nil {
		ic := *st.Interrupt
		if st.Interrupt.ResumedAt != nil {
			t := *st.Interrupt.ResumedAt
			ic.ResumedAt = &t
		}
		out.Interrupt = &ic
	}
	return &out
}

// IsInterrupted reports whether an unresolved interrupt is active.
func (st *WorkflowState) IsInterrupted() bool {
	return st.Interrupt != nil && st.Interrupt.ResumedAt == nil
}

// SectionIDs returns all section ids, sorted.
func (st *WorkflowState) SectionIDs() []string {
	ids := make([]string, 0, len(st.Sections))
	for id := range st.Sections {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Topics returns all research topics, sorted.
func (st *WorkflowState) Topics() []string {
	topics := make([]string, 0, len(st.Research))
	for topic := range st.Research {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// AllSectionsApproved reports whether every section is approved.
func (st *WorkflowState) AllSectionsApproved() bool {
	if len(st.Sections) == 0 {
		return false
	}
	for _, s := range st.Sections {
		if s.Status != StatusApproved {
			return false
		}
	}
	return true
}
