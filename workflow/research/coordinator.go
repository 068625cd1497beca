package research

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/tools"
	"github.com/rudihinds/propforge/workflow"
)

// DefaultMaxIterations bounds the agent loop per topic, on top of the
// resource ceilings, so a model that neither calls tools nor finishes cannot
// spin forever.
const DefaultMaxIterations = 10

// maxToolFailures is how many failed tool executions a topic tolerates
// before it is force-completed with the error attached.
const maxToolFailures = 3

// Invoker is the narrow agent surface the coordinator needs.
type Invoker interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// ToolRunner executes tool calls. The default runner dispatches through the
// global tool registry.
type ToolRunner interface {
	Execute(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error)
}

// registryRunner dispatches through the global registry.
type registryRunner struct{}

func (registryRunner) Execute(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	return tools.Execute(ctx, call)
}

// Coordinator runs the research phase: one bounded agent loop per topic,
// topics in parallel, all findings merged through the store's reducers. A
// failed topic never takes down the phase; it is completed with its error
// attached and the workflow moves on.
type Coordinator struct {
	store         *workflow.Store
	invoker       Invoker
	runner        ToolRunner
	limits        workflow.ResearchLimits
	sufficiency   SufficiencyConfig
	maxIterations int
	logger        *slog.Logger
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLimits overrides the research resource ceilings.
func WithLimits(limits workflow.ResearchLimits) CoordinatorOption {
	return func(c *Coordinator) {
		c.limits = limits
	}
}

// WithSufficiency overrides the sufficiency heuristic thresholds.
func WithSufficiency(cfg SufficiencyConfig) CoordinatorOption {
	return func(c *Coordinator) {
		c.sufficiency = cfg
	}
}

// WithMaxIterations overrides the per-topic iteration bound.
func WithMaxIterations(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxIterations = n
		}
	}
}

// WithToolRunner overrides tool dispatch, mainly for tests.
func WithToolRunner(r ToolRunner) CoordinatorOption {
	return func(c *Coordinator) {
		c.runner = r
	}
}

// WithCoordinatorLogger sets the logger.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

// NewCoordinator creates a research coordinator over the store.
func NewCoordinator(store *workflow.Store, invoker Invoker, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		store:         store,
		invoker:       invoker,
		runner:        registryRunner{},
		limits:        workflow.DefaultResearchLimits(),
		sufficiency:   DefaultSufficiencyConfig(),
		maxIterations: DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run researches the given topics concurrently and returns when every topic
// is complete or the context is cancelled. Per-topic failures are contained
// in state; the only returned error is the context's. Once the last topic
// completes, one cross-topic analysis pass links the findings.
func (c *Coordinator) Run(ctx context.Context, topics []string) error {
	var wg sync.WaitGroup
	for _, topic := range topics {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			c.runTopic(ctx, topic)
		}(topic)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return err
	}
	c.analyzeConnections(ctx)
	return ctx.Err()
}

// runTopic drives one topic's agent loop to completion.
func (c *Coordinator) runTopic(ctx context.Context, topic string) {
	failures := 0

	for iteration := 0; iteration < c.maxIterations; iteration++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec := c.store.Snapshot().Research[topic]
		if rec == nil {
			rec = &workflow.TopicResearch{Topic: topic}
		}
		if rec.Complete {
			return
		}
		if c.limits.AtCeiling(rec) {
			c.complete(ctx, topic, "")
			c.logger.Info("Topic hit resource ceiling", "topic", topic)
			return
		}
		if c.sufficiency.Sufficient(rec) {
			c.complete(ctx, topic, "")
			c.logger.Info("Topic findings sufficient", "topic", topic)
			return
		}

		resp, err := c.invoker.Complete(ctx, llm.Request{
			Capability: "research",
			Messages: []llm.Message{
				{Role: "system", Content: topicSystemPrompt},
				{Role: "user", Content: BuildTopicPrompt(rec, c.limits)},
			},
			Tools: c.toolDefinitions(),
		})
		if err != nil {
			// The research phase degrades instead of halting: the topic is
			// completed with the error attached and sections draft from
			// whatever was gathered.
			c.logger.Warn("Research agent unavailable, completing topic with error",
				"topic", topic, "error", err)
			c.failTopic(ctx, topic, err.Error())
			return
		}

		if len(resp.ToolCalls) == 0 {
			deltas := []workflow.Delta{workflow.ResearchDelta{Topic: topic, Complete: true}}
			if summary := trimSummary(resp.Content); summary != "" {
				deltas[0] = workflow.ResearchDelta{
					Topic:    topic,
					Complete: true,
					Insights: []workflow.Insight{{Text: summary}},
				}
			}
			if _, err := c.store.Apply(ctx, deltas...); err != nil {
				c.logger.Error("Failed to persist topic completion", "topic", topic, "error", err)
			}
			return
		}

		failed := c.executeIteration(ctx, topic, resp.ToolCalls)
		failures += failed
		if failures >= maxToolFailures {
			c.failTopic(ctx, topic, "too many tool failures")
			return
		}
	}

	c.failTopic(ctx, topic, "iteration bound reached")
}

// executeIteration runs one iteration's tool calls concurrently, merges every
// successful result as a delta, and returns the failure count.
func (c *Coordinator) executeIteration(ctx context.Context, topic string, calls []llm.ToolCall) int {
	type outcome struct {
		delta workflow.ResearchDelta
		err   error
	}

	outcomes := make([]outcome, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call llm.ToolCall) {
			defer wg.Done()

			result, err := c.runCall(ctx, call)
			if err != nil {
				outcomes[i] = outcome{err: err}
				return
			}
			if result.Error != "" {
				// Model-visible tool errors are not failures; the agent
				// adjusts on the next iteration.
				outcomes[i] = outcome{delta: workflow.ResearchDelta{Topic: topic}}
				return
			}
			delta, err := deltaFromToolResult(topic, call, result)
			outcomes[i] = outcome{delta: delta, err: err}
		}(i, call)
	}
	wg.Wait()

	failed := 0
	var deltas []workflow.Delta
	for i, out := range outcomes {
		if out.err != nil {
			failed++
			c.logger.Warn("Research tool call failed",
				"topic", topic, "tool", calls[i].Name, "error", out.err)
			deltas = append(deltas, workflow.ErrorDelta{
				Component: "research",
				Message:   calls[i].Name + ": " + out.err.Error(),
			})
			continue
		}
		if isEmptyDelta(out.delta) {
			continue
		}
		deltas = append(deltas, out.delta)
	}

	if len(deltas) > 0 {
		if _, err := c.store.Apply(ctx, deltas...); err != nil {
			c.logger.Error("Failed to persist research deltas", "topic", topic, "error", err)
		}
	}
	return failed
}

// runCall dispatches one tool call. record_entities is coordinator-local:
// its arguments are the result.
func (c *Coordinator) runCall(ctx context.Context, call llm.ToolCall) (tools.ToolResult, error) {
	if call.Name == ToolRecordEntities {
		return tools.ToolResult{CallID: call.ID, Content: string(call.Arguments)}, nil
	}
	return c.runner.Execute(ctx, call)
}

// toolDefinitions returns the executor-backed research tools plus the
// coordinator-local record_entities tool.
func (c *Coordinator) toolDefinitions() []llm.ToolDefinition {
	defs := tools.ListToolDefinitions()
	return append(defs, recordEntitiesDefinition)
}

func (c *Coordinator) complete(ctx context.Context, topic, errMsg string) {
	if _, err := c.store.Apply(ctx, workflow.ResearchDelta{
		Topic:    topic,
		Complete: true,
		Error:    errMsg,
	}); err != nil {
		c.logger.Error("Failed to persist topic completion", "topic", topic, "error", err)
	}
}

func (c *Coordinator) failTopic(ctx context.Context, topic, reason string) {
	if _, err := c.store.Apply(ctx,
		workflow.ResearchDelta{Topic: topic, Complete: true, Error: reason},
		workflow.ErrorDelta{Component: "research", Message: "topic " + topic + ": " + reason},
	); err != nil {
		c.logger.Error("Failed to persist topic failure", "topic", topic, "error", err)
	}
}

func isEmptyDelta(d workflow.ResearchDelta) bool {
	return len(d.SearchQueries) == 0 && len(d.ExtractedURLs) == 0 &&
		len(d.Entities) == 0 && len(d.Insights) == 0 && !d.Complete && d.Error == ""
}

func trimSummary(s string) string {
	const maxSummary = 2000
	s = strings.TrimSpace(s)
	if len(s) > maxSummary {
		s = s[:maxSummary]
	}
	return s
}
