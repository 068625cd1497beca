package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/rudihinds/propforge/config"
	"github.com/rudihinds/propforge/draft"
	"github.com/rudihinds/propforge/engine"
	"github.com/rudihinds/propforge/graph"
	"github.com/rudihinds/propforge/llm"
	"github.com/rudihinds/propforge/model"
	"github.com/rudihinds/propforge/source"
	"github.com/rudihinds/propforge/storage"
	"github.com/rudihinds/propforge/tools"
	toolsresearch "github.com/rudihinds/propforge/tools/research"
	"github.com/rudihinds/propforge/workflow"
	wfresearch "github.com/rudihinds/propforge/workflow/research"
)

// app holds the wired infrastructure shared by the commands.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	invoker *llm.Client
	store   storage.Store
	nc      *nats.Conn
}

func newApp(ctx context.Context, configPath, logLevel string) (*app, error) {
	logger := newLogger(logLevel)
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath, logger)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		invoker: llm.NewClient(model.NewRegistryFromConfig(cfg.Model), llm.WithLogger(logger)),
	}

	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL, nats.Name(appName))
		if err != nil {
			return nil, fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
		}
		a.nc = nc

		ttl, err := cfg.NATS.GetTTL()
		if err != nil {
			return nil, err
		}
		store, err := storage.NewNATSStore(ctx, nc, storage.NATSStoreConfig{
			Bucket: cfg.NATS.Bucket,
			TTL:    ttl,
		})
		if err != nil {
			return nil, err
		}
		a.store = store
	} else {
		logger.Warn("No NATS URL configured; state is in-memory and will not survive this process")
		a.store = storage.NewMemoryStore()
	}

	if err := a.registerTools(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *app) Close() {
	if a.nc != nil {
		a.nc.Close()
	}
}

func newLogger(level string) *slog.Logger {
	lv := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lv}))
}

func loadConfig(path string, logger *slog.Logger) (*config.Config, error) {
	if path == "" {
		return config.NewLoader(logger).Load()
	}

	cfg := config.DefaultConfig()
	fileCfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.Merge(fileCfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// registerTools wires the research tool executors into the global registry.
func (a *app) registerTools() error {
	if a.cfg.Search.BaseURL != "" {
		search := toolsresearch.NewSearchExecutor(a.cfg.Search.ToolConfig())
		if err := tools.RegisterExecutor(tools.NewRecordingExecutor(search,
			tools.WithRecordingLogger(a.logger))); err != nil {
			return err
		}
	} else {
		a.logger.Warn("No search endpoint configured; the web_search tool is unavailable")
	}

	extract := toolsresearch.NewExtractExecutor(30*time.Second, appName+"/"+Version)
	if err := tools.RegisterExecutor(tools.NewRecordingExecutor(extract,
		tools.WithRecordingLogger(a.logger))); err != nil {
		return err
	}

	deepDive := toolsresearch.NewDeepDiveExecutor(a.invoker)
	return tools.RegisterExecutor(tools.NewRecordingExecutor(deepDive,
		tools.WithRecordingLogger(a.logger)))
}

func (a *app) loadDefinition() (*source.Definition, *graph.Graph, error) {
	def, err := source.Load(a.cfg.Definition)
	if err != nil {
		return nil, nil, err
	}
	g, err := def.Graph()
	if err != nil {
		return nil, nil, err
	}
	return def, g, nil
}

// watchDefinition starts a watcher over the definition file's directory and
// prints a notice when the definition changes mid-run. Returns a stop
// function; it is a no-op stop when watching is disabled.
func (a *app) watchDefinition(ctx context.Context, out io.Writer) func() {
	if !a.cfg.Watch.Enabled {
		return func() {}
	}

	w, err := source.NewWatcher(a.cfg.Watch, filepath.Dir(a.cfg.Definition), a.logger)
	if err != nil {
		a.logger.Warn("definition watcher unavailable", "error", err)
		return func() {}
	}
	if err := w.Start(ctx); err != nil {
		a.logger.Warn("definition watcher failed to start", "error", err)
		return func() {}
	}

	go func() {
		for ev := range w.Events() {
			fmt.Fprintf(out, "Note: %s changed; the dependency graph is fixed for this run, restart to pick it up\n", ev.Path)
		}
	}()

	return func() {
		if err := w.Stop(); err != nil {
			a.logger.Warn("definition watcher stop", "error", err)
		}
	}
}

// openWorkflow loads an existing workflow or creates a new one from the
// proposal definition.
func (a *app) openWorkflow(ctx context.Context, workflowID string) (*workflow.Store, *graph.Graph, error) {
	def, g, err := a.loadDefinition()
	if err != nil {
		return nil, nil, err
	}

	if workflowID != "" {
		wfStore, err := workflow.LoadStore(ctx, workflowID, a.store, workflow.WithStoreLogger(a.logger))
		if err != nil {
			return nil, nil, err
		}
		if err := workflow.ValidateAgainstGraph(wfStore.Snapshot(), g); err != nil {
			return nil, nil, fmt.Errorf("definition changed since workflow started: %w", err)
		}
		return wfStore, g, nil
	}

	st := workflow.NewWorkflowState(def.WorkflowSections(), def.Topics)
	wfStore, err := workflow.NewStore(st, a.store, workflow.WithStoreLogger(a.logger))
	if err != nil {
		return nil, nil, err
	}
	a.logger.Info("Started workflow", "workflow", st.ID, "sections", len(def.Sections), "topics", len(def.Topics))
	return wfStore, g, nil
}

func (a *app) buildEngine(wfStore *workflow.Store, g *graph.Graph) (*engine.Engine, error) {
	limits := a.cfg.Research.Limits()

	coordinator := wfresearch.NewCoordinator(wfStore, a.invoker,
		wfresearch.WithLimits(limits),
		wfresearch.WithSufficiency(a.cfg.Research.Sufficiency()),
		wfresearch.WithMaxIterations(a.cfg.Research.MaxIterations),
		wfresearch.WithCoordinatorLogger(a.logger))

	generator := draft.NewGenerator(wfStore, a.invoker, draft.WithGeneratorLogger(a.logger))
	evaluator := draft.NewEvaluator(wfStore, a.invoker,
		draft.WithApproveThreshold(a.cfg.Workflow.ApproveThreshold),
		draft.WithEvaluatorLogger(a.logger))

	controller := workflow.NewController(wfStore, g,
		workflow.WithMaxRevisions(a.cfg.Workflow.MaxRevisions),
		workflow.WithControllerLogger(a.logger))

	return engine.New(wfStore, g, engine.Components{
		Research:  coordinator,
		Generator: generator,
		Evaluator: evaluator,
	},
		engine.WithController(controller),
		engine.WithClassifier(engine.NewAgentClassifier(a.invoker)),
		engine.WithMaxRefinements(a.cfg.Workflow.MaxRefinements),
		engine.WithLogger(a.logger),
	)
}

// reportStop explains the engine's stop condition to the operator.
func (a *app) reportStop(out io.Writer, wfStore *workflow.Store, eng *engine.Engine, action workflow.NextAction) error {
	st := wfStore.Snapshot()

	switch action.Kind {
	case workflow.ActionFinalize:
		fmt.Fprintf(out, "Workflow %s complete.\n\n%s\n", st.ID, eng.Document())

	case workflow.ActionWaitForHuman:
		fmt.Fprintf(out, "Workflow %s is waiting for you.\n\n%s\n\nAnswer with:\n  %s resume -w %s -a \"...\"\n",
			st.ID, st.Interrupt.Question, appName, st.ID)

	case workflow.ActionIdle:
		fmt.Fprintf(out, "Workflow %s is idle.\n", st.ID)
		if len(st.Errors) > 0 {
			fmt.Fprintln(out, "Recorded errors:")
			for _, e := range st.Errors {
				fmt.Fprintf(out, "  [%s] %s\n", e.Component, e.Message)
			}
		}

	default:
		fmt.Fprintf(out, "Workflow %s stopped at %s.\n", st.ID, action.Kind)
	}
	return nil
}
