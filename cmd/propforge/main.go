// Package main provides the propforge binary entry point. Propforge drives
// LLM-assisted grant proposal drafting: research, section generation,
// evaluation, and human review over a section dependency graph.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/rudihinds/propforge/llm/providers"
)

const (
	Version = "0.1.0"
	appName = "propforge"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Grant proposal drafting engine",
		Long: `Propforge turns a funding opportunity into a drafted proposal.

It researches the opportunity with bounded web research agents, drafts each
proposal section against its approved dependencies, scores drafts with a
review agent, and suspends for human decisions at review checkpoints. State
is persisted after every step, so a run can stop and resume at any point.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		runCmd(&configPath, &logLevel),
		resumeCmd(&configPath, &logLevel),
		statusCmd(&configPath, &logLevel),
		graphCmd(&configPath, &logLevel),
		validateCmd(&configPath, &logLevel),
		versionCmd(),
	)

	return cmd
}

func runCmd(configPath, logLevel *string) *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start a new workflow, or continue an existing one",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			wfStore, g, err := a.openWorkflow(ctx, workflowID)
			if err != nil {
				return err
			}

			eng, err := a.buildEngine(wfStore, g)
			if err != nil {
				return err
			}

			stopWatch := a.watchDefinition(ctx, cmd.OutOrStdout())
			defer stopWatch()

			action, err := eng.Run(ctx)
			if err != nil {
				return err
			}
			return a.reportStop(cmd.OutOrStdout(), wfStore, eng, action)
		},
	}

	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Workflow id to continue (empty starts a new one)")
	return cmd
}

func resumeCmd(configPath, logLevel *string) *cobra.Command {
	var (
		workflowID string
		answer     string
	)

	cmd := &cobra.Command{
		Use:   "resume",
		Short: "Answer the pending question and continue the workflow",
		RunE: func(cmd *cobra.Command, args []string) error {
			if answer == "" {
				return fmt.Errorf("--answer is required")
			}

			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			wfStore, g, err := a.openWorkflow(ctx, workflowID)
			if err != nil {
				return err
			}

			eng, err := a.buildEngine(wfStore, g)
			if err != nil {
				return err
			}

			action, err := eng.Resume(ctx, answer)
			if err != nil {
				return err
			}
			return a.reportStop(cmd.OutOrStdout(), wfStore, eng, action)
		},
	}

	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Workflow id (required)")
	cmd.Flags().StringVarP(&answer, "answer", "a", "", "Answer to the pending question")
	_ = cmd.MarkFlagRequired("workflow")
	return cmd
}

func statusCmd(configPath, logLevel *string) *cobra.Command {
	var workflowID string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show section, research, and interrupt status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			if workflowID == "" {
				ids, err := a.store.List(ctx)
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No workflows found.")
					return nil
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			}

			st, err := a.store.Load(ctx, workflowID)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStatus(st))
			return nil
		},
	}

	cmd.Flags().StringVarP(&workflowID, "workflow", "w", "", "Workflow id (empty lists workflows)")
	return cmd
}

func graphCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the section dependency graph",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			def, g, err := a.loadDefinition()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Topological order:")
			for i, id := range g.TopologicalOrder() {
				fmt.Fprintf(out, "  %d. %s\n", i+1, id)
			}
			fmt.Fprintln(out, "\nEdges:")
			for _, sec := range def.Sections {
				for _, dep := range sec.DependsOn {
					fmt.Fprintf(out, "  %s -> %s\n", dep, sec.ID)
				}
			}
			return nil
		},
	}
}

func validateCmd(configPath, logLevel *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration and proposal definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext()
			defer stop()

			a, err := newApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer a.Close()

			def, _, err := a.loadDefinition()
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Configuration ok. Definition ok: %d sections, %d topics.\n",
				len(def.Sections), len(def.Topics))
			return nil
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
