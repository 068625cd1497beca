package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rudihinds/propforge/workflow"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#A0AEC0"))
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))

	statusStyles = map[workflow.SectionStatus]lipgloss.Style{
		workflow.StatusNotStarted:         lipgloss.NewStyle().Foreground(lipgloss.Color("#999999")),
		workflow.StatusQueued:             lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")),
		workflow.StatusRunning:            lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		workflow.StatusReadyForEvaluation: lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")),
		workflow.StatusAwaitingReview:     lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		workflow.StatusApproved:           lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		workflow.StatusStale:              lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")),
	}
)

// renderStatus renders the workflow as a styled terminal report.
func renderStatus(st *workflow.WorkflowState) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  step %d\n\n", titleStyle.Render(st.ID), st.Step)

	b.WriteString(headerStyle.Render("Sections") + "\n")
	for _, id := range st.SectionIDs() {
		sec := st.Sections[id]
		style, ok := statusStyles[sec.Status]
		if !ok {
			style = detailStyle
		}
		fmt.Fprintf(&b, "  %-28s %s", sec.Title, style.Render(string(sec.Status)))
		if sec.Revisions > 0 {
			fmt.Fprintf(&b, " %s", detailStyle.Render(fmt.Sprintf("(revisions: %d)", sec.Revisions)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n" + headerStyle.Render("Research") + "\n")
	for _, topic := range st.Topics() {
		rec := st.Research[topic]
		state := "in progress"
		if rec.Complete {
			state = "complete"
		}
		if rec.Error != "" {
			state = errorStyle.Render("failed: " + rec.Error)
		}
		fmt.Fprintf(&b, "  %-28s %s %s\n", topic, state,
			detailStyle.Render(fmt.Sprintf("(%d queries, %d pages, %d entities, %d findings)",
				len(rec.SearchQueries), len(rec.ExtractedURLs), len(rec.Entities), len(rec.Insights))))
	}

	if st.IsInterrupted() {
		b.WriteString("\n" + warningStyle.Render("Waiting for you") + "\n")
		fmt.Fprintf(&b, "  %s\n", st.Interrupt.Question)
	}

	if len(st.Errors) > 0 {
		b.WriteString("\n" + headerStyle.Render("Errors") + "\n")
		for _, e := range st.Errors {
			fmt.Fprintf(&b, "  %s\n", errorStyle.Render(fmt.Sprintf("[%s] %s", e.Component, e.Message)))
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
