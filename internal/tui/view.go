package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	var sections []string

	sections = append(sections, titleStyle.Render(fmt.Sprintf("nodeflow • %s", m.title())))

	bar := components.NewProgress(m.total).View(m.completed)
	sections = append(sections, sectionStyle.Render("Progress"), bar)

	entries := components.NewNodeList(m.order, m.nodes).Entries()
	if len(entries) > 0 {
		sections = append(sections, sectionStyle.Render("Nodes"), m.renderEntries(entries))
	}

	outcomes := make(map[engine.Outcome]int)
	rows := 0
	var elapsed time.Duration
	if m.report != nil {
		for _, res := range m.report.Results {
			outcomes[res.Outcome]++
			rows += res.Rows
		}
		elapsed = m.report.Duration
	}
	summary := components.NewSummary(components.SummaryData{
		Total:     m.total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Outcomes:  outcomes,
		Rows:      rows,
		Duration:  elapsed,
		Err:       m.err,
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}
	if !m.finished {
		sections = append(sections, pendingStyle.Render("press q to cancel"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) renderEntries(entries []components.NodeEntry) string {
	var lines []string
	for _, e := range entries {
		icon := StatusIcon(e)
		if e.State == node.Executing && !m.finished {
			icon = m.spinner.View()
		}
		line := fmt.Sprintf(" %s %s %s", icon, e.ID, typeStyle.Render(e.Type))
		switch {
		case e.State == node.Executing && e.HasProgress:
			line = fmt.Sprintf("%s %s", line, components.NodeBar(e.Progress, m.barWidth))
			if e.Activity != "" {
				line = fmt.Sprintf("%s %s", line, e.Activity)
			}
		case strings.TrimSpace(e.Message) != "":
			line = fmt.Sprintf("%s: %s", line, e.Message)
		}
		if e.Outcome == engine.OutcomeExecuted {
			line = fmt.Sprintf("%s (%s rows, %s)", line, humanize.Comma(int64(e.Rows)), e.Duration.Truncate(10*time.Millisecond))
		}
		lines = append(lines, line)
		if e.Warning != "" {
			lines = append(lines, "     "+warningStyle.Render("! "+e.Warning))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) title() string {
	if strings.TrimSpace(m.titleText) != "" {
		return m.titleText
	}
	return "workflow"
}

// StatusIcon returns the glyph representing a node entry. Run outcomes take
// precedence over the node state.
func StatusIcon(e components.NodeEntry) string {
	switch e.Outcome {
	case engine.OutcomeFailed:
		return failureStyle.Render("✗")
	case engine.OutcomeSkipped:
		return skippedStyle.Render("⊘")
	case engine.OutcomeCanceled:
		return skippedStyle.Render("■")
	}
	switch e.State {
	case node.Executed:
		return successStyle.Render("✓")
	case node.Executing:
		return runningStyle.Render("⏳")
	case node.Error:
		return failureStyle.Render("✗")
	case node.Configured:
		return pendingStyle.Render("○")
	default:
		return pendingStyle.Render("…")
	}
}
