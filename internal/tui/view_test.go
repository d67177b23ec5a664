package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/tui/components"
)

func TestViewRendersNodes(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "src", State: node.Executing}})
	m, _ = step(t, m, NodeProgressMsg{NodeID: "src", Event: progress.Event{Progress: 0.5, HasProgress: true, Message: "Row 2 of 4"}})

	view := m.View()
	require.Contains(t, view, "people")
	require.Contains(t, view, "table_source")
	require.Contains(t, view, "Row 2 of 4")
	require.Contains(t, view, " 50%")
	require.Contains(t, view, "input spec unavailable")
	require.Contains(t, view, "0/3")
	require.Contains(t, view, "press q to cancel")
}

func TestViewShowsSummaryWhenFinished(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	for _, id := range []string{"src", "filter", "sink"} {
		m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: id, State: node.Executed}})
	}
	m, _ = step(t, m, RunFinishedMsg{Report: &engine.Report{Results: []engine.NodeResult{
		{NodeID: "src", Outcome: engine.OutcomeExecuted, State: node.Executed, Rows: 1200},
		{NodeID: "filter", Outcome: engine.OutcomeExecuted, State: node.Executed, Rows: 800},
		{NodeID: "sink", Outcome: engine.OutcomeExecuted, State: node.Executed, Warning: "slow disk"},
	}}})

	view := m.View()
	require.Contains(t, view, "3/3")
	require.Contains(t, view, "1,200 rows")
	require.Contains(t, view, "Rows produced: 2,000")
	require.Contains(t, view, "Run finished successfully")
	require.Contains(t, view, "slow disk")
	require.NotContains(t, view, "press q")
}

func TestStatusIcon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		entry    components.NodeEntry
		expected string
	}{
		{"executed shows checkmark", components.NodeEntry{State: node.Executed}, "✓"},
		{"executing shows hourglass", components.NodeEntry{State: node.Executing}, "⏳"},
		{"error shows cross", components.NodeEntry{State: node.Error}, "✗"},
		{"configured shows circle", components.NodeEntry{State: node.Configured}, "○"},
		{"idle shows ellipsis", components.NodeEntry{}, "…"},
		{"failed outcome wins", components.NodeEntry{State: node.Configured, Outcome: engine.OutcomeFailed}, "✗"},
		{"skipped shows circle-slash", components.NodeEntry{State: node.Configured, Outcome: engine.OutcomeSkipped}, "⊘"},
		{"canceled shows square", components.NodeEntry{State: node.Configured, Outcome: engine.OutcomeCanceled}, "■"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Contains(t, StatusIcon(tt.entry), tt.expected)
		})
	}
}
