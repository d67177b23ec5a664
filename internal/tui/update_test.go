package tui

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
)

func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	updated, cmd := m.Update(msg)
	return updated.(Model), cmd
}

func TestUpdateTracksStateTransitions(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "src", State: node.Executing}})
	require.Equal(t, node.Executing, m.nodes["src"].State)
	require.Zero(t, m.CompletedNodes())

	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "src", State: node.Executed, Warning: "empty"}})
	require.Equal(t, 1, m.CompletedNodes())
	require.Equal(t, "empty", m.nodes["src"].Warning)

	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "src", State: node.Executed}})
	require.Equal(t, 1, m.CompletedNodes())

	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "src", State: node.Configured}})
	require.Zero(t, m.CompletedNodes())

	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "late", State: node.Error, Message: "boom"}})
	require.Equal(t, 4, m.TotalNodes())
	require.Equal(t, 1, m.CompletedNodes())
}

func TestUpdateTracksProgress(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "filter", State: node.Executing}})
	m, _ = step(t, m, NodeProgressMsg{NodeID: "filter", Event: progress.Event{Progress: 0.25, HasProgress: true, Message: "Row 1 of 4"}})
	require.Equal(t, 0.25, m.nodes["filter"].Progress)
	require.Equal(t, "Row 1 of 4", m.nodes["filter"].Activity)

	m, _ = step(t, m, NodeProgressMsg{NodeID: "filter", Event: progress.Event{Message: "flushing"}})
	require.Equal(t, 0.25, m.nodes["filter"].Progress)
	require.Equal(t, "flushing", m.nodes["filter"].Activity)

	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "filter", State: node.Configured}})
	m, _ = step(t, m, NodeStateMsg{Event: node.StateEvent{NodeID: "filter", State: node.Executing}})
	require.False(t, m.nodes["filter"].HasProgress)
	require.Empty(t, m.nodes["filter"].Activity)
}

func TestUpdateRunFinishedQuits(t *testing.T) {
	t.Parallel()

	report := &engine.Report{Results: []engine.NodeResult{
		{NodeID: "src", Outcome: engine.OutcomeExecuted, State: node.Executed, Rows: 3},
		{NodeID: "filter", Outcome: engine.OutcomeFailed, State: node.Error, Message: "boom"},
		{NodeID: "sink", Outcome: engine.OutcomeCanceled, State: node.Configured, Message: "not started"},
	}}
	m := NewModel(testStatus(), nil)
	m, cmd := step(t, m, RunFinishedMsg{Report: report, Err: errors.New("boom")})
	require.NotNil(t, cmd)
	require.True(t, m.IsFinished())
	require.Equal(t, 3, m.nodes["src"].Rows)
	require.Equal(t, engine.OutcomeCanceled, m.nodes["sink"].Outcome)
	require.Equal(t, "not started", m.nodes["sink"].Message)

	got, err := m.Report()
	require.Same(t, report, got)
	require.EqualError(t, err, "boom")
}

func TestUpdateKeysCancelOnce(t *testing.T) {
	t.Parallel()

	calls := 0
	m := NewModel(testStatus(), func() { calls++ })
	m, cmd := step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.Nil(t, cmd)
	require.True(t, m.cancelled)
	m, _ = step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.Equal(t, 1, calls)

	m, _ = step(t, m, RunFinishedMsg{})
	_, cmd = step(t, m, tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
}

func TestUpdateIgnoresAnonymousEvents(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	m, _ = step(t, m, NodeStateMsg{})
	m, _ = step(t, m, NodeProgressMsg{})
	require.Equal(t, 3, m.TotalNodes())

	m, _ = step(t, m, tea.WindowSizeMsg{Width: 400})
	require.Equal(t, 40, m.barWidth)
}
