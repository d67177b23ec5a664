package tui

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
)

func testStatus() engine.Status {
	return engine.Status{
		Workflow: "people",
		Nodes: []engine.NodeStatus{
			{ID: "src", Type: "table_source", Level: 0, State: node.Configured},
			{ID: "filter", Type: "row_filter", Level: 1, State: node.Configured},
			{ID: "sink", Type: "csv_writer", Level: 2, State: node.Idle, Message: "input spec unavailable"},
		},
	}
}

func TestNewModelInitialisesState(t *testing.T) {
	t.Parallel()

	m := NewModel(testStatus(), nil)
	require.Equal(t, 3, m.TotalNodes())
	require.Zero(t, m.CompletedNodes())
	require.False(t, m.IsFinished())
	require.Equal(t, []string{"src", "filter", "sink"}, m.order)
	require.Equal(t, "input spec unavailable", m.nodes["sink"].Message)
}

func TestNewModelCountsExecutedNodes(t *testing.T) {
	t.Parallel()

	st := testStatus()
	st.Nodes[0].State = node.Executed
	st.Nodes = append(st.Nodes, st.Nodes[0])

	m := NewModel(st, nil)
	require.Equal(t, 3, m.TotalNodes())
	require.Equal(t, 1, m.CompletedNodes())
}

func TestModelInitStartsSpinner(t *testing.T) {
	t.Parallel()

	require.NotNil(t, NewModel(testStatus(), nil).Init())
}
