package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/tui/components"
)

// NodeStateMsg carries a node state transition.
type NodeStateMsg struct {
	Event node.StateEvent
}

// NodeProgressMsg carries a batched progress event of an executing node.
type NodeProgressMsg struct {
	NodeID string
	Event  progress.Event
}

// RunFinishedMsg is sent once the workflow run returned.
type RunFinishedMsg struct {
	Report *engine.Report
	Err    error
}

// Model contains the Bubbletea state of the run view.
type Model struct {
	titleText string
	nodes     map[string]components.NodeEntry
	order     []string
	done      map[string]bool
	total     int
	completed int
	report    *engine.Report
	err       error
	finished  bool
	cancelled bool
	cancel    func()
	spinner   spinner.Model
	barWidth  int
}

// NewModel builds the view from a workflow status snapshot. cancel is invoked
// when the user interrupts the run; it may be nil.
func NewModel(status engine.Status, cancel func()) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = runningStyle

	m := Model{
		titleText: status.Workflow,
		nodes:     make(map[string]components.NodeEntry, len(status.Nodes)),
		done:      make(map[string]bool),
		cancel:    cancel,
		spinner:   s,
		barWidth:  20,
	}
	for _, ns := range status.Nodes {
		if _, exists := m.nodes[ns.ID]; exists {
			continue
		}
		m.nodes[ns.ID] = components.EntryFromStatus(ns)
		m.order = append(m.order, ns.ID)
		m.total++
		if ns.State == node.Executed || ns.State == node.Error {
			m.markDone(ns.ID)
		}
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// TotalNodes returns the number of nodes tracked by the model.
func (m Model) TotalNodes() int {
	return m.total
}

// CompletedNodes returns the number of nodes that reached executed or error.
func (m Model) CompletedNodes() int {
	return m.completed
}

// IsFinished reports whether the run has returned.
func (m Model) IsFinished() bool {
	return m.finished
}

// Report returns the run report once finished.
func (m Model) Report() (*engine.Report, error) {
	return m.report, m.err
}

func (m *Model) ensureNode(id string) components.NodeEntry {
	e, exists := m.nodes[id]
	if !exists {
		e = components.NodeEntry{ID: id}
		m.order = append(m.order, id)
		m.total++
	}
	return e
}

func (m *Model) markDone(id string) {
	if !m.done[id] {
		m.done[id] = true
		m.completed++
	}
}
