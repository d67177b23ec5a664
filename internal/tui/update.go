package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		m.barWidth = min(40, max(10, msg.Width/4))
		return m, nil
	case NodeStateMsg:
		ev := msg.Event
		if ev.NodeID == "" {
			return m, nil
		}
		e := m.ensureNode(ev.NodeID)
		if ev.State == node.Executing && e.State != node.Executing {
			e.Progress, e.HasProgress, e.Activity = 0, false, ""
		}
		e.State, e.Message, e.Warning = ev.State, ev.Message, ev.Warning
		m.nodes[ev.NodeID] = e
		switch ev.State {
		case node.Executed, node.Error:
			m.markDone(ev.NodeID)
		case node.Idle, node.Configured:
			if m.done[ev.NodeID] {
				delete(m.done, ev.NodeID)
				m.completed--
			}
		}
		return m, nil
	case NodeProgressMsg:
		if msg.NodeID == "" {
			return m, nil
		}
		e := m.ensureNode(msg.NodeID)
		if msg.Event.HasProgress {
			e.Progress, e.HasProgress = msg.Event.Progress, true
		}
		e.Activity = msg.Event.Message
		m.nodes[msg.NodeID] = e
		return m, nil
	case RunFinishedMsg:
		m.finished = true
		m.report, m.err = msg.Report, msg.Err
		if msg.Report != nil {
			for _, res := range msg.Report.Results {
				e := m.ensureNode(res.NodeID)
				e.Outcome, e.State, e.Rows, e.Duration = res.Outcome, res.State, res.Rows, res.Duration
				if res.Message != "" {
					e.Message = res.Message
				}
				if res.Warning != "" {
					e.Warning = res.Warning
				}
				m.nodes[res.NodeID] = e
			}
		}
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.finished {
				return m, tea.Quit
			}
			if !m.cancelled && m.cancel != nil {
				m.cancel()
			}
			m.cancelled = true
			return m, nil
		}
	}

	return m, nil
}
