package engine

import (
	"fmt"
	"path/filepath"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/persist"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
)

// NodeStatus is a point-in-time view of one node.
type NodeStatus struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Level    int        `json:"level"`
	State    node.State `json:"state"`
	Message  string     `json:"message,omitempty"`
	Warning  string     `json:"warning,omitempty"`
	Progress *float64   `json:"progress,omitempty"`
	Activity string     `json:"activity,omitempty"`
	Outputs  []string   `json:"outputs,omitempty"`
}

// Status describes the whole workflow.
type Status struct {
	Workflow   string       `json:"workflow"`
	Running    bool         `json:"running"`
	LiveTables int          `json:"live_tables"`
	Nodes      []NodeStatus `json:"nodes"`
}

// Status returns a snapshot of every node in level order. Safe to call while
// the workflow runs.
func (w *Workflow) Status() Status {
	w.mu.RLock()
	running := w.running
	events := make(map[string]progress.Event, len(w.progress))
	for id, e := range w.progress {
		events[id] = e
	}
	w.mu.RUnlock()

	st := Status{Workflow: w.name, Running: running, LiveTables: w.repo.Len()}
	for level, ids := range w.graph.Levels {
		for _, id := range ids {
			n, ok := w.nodes[id]
			if !ok {
				continue
			}
			ns := NodeStatus{
				ID:      id,
				Type:    n.Type(),
				Level:   level,
				State:   n.State(),
				Message: n.Message(),
				Warning: n.Warning(),
			}
			if e, ok := events[id]; ok {
				if e.HasProgress {
					value := e.Progress
					ns.Progress = &value
				}
				ns.Activity = e.Message
			}
			for i := 0; i < n.NumOutPorts(); i++ {
				out, err := n.OutPort(i)
				if err != nil {
					continue
				}
				if spec := out.Spec(); spec != nil {
					ns.Outputs = append(ns.Outputs, spec.Summary())
				}
			}
			st.Nodes = append(st.Nodes, ns)
		}
	}
	return st
}

// SaveOutputs persists the settings of every node and the spec and content
// of every executed out-port below dir, one directory per node and port.
func (w *Workflow) SaveOutputs(dir string, p persist.Persistor, mon progress.Monitor) error {
	nodes := w.Nodes()
	for i, n := range nodes {
		if mon != nil {
			if err := mon.CheckCanceled(); err != nil {
				return err
			}
		}
		nodeDir := filepath.Join(dir, n.ID())
		if err := p.SaveSettings(nodeDir, n.Settings()); err != nil {
			return fmt.Errorf("failed to save settings of %s: %w", n.ID(), err)
		}
		if n.State() != node.Executed {
			continue
		}

		var sub progress.Monitor
		if mon != nil {
			sub = mon.SubProgress(1 / float64(len(nodes)))
		}
		for j := 0; j < n.NumOutPorts(); j++ {
			out, err := n.OutPort(j)
			if err != nil {
				return err
			}
			portDir := persist.PortDir(nodeDir, j)
			if spec := out.Spec(); spec != nil {
				if err := p.SaveSpec(portDir, spec); err != nil {
					return fmt.Errorf("failed to save spec of %s:%d: %w", n.ID(), j, err)
				}
			}
			if obj := out.Object(); obj != nil {
				var portMon progress.Monitor
				if sub != nil {
					portMon = sub.SubProgress(1 / float64(n.NumOutPorts()))
				}
				if err := p.SaveObject(portDir, obj, portMon); err != nil {
					return fmt.Errorf("failed to save data of %s:%d: %w", n.ID(), j, err)
				}
			}
		}
		w.log.WithFields(map[string]any{"node_id": n.ID(), "index": i, "dir": nodeDir}).Debug("node outputs saved")
	}
	return nil
}

// LoadOutputs installs outputs saved by SaveOutputs below dir in place of
// executing the nodes that produced them. Nodes load in level order. A node
// without out-ports, or whose ports were not all saved, is left to run. The
// IDs of loaded nodes are returned.
func (w *Workflow) LoadOutputs(dir string, p persist.Persistor, mon progress.Monitor) ([]string, error) {
	nodes := w.Nodes()
	var loaded []string
	for _, n := range nodes {
		if mon != nil {
			if err := mon.CheckCanceled(); err != nil {
				return loaded, err
			}
		}
		nodeDir := filepath.Join(dir, n.ID())
		if !savedOutputs(p, nodeDir, n.NumOutPorts()) {
			continue
		}

		var sub progress.Monitor
		if mon != nil {
			sub = mon.SubProgress(1 / float64(len(nodes)))
		}
		if err := n.Load(p, nodeDir, sub); err != nil {
			return loaded, fmt.Errorf("failed to load outputs of %s: %w", n.ID(), err)
		}
		loaded = append(loaded, n.ID())
	}
	w.log.WithFields(map[string]any{"dir": dir, "nodes": len(loaded)}).Info("node outputs loaded")
	return loaded, nil
}

func savedOutputs(p persist.Persistor, nodeDir string, ports int) bool {
	if ports == 0 {
		return false
	}
	for i := 0; i < ports; i++ {
		if !p.HasObject(persist.PortDir(nodeDir, i)) {
			return false
		}
	}
	return true
}
