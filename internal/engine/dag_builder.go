package engine

import (
	"github.com/alexisbeaulieu97/nodeflow/internal/config"
)

// BuildDAG constructs the execution graph of a workflow document.
func BuildDAG(wf *config.Workflow) (*Graph, error) {
	graph := NewGraph()

	for i := range wf.Nodes {
		if _, err := graph.AddVertex(&wf.Nodes[i]); err != nil {
			return nil, err
		}
	}

	for _, c := range wf.Connections {
		from, _, to, _ := c.Endpoints()
		if err := graph.AddEdge(from, to); err != nil {
			return nil, err
		}
	}

	if err := graph.TopologicalSort(); err != nil {
		return nil, err
	}

	return graph, nil
}
