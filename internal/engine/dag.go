package engine

import (
	"fmt"
	"sort"

	"github.com/alexisbeaulieu97/nodeflow/internal/config"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Vertex represents a node in the execution DAG.
type Vertex struct {
	ID         string
	Node       *config.Node
	DependsOn  []*Vertex
	Dependents []*Vertex
}

// Graph encapsulates the DAG structure and topological levels.
type Graph struct {
	Vertices map[string]*Vertex
	Levels   [][]string
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{Vertices: make(map[string]*Vertex)}
}

// AddVertex inserts a workflow node as a vertex in the graph.
func (g *Graph) AddVertex(n *config.Node) (*Vertex, error) {
	if n == nil {
		return nil, nferrors.NewValidationError("nodes", "node cannot be nil", nil)
	}

	if g.Vertices == nil {
		g.Vertices = make(map[string]*Vertex)
	}

	if _, exists := g.Vertices[n.ID]; exists {
		return nil, nferrors.NewValidationError("nodes", fmt.Sprintf("duplicate node id %q", n.ID), nil)
	}

	v := &Vertex{ID: n.ID, Node: n}
	g.Vertices[n.ID] = v
	return v, nil
}

// AddEdge records that to consumes output of from. Repeated edges between
// the same pair are stored once.
func (g *Graph) AddEdge(from, to string) error {
	source, ok := g.Vertices[from]
	if !ok {
		return nferrors.NewValidationError("connections", fmt.Sprintf("unknown node %q", from), nil)
	}

	target, ok := g.Vertices[to]
	if !ok {
		return nferrors.NewValidationError("connections", fmt.Sprintf("unknown node %q", to), nil)
	}

	for _, d := range source.Dependents {
		if d == target {
			return nil
		}
	}
	source.Dependents = append(source.Dependents, target)
	target.DependsOn = append(target.DependsOn, source)
	return nil
}

// TopologicalSort computes the DAG levels using Kahn's algorithm.
func (g *Graph) TopologicalSort() error {
	indegree := make(map[string]int, len(g.Vertices))
	for id := range g.Vertices {
		indegree[id] = 0
	}

	for _, v := range g.Vertices {
		for _, dep := range v.Dependents {
			indegree[dep.ID]++
		}
	}

	var queue []string
	for id, degree := range indegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	processed := 0
	var levels [][]string

	for len(queue) > 0 {
		currentLevel := queue
		sort.Strings(currentLevel)
		levels = append(levels, append([]string(nil), currentLevel...))

		var nextLevel []string
		for _, id := range currentLevel {
			processed++
			for _, dependent := range g.Vertices[id].Dependents {
				indegree[dependent.ID]--
				if indegree[dependent.ID] == 0 {
					nextLevel = append(nextLevel, dependent.ID)
				}
			}
		}

		sort.Strings(nextLevel)
		queue = nextLevel
	}

	if processed != len(g.Vertices) {
		return nferrors.NewValidationError("connections", "cycle detected while sorting graph", nil)
	}

	g.Levels = levels
	return nil
}

// Order returns every vertex ID in level order.
func (g *Graph) Order() []string {
	var out []string
	for _, level := range g.Levels {
		out = append(out, level...)
	}
	return out
}
