package components

import (
	"time"

	"github.com/alexisbeaulieu97/nodeflow/internal/engine"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
)

// NodeEntry is the rendered view of one node.
type NodeEntry struct {
	ID          string
	Type        string
	Level       int
	State       node.State
	Message     string
	Warning     string
	Progress    float64
	HasProgress bool
	Activity    string
	Outcome     engine.Outcome
	Rows        int
	Duration    time.Duration
}

// EntryFromStatus seeds an entry from a workflow status snapshot.
func EntryFromStatus(s engine.NodeStatus) NodeEntry {
	e := NodeEntry{
		ID:       s.ID,
		Type:     s.Type,
		Level:    s.Level,
		State:    s.State,
		Message:  s.Message,
		Warning:  s.Warning,
		Activity: s.Activity,
	}
	if s.Progress != nil {
		e.Progress, e.HasProgress = *s.Progress, true
	}
	return e
}

// NodeList holds entries in level order.
type NodeList struct {
	entries []NodeEntry
}

// NewNodeList constructs a list from the given order. Unknown ids render as
// bare entries.
func NewNodeList(order []string, nodes map[string]NodeEntry) NodeList {
	entries := make([]NodeEntry, 0, len(order))
	for _, id := range order {
		e, ok := nodes[id]
		if !ok {
			e = NodeEntry{ID: id}
		}
		entries = append(entries, e)
	}
	return NodeList{entries: entries}
}

// Entries returns the ordered entries.
func (l NodeList) Entries() []NodeEntry {
	clone := make([]NodeEntry, len(l.entries))
	copy(clone, l.entries)
	return clone
}
