package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
)

// Sender is satisfied by *tea.Program.
type Sender interface {
	Send(msg tea.Msg)
}

// Relay forwards workflow callbacks to a program attached after the workflow
// was built. Events arriving before Attach or after Detach are dropped.
type Relay struct {
	mu     sync.RWMutex
	sender Sender
}

// Attach starts forwarding to s.
func (r *Relay) Attach(s Sender) {
	r.mu.Lock()
	r.sender = s
	r.mu.Unlock()
}

// Detach stops forwarding.
func (r *Relay) Detach() {
	r.Attach(nil)
}

// OnState matches engine.Options.OnState.
func (r *Relay) OnState(ev node.StateEvent) {
	r.send(NodeStateMsg{Event: ev})
}

// OnProgress matches engine.Options.OnProgress.
func (r *Relay) OnProgress(nodeID string, ev progress.Event) {
	r.send(NodeProgressMsg{NodeID: nodeID, Event: ev})
}

func (r *Relay) send(msg tea.Msg) {
	r.mu.RLock()
	s := r.sender
	r.mu.RUnlock()
	if s != nil {
		s.Send(msg)
	}
}
