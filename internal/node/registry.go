package node

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Registry maps node type names to descriptors.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Descriptor)}
}

// Register adds a node type.
func (r *Registry) Register(desc Descriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[desc.Name]; exists {
		return fmt.Errorf("node type '%s' already registered", desc.Name)
	}
	r.types[desc.Name] = desc
	return nil
}

// MustRegister is Register for package initialization.
func (r *Registry) MustRegister(desc Descriptor) {
	if err := r.Register(desc); err != nil {
		panic(err)
	}
}

// Get returns the descriptor of typeName.
func (r *Registry) Get(typeName string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.types[typeName]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown node type '%s'", typeName)
	}
	return desc, nil
}

// Has reports whether typeName is registered.
func (r *Registry) Has(typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.types[typeName]
	return ok
}

// List returns all descriptors sorted by name.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Descriptor, 0, len(r.types))
	for _, d := range r.types {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Create instantiates a node of typeName.
func (r *Registry) Create(typeName, id string, opts ...Option) (*Node, error) {
	desc, err := r.Get(typeName)
	if err != nil {
		return nil, err
	}
	return New(id, desc, opts...)
}

// Connect links out-port outIdx of from to in-port inIdx of to under the
// target's lock and reconfigures the target against the source's current spec. A rejected
// connection leaves the in-port unconnected.
func Connect(from *Node, outIdx int, to *Node, inIdx int) error {
	out, err := from.OutPort(outIdx)
	if err != nil {
		return err
	}
	in, err := to.InPort(inIdx)
	if err != nil {
		return err
	}
	to.mu.Lock()
	err = in.Connect(out)
	to.mu.Unlock()
	if err != nil {
		var ice *nferrors.IllegalConnectionError
		if errors.As(err, &ice) {
			ice.From = fmt.Sprintf("%s:%d", from.id, outIdx)
			ice.To = fmt.Sprintf("%s:%d", to.id, inIdx)
		}
		_ = to.Configure(context.Background())
		return err
	}
	_ = to.Configure(context.Background())
	return nil
}

// Disconnect removes the connection into in-port inIdx of to and
// reconfigures the node, which leaves it unconfigurable.
func Disconnect(to *Node, inIdx int) error {
	in, err := to.InPort(inIdx)
	if err != nil {
		return err
	}
	to.mu.Lock()
	connected := in.IsConnected()
	in.Disconnect()
	to.mu.Unlock()
	if !connected {
		return nil
	}
	_ = to.Configure(context.Background())
	return nil
}

var _ port.Owner = (*Node)(nil)
