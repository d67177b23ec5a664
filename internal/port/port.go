package port

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/alexisbeaulieu97/nodeflow/internal/listeners"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Owner receives callbacks when data behind one of its in-ports changes.
// Callbacks run synchronously on the goroutine that changed the out-port.
type Owner interface {
	InSpecChanged(portID int)
	InObjectChanged(portID int)
}

// InPort is a node input. It is connected to at most one OutPort and
// delegates every read to it.
type InPort struct {
	id    int
	typ   *Type
	owner Owner

	mu     sync.Mutex
	name   string
	source *OutPort
}

// NewInPort creates an unconnected in-port. owner may be nil.
func NewInPort(id int, typ *Type, owner Owner) *InPort {
	return &InPort{
		id:    id,
		typ:   typ,
		owner: owner,
		name:  fmt.Sprintf("Inport %d", id),
	}
}

// ID returns the port index on its node.
func (p *InPort) ID() int { return p.id }

// Type returns the declared port type.
func (p *InPort) Type() *Type { return p.typ }

// Name returns the display name.
func (p *InPort) Name() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name
}

// SetName replaces the display name.
func (p *InPort) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Connect attaches the port to out, replacing any previous connection. A type
// mismatch returns *errors.IllegalConnectionError and leaves the port
// unconnected. No notification is sent.
func (p *InPort) Connect(out *OutPort) error {
	if out == nil {
		return nferrors.NewIllegalConnectionError("<nil>", p.Name(), "no source port")
	}
	if !p.typ.Accepts(out.typ) {
		p.Disconnect()
		return nferrors.NewIllegalConnectionError(out.Name(), p.Name(),
			fmt.Sprintf("%s is not compatible with %s", out.typ, p.typ))
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if old := p.source; old != nil && old != out {
		old.removeTarget(p)
	}
	p.source = out
	out.addTarget(p)
	return nil
}

// Disconnect removes the connection. It is safe to call when unconnected.
func (p *InPort) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.source != nil {
		p.source.removeTarget(p)
		p.source = nil
	}
}

// IsConnected reports whether the port has a source.
func (p *InPort) IsConnected() bool {
	return p.Source() != nil
}

// Source returns the connected out-port or nil.
func (p *InPort) Source() *OutPort {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source
}

// Spec returns the upstream spec. The second result is false when the port is
// unconnected or upstream has no spec.
func (p *InPort) Spec() (Spec, bool) {
	src := p.Source()
	if src == nil {
		return nil, false
	}
	spec := src.Spec()
	return spec, spec != nil
}

// Object returns the upstream object, or nil when upstream has none or hides
// it. Reading an unconnected port is an illegal state.
func (p *InPort) Object() (Object, error) {
	src := p.Source()
	if src == nil {
		return nil, nferrors.IllegalStatef("%s is not connected", p.Name())
	}
	return src.Object(), nil
}

// connectedTo reports whether out is still the source. Out-port locks are
// always taken after in-port locks.
func (p *InPort) connectedTo(out *OutPort) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.source == out
}

func (p *InPort) notifySpec(from *OutPort) {
	if p.owner != nil && p.connectedTo(from) {
		p.owner.InSpecChanged(p.id)
	}
}

func (p *InPort) notifyObject(from *OutPort) {
	if p.owner != nil && p.connectedTo(from) {
		p.owner.InObjectChanged(p.id)
	}
}

// OutPort is a node output holding the current spec and object.
type OutPort struct {
	id    int
	typ   *Type
	owner any

	mu      sync.RWMutex
	name    string
	spec    Spec
	object  Object
	hidden  bool
	targets []*InPort

	observers listeners.Set[func(Object)]
}

// NewOutPort creates an out-port. owner identifies the producing node when
// releasing managed objects.
func NewOutPort(id int, typ *Type, owner any) *OutPort {
	return &OutPort{
		id:    id,
		typ:   typ,
		owner: owner,
		name:  fmt.Sprintf("Outport %d", id),
	}
}

// ID returns the port index on its node.
func (p *OutPort) ID() int { return p.id }

// Type returns the declared port type.
func (p *OutPort) Type() *Type { return p.typ }

// Name returns the display name.
func (p *OutPort) Name() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.name
}

// SetName replaces the display name.
func (p *OutPort) SetName(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.name = name
}

// Spec returns the current spec or nil.
func (p *OutPort) Spec() Spec {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.spec
}

// SetSpec stores spec and pushes it depth-first to every connected in-port,
// whose owners reconfigure before SetSpec returns. nil clears the spec.
func (p *OutPort) SetSpec(spec Spec) error {
	if spec != nil && !reflect.TypeOf(spec).AssignableTo(p.typ.spec) {
		return nferrors.IllegalStatef("%s expects spec %s, got %T", p.Name(), p.typ.spec, spec)
	}

	p.mu.Lock()
	p.spec = spec
	targets := p.targetsLocked()
	p.mu.Unlock()

	for _, in := range targets {
		in.notifySpec(p)
	}
	return nil
}

// Object returns the current object, or nil when absent or hidden.
func (p *OutPort) Object() Object {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.hidden {
		return nil
	}
	return p.object
}

// SetObject installs obj. Setting the identical object again does nothing.
// Otherwise a managed previous object is released for the owner, and every
// connected in-port owner and observer is notified once.
func (p *OutPort) SetObject(obj Object) error {
	if obj != nil && !reflect.TypeOf(obj).AssignableTo(p.typ.object) {
		return nferrors.IllegalStatef("%s expects object %s, got %T", p.Name(), p.typ.object, obj)
	}

	p.mu.Lock()
	old := p.object
	if sameObject(old, obj) {
		p.mu.Unlock()
		return nil
	}
	p.object = obj
	targets := p.targetsLocked()
	p.mu.Unlock()

	if r, ok := old.(Releaser); ok {
		r.Release(p.owner)
	}
	for _, in := range targets {
		in.notifyObject(p)
	}
	for _, fn := range p.observers.Snapshot() {
		fn(obj)
	}
	return nil
}

// ShowObject controls whether readers can see the object. It never notifies.
func (p *OutPort) ShowObject(visible bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hidden = !visible
}

// IsObjectVisible reports the visibility gate. Ports start visible.
func (p *OutPort) IsObjectVisible() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.hidden
}

// Observe registers fn to be called with every newly installed object.
func (p *OutPort) Observe(fn func(Object)) listeners.Subscription {
	return p.observers.Add(fn)
}

// Targets returns the connected in-ports in connection order.
func (p *OutPort) Targets() []*InPort {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.targetsLocked()
}

func (p *OutPort) targetsLocked() []*InPort {
	return append([]*InPort(nil), p.targets...)
}

func (p *OutPort) addTarget(in *InPort) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range p.targets {
		if t == in {
			return
		}
	}
	p.targets = append(p.targets, in)
}

func (p *OutPort) removeTarget(in *InPort) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, t := range p.targets {
		if t == in {
			p.targets = append(p.targets[:i:i], p.targets[i+1:]...)
			return
		}
	}
}

func sameObject(a, b Object) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) || !ta.Comparable() {
		return false
	}
	return a == b
}
