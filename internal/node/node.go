package node

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	goerrors "github.com/go-errors/errors"

	"github.com/alexisbeaulieu97/nodeflow/internal/listeners"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Option configures a Node.
type Option func(*Node)

// WithLogger sets the node logger.
func WithLogger(log *logger.Logger) Option {
	return func(n *Node) { n.log = log }
}

// WithGlobalRepository sets the workflow-wide table repository.
func WithGlobalRepository(repo *table.Repository) Option {
	return func(n *Node) { n.global = repo }
}

// WithMemoryPolicy sets the policy used for containers the node creates.
func WithMemoryPolicy(p table.MemoryPolicy) Option {
	return func(n *Node) { n.policy = p }
}

// WithMaxCellsInMemory sets the CacheSmallInMemory ceiling.
func WithMaxCellsInMemory(cells int) Option {
	return func(n *Node) { n.maxCells = cells }
}

// WithSpillStore sets the store receiving spilled rows.
func WithSpillStore(store table.SpillStore) Option {
	return func(n *Node) { n.store = store }
}

// WithBufferCache sets the cache for spilled table reads.
func WithBufferCache(cache *table.BufferCache) Option {
	return func(n *Node) { n.cache = cache }
}

// Node wraps a Model with ports, lifecycle state and table ownership. All
// structural changes are serialized by a per-node lock that is also held
// while the model executes.
type Node struct {
	id       string
	typeName string
	model    Model
	in       []*port.InPort
	out      []*port.OutPort

	log      *logger.Logger
	global   *table.Repository
	local    *table.Repository
	policy   table.MemoryPolicy
	maxCells int
	store    table.SpillStore
	cache    *table.BufferCache

	mu       sync.Mutex
	produced []*table.BufferedDataTable

	infoMu    sync.RWMutex
	state     State
	message   string
	warning   string
	configErr error

	stateListeners listeners.Set[func(StateEvent)]
}

// New creates a node of the described type.
func New(id string, desc Descriptor, opts ...Option) (*Node, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	model := desc.Factory()
	if model == nil {
		return nil, fmt.Errorf("node type '%s' factory returned nil", desc.Name)
	}

	n := &Node{
		id:       id,
		typeName: desc.Name,
		model:    model,
		local:    table.NewRepository(),
		maxCells: table.DefaultMaxCellsInMemory,
	}
	for _, opt := range opts {
		opt(n)
	}
	n.log = n.log.WithFields(map[string]any{"node_id": id, "node_type": desc.Name})

	for i, t := range desc.InPorts {
		n.in = append(n.in, port.NewInPort(i, t, n))
	}
	for i, t := range desc.OutPorts {
		n.out = append(n.out, port.NewOutPort(i, t, n))
	}
	return n, nil
}

// ID returns the node ID.
func (n *Node) ID() string { return n.id }

// Type returns the node type name.
func (n *Node) Type() string { return n.typeName }

// Model returns the wrapped model.
func (n *Node) Model() Model { return n.model }

// NumInPorts returns the number of in-ports.
func (n *Node) NumInPorts() int { return len(n.in) }

// NumOutPorts returns the number of out-ports.
func (n *Node) NumOutPorts() int { return len(n.out) }

// InPort returns in-port i.
func (n *Node) InPort(i int) (*port.InPort, error) {
	if i < 0 || i >= len(n.in) {
		return nil, nferrors.IllegalStatef("node %s has no in-port %d", n.id, i)
	}
	return n.in[i], nil
}

// OutPort returns out-port i.
func (n *Node) OutPort(i int) (*port.OutPort, error) {
	if i < 0 || i >= len(n.out) {
		return nil, nferrors.IllegalStatef("node %s has no out-port %d", n.id, i)
	}
	return n.out[i], nil
}

// LocalRepository returns the repository of tables this node produced.
func (n *Node) LocalRepository() *table.Repository { return n.local }

// State returns the current state.
func (n *Node) State() State {
	n.infoMu.RLock()
	defer n.infoMu.RUnlock()
	return n.state
}

// Message returns the message of the last failure, if any.
func (n *Node) Message() string {
	n.infoMu.RLock()
	defer n.infoMu.RUnlock()
	return n.message
}

// Warning returns the warning left by the last execution.
func (n *Node) Warning() string {
	n.infoMu.RLock()
	defer n.infoMu.RUnlock()
	return n.warning
}

// ConfigureError returns the error of the last configuration, which may have
// been triggered by an upstream spec change. It is nil once configured.
func (n *Node) ConfigureError() error {
	n.infoMu.RLock()
	defer n.infoMu.RUnlock()
	return n.configErr
}

func (n *Node) setConfigureError(err error) {
	n.infoMu.Lock()
	n.configErr = err
	n.infoMu.Unlock()
}

// AddStateListener subscribes fn to state transitions.
func (n *Node) AddStateListener(fn func(StateEvent)) listeners.Subscription {
	return n.stateListeners.Add(fn)
}

func (n *Node) setState(s State, message string) {
	n.infoMu.Lock()
	n.state = s
	n.message = message
	if s != Executed {
		n.warning = ""
	}
	n.infoMu.Unlock()
}

func (n *Node) emit(e StateEvent) {
	e.NodeID = n.id
	for _, fn := range n.stateListeners.Snapshot() {
		fn(e)
	}
}

func (n *Node) emitState() {
	n.infoMu.RLock()
	e := StateEvent{State: n.state, Message: n.message}
	n.infoMu.RUnlock()
	n.emit(e)
}

// SetSettings validates and then loads s into the model.
func (n *Node) SetSettings(s *settings.Tree) error {
	sm, ok := n.model.(SettingsModel)
	if !ok {
		if s != nil && s.Len() > 0 {
			return nferrors.NewInvalidSettingsError(n.id, "node type "+n.typeName+" has no settings", nil)
		}
		return nil
	}
	if s == nil {
		s = settings.New()
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	return n.applySettingsLocked(sm, s)
}

func (n *Node) applySettingsLocked(sm SettingsModel, s *settings.Tree) error {
	if err := sm.ValidateSettings(s); err != nil {
		return n.settingsError(err)
	}
	if err := sm.LoadSettings(s); err != nil {
		return n.settingsError(err)
	}
	return nil
}

// Settings returns the model's current settings.
func (n *Node) Settings() *settings.Tree {
	s := settings.New()
	if sm, ok := n.model.(SettingsModel); ok {
		n.mu.Lock()
		sm.SaveSettings(s)
		n.mu.Unlock()
	}
	return s
}

func (n *Node) settingsError(err error) error {
	var ise *nferrors.InvalidSettingsError
	if errors.As(err, &ise) {
		copied := *ise
		copied.NodeID = n.id
		return &copied
	}
	return nferrors.NewInvalidSettingsError(n.id, "", err)
}

// Configure derives the output specs from the current input specs. An
// executed node is reset first. On failure the out-port specs are cleared and
// the node is idle.
func (n *Node) Configure(ctx context.Context) error {
	n.mu.Lock()
	wasExecuted := n.resetIfExecutedLocked()

	specs := make([]port.Spec, len(n.in))
	for i, in := range n.in {
		spec, ok := in.Spec()
		if !ok {
			n.setState(Idle, "")
			n.mu.Unlock()
			n.publishConfigureFailure(wasExecuted)
			err := nferrors.NewNotConfigurableError(n.id, fmt.Sprintf("%s has no spec", in.Name()))
			n.setConfigureError(err)
			n.log.WithFields(map[string]any{"reason": err.Error()}).Debug("node not configurable")
			return err
		}
		specs[i] = spec
	}

	outSpecs, err := n.callConfigure(ctx, specs)
	if err == nil {
		err = n.checkOutSpecs(outSpecs)
	}
	if err != nil {
		err = n.configureError(err)
		n.setConfigureError(err)
		n.setState(Idle, err.Error())
		n.mu.Unlock()
		n.publishConfigureFailure(wasExecuted)
		return err
	}

	n.setConfigureError(nil)
	n.setState(Configured, "")
	n.mu.Unlock()

	if wasExecuted {
		n.clearOutObjects()
	}
	for i, out := range n.out {
		_ = out.SetSpec(outSpecs[i])
	}
	n.emitState()
	return nil
}

func (n *Node) publishConfigureFailure(wasExecuted bool) {
	if wasExecuted {
		n.clearOutObjects()
	}
	n.clearOutSpecs()
	n.emitState()
}

func (n *Node) configureError(err error) error {
	var nce *nferrors.NotConfigurableError
	if errors.As(err, &nce) {
		n.log.WithFields(map[string]any{"reason": err.Error()}).Debug("node not configurable")
		return err
	}
	var ise *nferrors.InvalidSettingsError
	if errors.As(err, &ise) {
		n.log.WithFields(map[string]any{"reason": err.Error()}).Debug("configure rejected settings")
		return n.settingsError(err)
	}
	n.log.Error(err, "configure failed")
	return nferrors.NewInvalidSettingsError(n.id, "", err)
}

func (n *Node) callConfigure(ctx context.Context, specs []port.Spec) (out []port.Spec, err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 2)
			n.log.Stack(wrapped, wrapped.ErrorStack(), "configure panicked")
			err = wrapped
		}
	}()
	return n.model.Configure(ctx, specs)
}

func (n *Node) checkOutSpecs(specs []port.Spec) error {
	if len(specs) != len(n.out) {
		return fmt.Errorf("configure returned %d specs for %d out-ports", len(specs), len(n.out))
	}
	for i, s := range specs {
		if s == nil {
			continue
		}
		if want := n.out[i].Type().SpecType(); !reflect.TypeOf(s).AssignableTo(want) {
			return fmt.Errorf("out-port %d expects spec %s, configure returned %T", i, want, s)
		}
	}
	return nil
}

// resetIfExecutedLocked resets model and tables of an executed or failed node
// and reports whether it did. Port updates are left to the caller.
func (n *Node) resetIfExecutedLocked() bool {
	switch n.State() {
	case Executed, Error:
		n.resetLocked()
		return true
	default:
		return false
	}
}

func (n *Node) resetLocked() {
	func() {
		defer func() {
			if r := recover(); r != nil {
				wrapped := goerrors.Wrap(r, 2)
				n.log.Stack(wrapped, wrapped.ErrorStack(), "model reset panicked")
			}
		}()
		n.model.Reset()
	}()
	for _, t := range n.produced {
		t.Clear()
	}
	n.produced = nil
	n.setState(Idle, "")
}

// Reset returns the node to idle, clearing its out-ports and every table it
// produced. It never fails.
func (n *Node) Reset() {
	n.mu.Lock()
	n.resetLocked()
	n.mu.Unlock()

	n.clearOutObjects()
	n.clearOutSpecs()
	n.emitState()
}

func (n *Node) clearOutObjects() {
	for _, out := range n.out {
		_ = out.SetObject(nil)
	}
}

func (n *Node) clearOutSpecs() {
	for _, out := range n.out {
		_ = out.SetSpec(nil)
	}
}

// Execute runs the model on the objects of the connected in-ports. The node
// must be configured. mon receives progress and carries cancellation; it may
// be nil.
func (n *Node) Execute(ctx context.Context, mon progress.Monitor) error {
	if ctx == nil {
		ctx = context.Background()
	}
	n.mu.Lock()

	if st := n.State(); st != Configured {
		n.mu.Unlock()
		return nferrors.IllegalStatef("node %s cannot execute in state %s", n.id, st)
	}
	inputs := make([]port.Object, len(n.in))
	for i, in := range n.in {
		obj, err := in.Object()
		if err != nil {
			n.mu.Unlock()
			return err
		}
		if obj == nil {
			n.mu.Unlock()
			return nferrors.IllegalStatef("%s of node %s has no data", in.Name(), n.id)
		}
		inputs[i] = obj
	}

	var owned *progress.Root
	if mon == nil {
		owned = progress.NewMonitor(progress.WithContext(ctx), progress.WithLogger(n.log))
		mon = owned
		defer owned.Close()
	}

	n.setState(Executing, "")
	n.emitState()

	start := time.Now()
	run := newRun()
	exec := newExecutionContext(ctx, n, mon, run)
	outputs, err := n.callExecute(exec, inputs)
	if err == nil {
		err = n.checkOutputs(outputs)
	}
	if err == nil {
		err = run.finish(n)
	}

	if err != nil {
		run.discard()
		if isCancellation(err) || mon.IsCanceled() || ctx.Err() != nil {
			n.setState(Configured, "")
			n.mu.Unlock()
			n.log.Info("execution canceled")
			n.emitState()
			if !errors.Is(err, nferrors.ErrCanceled) {
				if cerr := mon.CheckCanceled(); cerr != nil {
					return cerr
				}
				return nferrors.NewCanceledError("")
			}
			return err
		}
		n.setState(Error, err.Error())
		n.mu.Unlock()
		n.log.Error(err, "execution failed")
		n.emitState()
		return nferrors.NewExecutionError(n.id, err)
	}

	n.produced = append(n.produced, run.tables()...)
	warning := run.warning()
	if ws, ok := n.model.(WarningSource); ok && warning == "" {
		warning = ws.Warning()
	}
	n.setState(Executed, "")
	n.infoMu.Lock()
	n.warning = warning
	n.infoMu.Unlock()
	n.mu.Unlock()

	n.log.Timed(start, "node executed")
	for i, out := range n.out {
		_ = out.SetObject(outputs[i])
		if t, ok := outputs[i].(*table.BufferedDataTable); ok {
			_ = out.SetSpec(t.DataSpec())
		}
	}
	n.emitState()
	if warning != "" {
		n.log.Warn(warning)
		n.emit(StateEvent{State: Executed, Warning: warning})
	}
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, nferrors.ErrCanceled) || errors.Is(err, context.Canceled)
}

func (n *Node) callExecute(exec *ExecutionContext, inputs []port.Object) (out []port.Object, err error) {
	defer func() {
		if r := recover(); r != nil {
			wrapped := goerrors.Wrap(r, 2)
			n.log.Stack(wrapped, wrapped.ErrorStack(), "execute panicked")
			err = wrapped
		}
	}()
	return n.model.Execute(exec, inputs)
}

func (n *Node) checkOutputs(outputs []port.Object) error {
	if len(outputs) != len(n.out) {
		return fmt.Errorf("execute returned %d objects for %d out-ports", len(outputs), len(n.out))
	}
	for i, o := range outputs {
		if o == nil {
			return fmt.Errorf("execute returned no object for out-port %d", i)
		}
		if want := n.out[i].Type().ObjectType(); !reflect.TypeOf(o).AssignableTo(want) {
			return fmt.Errorf("out-port %d expects %s, execute returned %T", i, want, o)
		}
	}
	return nil
}

// InSpecChanged implements port.Owner by reconfiguring.
func (n *Node) InSpecChanged(int) {
	_ = n.Configure(context.Background())
}

// InObjectChanged implements port.Owner. Results computed from the previous
// input are stale, so an executed node goes back to configured.
func (n *Node) InObjectChanged(int) {
	switch n.State() {
	case Executed, Error:
		_ = n.Configure(context.Background())
	}
}

func (n *Node) String() string {
	return fmt.Sprintf("%s(%s)", n.id, n.typeName)
}
