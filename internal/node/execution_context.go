package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// run tracks the containers and tables created during one execution. On
// failure all of them are discarded; on success the tables become owned by
// the node.
type run struct {
	mu         sync.Mutex
	containers []*table.Container
	created    []*table.BufferedDataTable
	warn       string
}

func newRun() *run { return &run{} }

func (r *run) addContainer(c *table.Container) {
	r.mu.Lock()
	r.containers = append(r.containers, c)
	r.mu.Unlock()
}

func (r *run) addTable(t *table.BufferedDataTable) {
	r.mu.Lock()
	r.created = append(r.created, t)
	r.mu.Unlock()
}

func (r *run) forget(t *table.BufferedDataTable) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, c := range r.created {
		if c == t {
			r.created = append(r.created[:i], r.created[i+1:]...)
			return true
		}
	}
	for _, c := range r.containers {
		if c.BufferID() == t.BufferID() {
			return true
		}
	}
	return false
}

func (r *run) setWarning(msg string) {
	r.mu.Lock()
	r.warn = msg
	r.mu.Unlock()
}

func (r *run) warning() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.warn
}

// finish materializes tables of closed containers and assigns ownership.
func (r *run) finish(owner *Node) error {
	r.mu.Lock()
	containers := append([]*table.Container(nil), r.containers...)
	r.mu.Unlock()

	for _, c := range containers {
		if !c.IsClosed() {
			c.Discard()
			continue
		}
		t, err := c.Table()
		if err != nil {
			return err
		}
		if !t.IsCleared() {
			r.addUnique(t)
		}
	}

	for _, t := range r.tables() {
		if err := t.SetOwner(owner); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) addUnique(t *table.BufferedDataTable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.created {
		if c == t {
			return
		}
	}
	r.created = append(r.created, t)
}

func (r *run) tables() []*table.BufferedDataTable {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*table.BufferedDataTable(nil), r.created...)
}

func (r *run) discard() {
	r.mu.Lock()
	containers := r.containers
	created := r.created
	r.containers, r.created = nil, nil
	r.mu.Unlock()

	for _, c := range containers {
		c.Discard()
	}
	for _, t := range created {
		t.Clear()
	}
}

// ExecutionContext is handed to Model.Execute. It reports progress, checks
// cancellation and creates tables owned by the executing node.
type ExecutionContext struct {
	progress.Monitor
	ctx  context.Context
	node *Node
	run  *run
}

func newExecutionContext(ctx context.Context, n *Node, mon progress.Monitor, r *run) *ExecutionContext {
	return &ExecutionContext{Monitor: mon, ctx: ctx, node: n, run: r}
}

// Context returns the context of the execution.
func (e *ExecutionContext) Context() context.Context { return e.ctx }

// Logger returns the node's logger.
func (e *ExecutionContext) Logger() *logger.Logger { return e.node.log }

// NodeID returns the ID of the executing node.
func (e *ExecutionContext) NodeID() string { return e.node.id }

// containerOptions returns the node's memory settings and repositories.
// Extra options override the defaults but never the repositories.
func (n *Node) containerOptions(extra []table.ContainerOption) []table.ContainerOption {
	opts := []table.ContainerOption{
		table.WithPolicy(n.policy),
		table.WithMaxCellsInMemory(n.maxCells),
		table.WithLogger(n.log),
	}
	if n.store != nil {
		opts = append(opts, table.WithSpillStore(n.store))
	}
	if n.cache != nil {
		opts = append(opts, table.WithCache(n.cache))
	}
	opts = append(opts, extra...)
	return append(opts, table.WithRepositories(n.global, n.local))
}

// CreateContainer opens a container using the node's memory settings. Opts
// override the node defaults; repositories are always the node's.
func (e *ExecutionContext) CreateContainer(spec table.Spec, opts ...table.ContainerOption) *table.Container {
	c := table.NewContainer(spec, e.node.containerOptions(opts)...)
	e.run.addContainer(c)
	return c
}

// CreateBufferedDataTable copies src into a new table owned by the node,
// reporting progress on mon (the context itself when nil).
func (e *ExecutionContext) CreateBufferedDataTable(src table.Table, mon progress.Monitor) (*table.BufferedDataTable, error) {
	if mon == nil {
		mon = e.Monitor
	}
	c := e.CreateContainer(src.DataSpec())

	it, err := src.Rows()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	total := src.Size()
	count := 0
	for it.Next() {
		if err := e.CheckCanceled(); err != nil {
			return nil, err
		}
		count++
		if total > 0 {
			mon.SetProgressMessage(float64(count)/float64(total), fmt.Sprintf("Caching row #%d (%q)", count, it.Row().Key))
		} else {
			mon.SetMessage(fmt.Sprintf("Caching row #%d (%q)", count, it.Row().Key))
		}
		if err := c.AddRow(it.Row()); err != nil {
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if _, err := c.Close(); err != nil {
		return nil, err
	}
	t, err := c.Table()
	if err != nil {
		return nil, err
	}
	e.run.addUnique(t)
	return t, nil
}

// CreateColumnView projects src onto indices without copying rows.
func (e *ExecutionContext) CreateColumnView(src *table.BufferedDataTable, indices []int) (*table.BufferedDataTable, error) {
	v, err := table.NewColumnView(src, indices, e.node.global, e.node.local)
	if err != nil {
		return nil, err
	}
	e.run.addTable(v)
	return v, nil
}

// CreateSpecReplacerTable serves the rows of src under spec without copying
// them. spec must keep the column count and types of src.
func (e *ExecutionContext) CreateSpecReplacerTable(src *table.BufferedDataTable, spec table.Spec) (*table.BufferedDataTable, error) {
	t, err := table.NewSpecReplacer(src, spec, e.node.global, e.node.local)
	if err != nil {
		return nil, err
	}
	e.run.addTable(t)
	return t, nil
}

// CreateSubExecutionContext returns a context whose progress covers fraction
// of this one. Tables created through it belong to the same execution.
func (e *ExecutionContext) CreateSubExecutionContext(fraction float64) *ExecutionContext {
	return newExecutionContext(e.ctx, e.node, e.Monitor.SubProgress(fraction), e.run)
}

// CreateSilentSubExecutionContext is like CreateSubExecutionContext but hides
// the child's messages.
func (e *ExecutionContext) CreateSilentSubExecutionContext(fraction float64) *ExecutionContext {
	return newExecutionContext(e.ctx, e.node, e.Monitor.SilentSubProgress(fraction), e.run)
}

// ClearTable frees an intermediate table created in this execution.
func (e *ExecutionContext) ClearTable(t *table.BufferedDataTable) error {
	if t == nil {
		return nil
	}
	if !e.run.forget(t) {
		return nferrors.IllegalStatef("table #%d was not created by node %s", t.BufferID(), e.node.id)
	}
	t.Clear()
	return nil
}

// SetWarning records a warning that is reported once execution succeeds.
func (e *ExecutionContext) SetWarning(msg string) {
	e.run.setWarning(msg)
}

// CheckCanceled reports cancellation from the monitor or the context.
func (e *ExecutionContext) CheckCanceled() error {
	if err := e.Monitor.CheckCanceled(); err != nil {
		return err
	}
	if err := e.ctx.Err(); err != nil {
		return nferrors.NewCanceledError("")
	}
	return nil
}
