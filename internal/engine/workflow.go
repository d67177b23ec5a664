// Package engine turns a workflow document into connected nodes and runs them
// level by level.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/nodeflow/internal/config"
	"github.com/alexisbeaulieu97/nodeflow/internal/listeners"
	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/metrics"
	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Options configures Build.
type Options struct {
	Registry *node.Registry
	Logger   *logger.Logger
	Metrics  *metrics.Recorder
	// OnProgress receives batched progress events of executing nodes.
	OnProgress func(nodeID string, e progress.Event)
	// OnState receives every node state transition.
	OnState func(node.StateEvent)
}

// Workflow is a built, wired graph of nodes sharing one table repository,
// spill store and progress notifier.
type Workflow struct {
	name     string
	settings config.Settings
	graph    *Graph
	nodes    map[string]*node.Node

	repo     *table.Repository
	store    table.SpillStore
	cache    *table.BufferCache
	notifier *progress.Notifier

	log        *logger.Logger
	metrics    *metrics.Recorder
	onProgress func(string, progress.Event)
	onState    func(node.StateEvent)
	subs       []listeners.Subscription

	mu       sync.RWMutex
	progress map[string]progress.Event
	running  bool

	closeOnce sync.Once
}

// Build creates every node of wf, applies its settings and wires the
// connections. wf must have passed config validation against opts.Registry.
func Build(wf *config.Workflow, opts Options) (*Workflow, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("engine: a node registry is required")
	}

	graph, err := BuildDAG(wf)
	if err != nil {
		return nil, err
	}

	log := opts.Logger.With("workflow", wf.Name)
	store, err := newSpillStore(wf.Settings.Spill, log)
	if err != nil {
		return nil, err
	}
	cache, err := table.NewBufferCache(wf.Settings.Spill.CacheTables, wf.Settings.CellsInMemory())
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to create buffer cache: %w", err)
	}

	w := &Workflow{
		name:       wf.Name,
		settings:   wf.Settings,
		graph:      graph,
		nodes:      make(map[string]*node.Node, len(wf.Nodes)),
		repo:       table.NewRepository(),
		store:      store,
		cache:      cache,
		notifier:   progress.NewNotifier(wf.Settings.NotifyPeriod(), log),
		log:        log,
		metrics:    opts.Metrics,
		onProgress: opts.OnProgress,
		onState:    opts.OnState,
		progress:   make(map[string]progress.Event),
	}
	w.metrics.TrackTables(w.repo.Len)

	if err := w.createNodes(wf, opts.Registry); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.connect(wf.Connections); err != nil {
		w.Close()
		return nil, err
	}
	return w, nil
}

func newSpillStore(cfg config.Spill, log *logger.Logger) (table.SpillStore, error) {
	switch cfg.Backend {
	case "badger":
		store, err := table.NewBadgerStore(cfg.Dir, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		store, err := table.NewFileStore(cfg.Dir, log)
		if err != nil {
			return nil, err
		}
		return store, nil
	}
}

func (w *Workflow) createNodes(wf *config.Workflow, reg *node.Registry) error {
	defaultPolicy := wf.Settings.Policy()
	for _, cfg := range wf.Nodes {
		n, err := reg.Create(cfg.Type, cfg.ID,
			node.WithLogger(w.log),
			node.WithGlobalRepository(w.repo),
			node.WithMemoryPolicy(cfg.Policy(defaultPolicy)),
			node.WithMaxCellsInMemory(wf.Settings.CellsInMemory()),
			node.WithSpillStore(w.store),
			node.WithBufferCache(w.cache),
		)
		if err != nil {
			return err
		}

		tree, err := cfg.SettingsTree()
		if err != nil {
			return nferrors.NewInvalidSettingsError(cfg.ID, "", err)
		}
		if err := n.SetSettings(tree); err != nil {
			return err
		}

		w.subs = append(w.subs, n.AddStateListener(w.stateChanged))
		w.nodes[cfg.ID] = n
	}
	return nil
}

func (w *Workflow) connect(connections []config.Connection) error {
	for _, c := range connections {
		fromID, fromPort, toID, toPort := c.Endpoints()
		from, to := w.nodes[fromID], w.nodes[toID]
		if from == nil || to == nil {
			return nferrors.NewValidationError("connections", fmt.Sprintf("connection %s -> %s references an unknown node", c.From, c.To), nil)
		}
		if err := node.Connect(from, fromPort, to, toPort); err != nil {
			return err
		}
	}
	return nil
}

func (w *Workflow) stateChanged(e node.StateEvent) {
	if w.onState != nil {
		w.onState(e)
	}
}

func (w *Workflow) progressChanged(nodeID string, e progress.Event) {
	w.mu.Lock()
	w.progress[nodeID] = e
	w.mu.Unlock()
	if w.onProgress != nil {
		w.onProgress(nodeID, e)
	}
}

// Name returns the workflow name.
func (w *Workflow) Name() string { return w.name }

// Graph returns the dependency graph.
func (w *Workflow) Graph() *Graph { return w.graph }

// Node returns the node with the given ID.
func (w *Workflow) Node(id string) (*node.Node, bool) {
	n, ok := w.nodes[id]
	return n, ok
}

// Nodes returns all nodes in level order.
func (w *Workflow) Nodes() []*node.Node {
	order := w.graph.Order()
	out := make([]*node.Node, 0, len(order))
	for _, id := range order {
		if n, ok := w.nodes[id]; ok {
			out = append(out, n)
		}
	}
	return out
}

// Repository returns the workflow-wide table repository.
func (w *Workflow) Repository() *table.Repository { return w.repo }

// Configure configures the nodes of the first level. Each of them pushes its
// specs downstream, which reconfigures the rest of the graph. Nodes that
// cannot be configured stay idle; the returned error joins every failure in
// level order.
func (w *Workflow) Configure(ctx context.Context) error {
	if len(w.graph.Levels) > 0 {
		for _, id := range w.graph.Levels[0] {
			if err := ctx.Err(); err != nil {
				return nferrors.NewCanceledError("")
			}
			if n, ok := w.nodes[id]; ok {
				_ = n.Configure(ctx)
			}
		}
	}

	var errs []error
	for _, n := range w.Nodes() {
		if err := n.ConfigureError(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Reset resets every node, releasing all produced tables.
func (w *Workflow) Reset() {
	nodes := w.Nodes()
	for i := len(nodes) - 1; i >= 0; i-- {
		nodes[i].Reset()
	}
	w.mu.Lock()
	w.progress = make(map[string]progress.Event)
	w.mu.Unlock()
}

// Close resets all nodes and releases the spill store. The workflow must not
// be used afterwards.
func (w *Workflow) Close() {
	w.closeOnce.Do(func() {
		w.notifier.Stop()
		w.Reset()
		for _, sub := range w.subs {
			sub.Unsubscribe()
		}
		if err := w.store.Close(); err != nil {
			w.log.Error(err, "failed to close spill store")
		}
	})
}
