package table

import (
	"fmt"
	"sync"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
)

type containerConfig struct {
	policy            MemoryPolicy
	maxCells          int
	maxPossibleValues int
	store             SpillStore
	cache             *BufferCache
	global            *Repository
	local             *Repository
	log               *logger.Logger
}

// ContainerOption configures a Container.
type ContainerOption func(*containerConfig)

// WithPolicy selects the memory policy.
func WithPolicy(p MemoryPolicy) ContainerOption {
	return func(c *containerConfig) { c.policy = p }
}

// WithMaxCellsInMemory sets the ceiling used by CacheSmallInMemory.
func WithMaxCellsInMemory(n int) ContainerOption {
	return func(c *containerConfig) { c.maxCells = n }
}

// WithMaxPossibleValues bounds the distinct values tracked per string column.
func WithMaxPossibleValues(n int) ContainerOption {
	return func(c *containerConfig) { c.maxPossibleValues = n }
}

// WithSpillStore sets the store receiving spilled rows.
func WithSpillStore(s SpillStore) ContainerOption {
	return func(c *containerConfig) { c.store = s }
}

// WithCache sets the cache used when reading spilled rows back.
func WithCache(cache *BufferCache) ContainerOption {
	return func(c *containerConfig) { c.cache = cache }
}

// WithRepositories sets the repositories the result table is registered in.
func WithRepositories(global, local *Repository) ContainerOption {
	return func(c *containerConfig) {
		c.global = global
		c.local = local
	}
}

// WithLogger sets the container logger.
func WithLogger(log *logger.Logger) ContainerOption {
	return func(c *containerConfig) { c.log = log }
}

// Container accumulates rows and yields an immutable table once closed.
// It supports a single producer.
type Container struct {
	cfg    containerConfig
	spec   Spec
	id     int64
	budget int

	mu        sync.Mutex
	keys      map[string]struct{}
	rows      []Row
	writer    SpillWriter
	size      int
	domain    *domainTracker
	closed    *ContainerTable
	table     *BufferedDataTable
	discarded bool
}

// NewContainer opens a container for rows of spec.
func NewContainer(spec Spec, opts ...ContainerOption) *Container {
	cfg := containerConfig{
		maxCells:          DefaultMaxCellsInMemory,
		maxPossibleValues: DefaultMaxPossibleValues,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Container{
		cfg:    cfg,
		spec:   spec.WithoutDomain(),
		id:     NextBufferID(),
		budget: cfg.policy.cellBudget(cfg.maxCells),
		keys:   make(map[string]struct{}),
		domain: newDomainTracker(spec, cfg.maxPossibleValues),
	}
}

// BufferID returns the ID the resulting table will carry.
func (c *Container) BufferID() int64 { return c.id }

// Spec returns the column layout rows must follow.
func (c *Container) Spec() Spec { return c.spec }

// Policy returns the memory policy in effect.
func (c *Container) Policy() MemoryPolicy { return c.cfg.policy }

// Size returns the number of rows added so far.
func (c *Container) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.size
}

// IsClosed reports whether Close succeeded.
func (c *Container) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed != nil
}

// Spilled reports whether rows have been moved to the spill store.
func (c *Container) Spilled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writer != nil
}

// AddRow validates row against the spec and appends it.
func (c *Container) AddRow(row Row) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil || c.discarded {
		return illegalState("cannot add row %q: container %d is closed", row.Key, c.id)
	}
	normalized, err := normalizeRow(c.spec, row)
	if err != nil {
		return err
	}
	if _, dup := c.keys[row.Key]; dup {
		return fmt.Errorf("container %d already holds a row with key %q", c.id, row.Key)
	}

	if c.writer != nil {
		if err := c.writer.Write(normalized); err != nil {
			return err
		}
	} else {
		c.rows = append(c.rows, normalized)
		if c.exceedsBudget(len(c.rows)) {
			if err := c.spill(); err != nil {
				c.rows = c.rows[:len(c.rows)-1]
				return err
			}
		}
	}

	c.keys[row.Key] = struct{}{}
	c.domain.add(normalized.Cells)
	c.size++
	return nil
}

func (c *Container) exceedsBudget(rows int) bool {
	if c.budget < 0 {
		return false
	}
	return rows*c.spec.NumColumns() > c.budget || c.budget == 0
}

// spill moves the buffered rows to the store and switches to write-through.
func (c *Container) spill() error {
	store := c.cfg.store
	if store == nil {
		var err error
		if store, err = DefaultSpillStore(); err != nil {
			return err
		}
		c.cfg.store = store
	}
	w, err := store.Create(c.id)
	if err != nil {
		return err
	}
	for _, r := range c.rows {
		if err := w.Write(r); err != nil {
			_ = w.Close()
			_ = store.Remove(c.id)
			return err
		}
	}
	c.cfg.log.WithFields(map[string]any{
		"buffer_id": c.id,
		"rows":      len(c.rows),
		"policy":    c.cfg.policy.String(),
	}).Debug("container exceeded memory budget, spilling")
	c.rows = nil
	c.writer = w
	return nil
}

// Close finalizes the container. Repeated calls return the same table.
func (c *Container) Close() (*ContainerTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed != nil {
		return c.closed, nil
	}
	if c.discarded {
		return nil, illegalState("container %d was discarded", c.id)
	}

	ct := &ContainerTable{
		id:    c.id,
		spec:  c.domain.apply(c.spec),
		size:  c.size,
		cache: c.cfg.cache,
	}
	if c.writer != nil {
		if err := c.writer.Close(); err != nil {
			return nil, fmt.Errorf("close container %d: %w", c.id, err)
		}
		ct.store = c.cfg.store
	} else {
		ct.rows = c.rows
	}
	c.rows = nil
	c.keys = nil
	c.closed = ct
	return ct, nil
}

// Table returns the buffered table wrapping the closed container, registering
// it in the configured repositories on first call.
func (c *Container) Table() (*BufferedDataTable, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed == nil {
		return nil, illegalState("container %d is not closed", c.id)
	}
	if c.table != nil {
		return c.table, nil
	}
	t, err := newBufferedDataTable(c.closed, c.cfg.global, c.cfg.local)
	if err != nil {
		return nil, err
	}
	c.table = t
	return t, nil
}

// Discard releases all storage. The container cannot be used afterwards.
func (c *Container) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.discarded {
		return
	}
	c.discarded = true
	if c.table != nil {
		c.table.Clear()
	} else if c.closed != nil {
		_ = c.closed.clear()
	} else if c.writer != nil {
		_ = c.writer.Close()
		_ = c.cfg.store.Remove(c.id)
	}
	c.rows = nil
	c.keys = nil
	c.writer = nil
}
