package table

import (
	"sync"
)

// ContainerTable is the immutable result of a closed Container. Its rows live
// either in memory or in a spill store.
type ContainerTable struct {
	id    int64
	spec  Spec
	size  int
	rows  []Row
	store SpillStore
	cache *BufferCache

	mu      sync.RWMutex
	cleared bool
}

// BufferID returns the process-unique buffer ID.
func (t *ContainerTable) BufferID() int64 { return t.id }

// DataSpec returns the spec including column domains.
func (t *ContainerTable) DataSpec() Spec { return t.spec }

// Size returns the row count.
func (t *ContainerTable) Size() int { return t.size }

// InMemory reports whether rows are served from memory.
func (t *ContainerTable) InMemory() bool { return t.store == nil }

// Rows iterates the rows in insertion order.
func (t *ContainerTable) Rows() (RowIterator, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.cleared {
		return nil, illegalState("buffer %d has been cleared", t.id)
	}
	if t.store == nil {
		return newSliceIterator(t.rows), nil
	}
	if rows, ok := t.cache.Get(t.id); ok {
		return newSliceIterator(rows), nil
	}
	it, err := t.store.Open(t.id, t.spec)
	if err != nil {
		return nil, err
	}
	if !t.cache.Accepts(t.size) {
		return it, nil
	}
	rows, err := Collect(it)
	if err != nil {
		return nil, err
	}
	t.cache.Put(t.id, rows)
	return newSliceIterator(rows), nil
}

// clear releases the backing storage. It is idempotent.
func (t *ContainerTable) clear() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cleared {
		return nil
	}
	t.cleared = true
	t.rows = nil
	if t.store == nil {
		return nil
	}
	t.cache.Evict(t.id)
	return t.store.Remove(t.id)
}
