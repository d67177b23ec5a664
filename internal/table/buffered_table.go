package table

import (
	"fmt"
	"sync"
)

// source is a table whose storage a BufferedDataTable may release.
type source interface {
	Table
	clear() error
}

// BufferedDataTable is the table object exchanged through ports. It wraps a
// container table or a view on another table, carries the buffer ID, and
// records the node that produced it.
type BufferedDataTable struct {
	data  source
	repos []*Repository

	mu       sync.Mutex
	owner    any
	ownerSet bool
	cleared  bool
}

func newBufferedDataTable(data source, repos ...*Repository) (*BufferedDataTable, error) {
	for i, r := range repos {
		if err := r.Put(data); err != nil {
			for _, done := range repos[:i] {
				done.Remove(data.BufferID(), data)
			}
			return nil, err
		}
	}
	return &BufferedDataTable{data: data, repos: repos}, nil
}

// BufferID returns the process-unique buffer ID.
func (t *BufferedDataTable) BufferID() int64 { return t.data.BufferID() }

// DataSpec returns the column layout including domains.
func (t *BufferedDataTable) DataSpec() Spec { return t.data.DataSpec() }

// Size returns the row count.
func (t *BufferedDataTable) Size() int { return t.data.Size() }

// Rows iterates the rows in order.
func (t *BufferedDataTable) Rows() (RowIterator, error) { return t.data.Rows() }

// InMemory reports whether the rows are resident.
func (t *BufferedDataTable) InMemory() bool {
	ct, ok := t.data.(*ContainerTable)
	return !ok || ct.InMemory()
}

// Summary implements port.Object.
func (t *BufferedDataTable) Summary() string {
	return fmt.Sprintf("table #%d with %d rows and %d columns", t.BufferID(), t.Size(), t.DataSpec().NumColumns())
}

// Owner returns the producing node, or nil before SetOwner.
func (t *BufferedDataTable) Owner() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.owner
}

// SetOwner records the producing node. The owner can be set exactly once;
// setting the same owner again is allowed.
func (t *BufferedDataTable) SetOwner(owner any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.ownerSet {
		if t.owner == owner {
			return nil
		}
		return illegalState("buffer %d already has an owner", t.BufferID())
	}
	t.owner = owner
	t.ownerSet = true
	return nil
}

// Release clears the table when owner produced it. Tables reached through a
// port by other nodes are never released by them.
func (t *BufferedDataTable) Release(owner any) {
	t.mu.Lock()
	match := t.ownerSet && t.owner == owner
	t.mu.Unlock()
	if match {
		t.Clear()
	}
}

// Clear unregisters the table and frees its storage.
func (t *BufferedDataTable) Clear() {
	t.mu.Lock()
	if t.cleared {
		t.mu.Unlock()
		return
	}
	t.cleared = true
	t.mu.Unlock()

	for _, r := range t.repos {
		r.Remove(t.data.BufferID(), t.data)
	}
	_ = t.data.clear()
}

// IsCleared reports whether Clear has run.
func (t *BufferedDataTable) IsCleared() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cleared
}
