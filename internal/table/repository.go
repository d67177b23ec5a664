package table

import (
	"sort"
	"sync"
)

// Table is the read view shared by container tables and their wrappers.
type Table interface {
	BufferID() int64
	DataSpec() Spec
	Size() int
	Rows() (RowIterator, error)
}

// Repository maps buffer IDs to tables. Lookups may run concurrently; a
// repository never holds two different tables under one ID.
type Repository struct {
	mu     sync.RWMutex
	tables map[int64]Table
}

// NewRepository creates an empty repository.
func NewRepository() *Repository {
	return &Repository{tables: make(map[int64]Table)}
}

// Put registers t. Registering the same table again is a no-op; a different
// table under an existing ID is an illegal state.
func (r *Repository) Put(t Table) error {
	if r == nil || t == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	id := t.BufferID()
	if existing, ok := r.tables[id]; ok {
		if existing == t {
			return nil
		}
		return illegalState("buffer %d is already registered to another table", id)
	}
	r.tables[id] = t
	return nil
}

// Get resolves a buffer ID.
func (r *Repository) Get(id int64) (Table, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tables[id]
	return t, ok
}

// Remove unregisters id when it maps to t.
func (r *Repository) Remove(id int64, t Table) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.tables[id]; ok && existing == t {
		delete(r.tables, id)
	}
}

// Len reports the number of registered tables.
func (r *Repository) Len() int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tables)
}

// IDs returns the registered buffer IDs in ascending order.
func (r *Repository) IDs() []int64 {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	ids := make([]int64, 0, len(r.tables))
	for id := range r.tables {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
