package table

import (
	lru "github.com/hashicorp/golang-lru"
)

// DefaultCacheTables is the number of spilled tables a BufferCache keeps.
const DefaultCacheTables = 64

// BufferCache keeps decoded rows of recently read spilled tables so repeated
// scans of small tables avoid the spill store.
type BufferCache struct {
	arc     *lru.ARCCache
	maxRows int
}

// NewBufferCache creates a cache holding up to tables entries, each at most
// maxRows rows.
func NewBufferCache(tables, maxRows int) (*BufferCache, error) {
	if tables <= 0 {
		tables = DefaultCacheTables
	}
	arc, err := lru.NewARC(tables)
	if err != nil {
		return nil, err
	}
	return &BufferCache{arc: arc, maxRows: maxRows}, nil
}

// Accepts reports whether a table of size rows is small enough to cache.
func (c *BufferCache) Accepts(size int) bool {
	return c != nil && size <= c.maxRows
}

// Get returns the cached rows of a buffer.
func (c *BufferCache) Get(id int64) ([]Row, bool) {
	if c == nil {
		return nil, false
	}
	v, ok := c.arc.Get(id)
	if !ok {
		return nil, false
	}
	return v.([]Row), true
}

// Put stores rows for a buffer.
func (c *BufferCache) Put(id int64, rows []Row) {
	if c == nil {
		return
	}
	c.arc.Add(id, rows)
}

// Evict drops a buffer.
func (c *BufferCache) Evict(id int64) {
	if c == nil {
		return
	}
	c.arc.Remove(id)
}

// Len reports the number of cached buffers.
func (c *BufferCache) Len() int {
	if c == nil {
		return 0
	}
	return c.arc.Len()
}
