package table

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// MemoryPolicy decides where a container keeps its rows.
type MemoryPolicy int

const (
	// CacheSmallInMemory keeps rows in memory up to a cell ceiling and spills
	// everything once the ceiling is exceeded. It is the zero value.
	CacheSmallInMemory MemoryPolicy = iota
	// CacheInMemory never spills.
	CacheInMemory
	// CacheOnDisc writes every row through to the spill store.
	CacheOnDisc
)

// DefaultMaxCellsInMemory is the ceiling used by CacheSmallInMemory.
const DefaultMaxCellsInMemory = 5000

// DefaultMaxPossibleValues bounds the distinct values kept in a string
// column domain.
const DefaultMaxPossibleValues = 60

var policyNames = map[MemoryPolicy]string{
	CacheSmallInMemory: "small_in_memory",
	CacheInMemory:      "in_memory",
	CacheOnDisc:        "on_disc",
}

func (p MemoryPolicy) String() string {
	if name, ok := policyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("MemoryPolicy(%d)", int(p))
}

// ParseMemoryPolicy converts a policy name. The empty string yields the
// default policy.
func ParseMemoryPolicy(name string) (MemoryPolicy, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return CacheSmallInMemory, nil
	}
	for p, n := range policyNames {
		if n == name {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown memory policy %q", name)
}

// PolicyNames lists the accepted policy names.
func PolicyNames() []string {
	return []string{
		policyNames[CacheInMemory],
		policyNames[CacheSmallInMemory],
		policyNames[CacheOnDisc],
	}
}

// cellBudget resolves the in-memory cell ceiling. A negative result means
// unlimited.
func (p MemoryPolicy) cellBudget(maxCells int) int {
	switch p {
	case CacheInMemory:
		return -1
	case CacheOnDisc:
		return 0
	default:
		if maxCells < 0 {
			return DefaultMaxCellsInMemory
		}
		return maxCells
	}
}

var lastBufferID atomic.Int64

// NextBufferID returns a process-unique buffer ID.
func NextBufferID() int64 {
	return lastBufferID.Add(1)
}
