// Package config loads and validates the YAML workflow document.
package config

import (
	"runtime"
	"time"

	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	"github.com/alexisbeaulieu97/nodeflow/internal/validation"
)

// Workflow represents the full workflow document.
type Workflow struct {
	Version     string       `yaml:"version" validate:"required,semver"`
	Name        string       `yaml:"name" validate:"required,min=1,max=100"`
	Description string       `yaml:"description,omitempty"`
	Settings    Settings     `yaml:"settings,omitempty"`
	Nodes       []Node       `yaml:"nodes" validate:"required,min=1,dive"`
	Connections []Connection `yaml:"connections,omitempty" validate:"omitempty,dive"`
}

// Settings holds workflow-wide execution parameters.
type Settings struct {
	Parallel         int    `yaml:"parallel,omitempty" validate:"omitempty,min=1,max=64"`
	Timeout          int    `yaml:"timeout,omitempty" validate:"omitempty,min=1,max=360000"`
	ContinueOnError  bool   `yaml:"continue_on_error,omitempty"`
	MemoryPolicy     string `yaml:"memory_policy,omitempty" validate:"omitempty,memory_policy"`
	MaxCellsInMemory int    `yaml:"max_cells_in_memory,omitempty" validate:"omitempty,min=1"`
	ProgressInterval int    `yaml:"progress_interval_ms,omitempty" validate:"omitempty,min=10,max=60000"`
	Spill            Spill  `yaml:"spill,omitempty"`
}

// Spill selects where rows over the in-memory budget go.
type Spill struct {
	Backend     string `yaml:"backend,omitempty" validate:"omitempty,oneof=file badger"`
	Dir         string `yaml:"dir,omitempty"`
	CacheTables int    `yaml:"cache_tables,omitempty" validate:"omitempty,min=1"`
}

// Node declares one node instance.
type Node struct {
	ID           string         `yaml:"id" validate:"required,node_id"`
	Name         string         `yaml:"name,omitempty"`
	Type         string         `yaml:"type" validate:"required"`
	MemoryPolicy string         `yaml:"memory_policy,omitempty" validate:"omitempty,memory_policy"`
	Settings     map[string]any `yaml:"settings,omitempty"`
}

// Connection links an out-port to an in-port. Both ends are port
// references of the form "node" or "node:index".
type Connection struct {
	From string `yaml:"from" validate:"required,port_ref"`
	To   string `yaml:"to" validate:"required,port_ref"`
}

// Endpoints resolves both port references. Callers must validate first.
func (c Connection) Endpoints() (fromNode string, fromPort int, toNode string, toPort int) {
	fromNode, fromPort, _ = validation.ParsePortRef(c.From)
	toNode, toPort, _ = validation.ParsePortRef(c.To)
	return fromNode, fromPort, toNode, toPort
}

// SettingsTree converts the YAML settings block into a settings tree.
func (n Node) SettingsTree() (*settings.Tree, error) {
	if len(n.Settings) == 0 {
		return settings.New(), nil
	}
	return settings.FromMap(n.Settings)
}

// Policy returns the node's memory policy, falling back to def.
func (n Node) Policy(def table.MemoryPolicy) table.MemoryPolicy {
	if n.MemoryPolicy == "" {
		return def
	}
	p, err := table.ParseMemoryPolicy(n.MemoryPolicy)
	if err != nil {
		return def
	}
	return p
}

// Workers returns the worker pool size.
func (s Settings) Workers() int {
	if s.Parallel > 0 {
		return s.Parallel
	}
	return runtime.NumCPU()
}

// TimeoutDuration returns the run timeout, zero when unlimited.
func (s Settings) TimeoutDuration() time.Duration {
	return time.Duration(s.Timeout) * time.Second
}

// Policy returns the default memory policy.
func (s Settings) Policy() table.MemoryPolicy {
	p, err := table.ParseMemoryPolicy(s.MemoryPolicy)
	if err != nil {
		return table.CacheSmallInMemory
	}
	return p
}

// CellsInMemory returns the CacheSmallInMemory ceiling.
func (s Settings) CellsInMemory() int {
	if s.MaxCellsInMemory > 0 {
		return s.MaxCellsInMemory
	}
	return table.DefaultMaxCellsInMemory
}

// NotifyPeriod returns the progress notifier period.
func (s Settings) NotifyPeriod() time.Duration {
	if s.ProgressInterval > 0 {
		return time.Duration(s.ProgressInterval) * time.Millisecond
	}
	return progress.DefaultPeriod
}

// NodeMap builds a lookup table for nodes by ID.
func NodeMap(nodes []Node) map[string]Node {
	out := make(map[string]Node, len(nodes))
	for _, n := range nodes {
		out[n.ID] = n
	}
	return out
}
