// Package table implements row containers, spill storage and the immutable
// tables that flow between nodes.
package table

import (
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/port"
)

// ColumnType enumerates the cell types a column may hold.
type ColumnType int

const (
	IntColumn ColumnType = iota + 1
	DoubleColumn
	StringColumn
	BoolColumn
)

var columnTypeNames = map[ColumnType]string{
	IntColumn:    "int",
	DoubleColumn: "double",
	StringColumn: "string",
	BoolColumn:   "bool",
}

func (t ColumnType) String() string {
	if name, ok := columnTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ColumnType(%d)", int(t))
}

// ParseColumnType converts the textual name of a column type.
func ParseColumnType(name string) (ColumnType, error) {
	for t, n := range columnTypeNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown column type %q", name)
}

// MarshalText implements encoding.TextMarshaler.
func (t ColumnType) MarshalText() ([]byte, error) {
	if _, ok := columnTypeNames[t]; !ok {
		return nil, fmt.Errorf("unknown column type %d", int(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *ColumnType) UnmarshalText(text []byte) error {
	parsed, err := ParseColumnType(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Domain summarizes the values observed in a column of a closed table.
// Bounds are nil for non-numeric columns or when every cell was missing.
// Values is nil when a string column exceeded the possible-values limit.
type Domain struct {
	Min    any      `json:"min,omitempty"`
	Max    any      `json:"max,omitempty"`
	Values []string `json:"values,omitempty"`
}

// Column describes one column of a table.
type Column struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Domain *Domain    `json:"domain,omitempty"`
}

// Spec is the ordered column layout of a table.
type Spec struct {
	Columns []Column `json:"columns"`
}

// NewSpec builds a spec from columns, rejecting empty or duplicate names.
func NewSpec(columns ...Column) (Spec, error) {
	seen := make(map[string]struct{}, len(columns))
	for i, c := range columns {
		if strings.TrimSpace(c.Name) == "" {
			return Spec{}, fmt.Errorf("column %d has an empty name", i)
		}
		if _, ok := columnTypeNames[c.Type]; !ok {
			return Spec{}, fmt.Errorf("column %q has unknown type %d", c.Name, int(c.Type))
		}
		if _, dup := seen[c.Name]; dup {
			return Spec{}, fmt.Errorf("duplicate column name %q", c.Name)
		}
		seen[c.Name] = struct{}{}
	}
	return Spec{Columns: append([]Column(nil), columns...)}, nil
}

// MustSpec is NewSpec for statically known layouts. It panics on error.
func MustSpec(columns ...Column) Spec {
	s, err := NewSpec(columns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Col is shorthand for a column without domain.
func Col(name string, t ColumnType) Column {
	return Column{Name: name, Type: t}
}

// NumColumns returns the column count.
func (s Spec) NumColumns() int { return len(s.Columns) }

// Index returns the position of the named column.
func (s Spec) Index(name string) (int, bool) {
	for i, c := range s.Columns {
		if c.Name == name {
			return i, true
		}
	}
	return -1, false
}

// Names returns the column names in order.
func (s Spec) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Equal compares column names and types, ignoring domains.
func (s Spec) Equal(other Spec) bool {
	if len(s.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range s.Columns {
		if c.Name != other.Columns[i].Name || c.Type != other.Columns[i].Type {
			return false
		}
	}
	return true
}

// WithoutDomain returns a copy with every column domain removed.
func (s Spec) WithoutDomain() Spec {
	cols := make([]Column, len(s.Columns))
	for i, c := range s.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type}
	}
	return Spec{Columns: cols}
}

// Select returns the spec of the given column positions.
func (s Spec) Select(indices []int) (Spec, error) {
	cols := make([]Column, 0, len(indices))
	for _, idx := range indices {
		if idx < 0 || idx >= len(s.Columns) {
			return Spec{}, fmt.Errorf("column index %d out of range [0,%d)", idx, len(s.Columns))
		}
		cols = append(cols, s.Columns[idx])
	}
	return NewSpec(cols...)
}

// Summary implements port.Spec.
func (s Spec) Summary() string {
	parts := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		parts[i] = c.Name + ":" + c.Type.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func (s Spec) String() string { return s.Summary() }

// PortType is the port type carried by table ports.
var PortType = port.TypeOf[Spec, *BufferedDataTable]()
