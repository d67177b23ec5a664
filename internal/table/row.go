package table

import (
	"fmt"
	"math"

	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Row is one table row. Cells hold int64, float64, string, bool or nil for a
// missing value.
type Row struct {
	Key   string
	Cells []any
}

// NewRow builds a row from a key and cells.
func NewRow(key string, cells ...any) Row {
	return Row{Key: key, Cells: cells}
}

// RowIterator walks the rows of a table in order.
//
//	it, err := t.Rows()
//	for it.Next() {
//		row := it.Row()
//	}
//	err = it.Err()
type RowIterator interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// sliceIterator serves rows held in memory.
type sliceIterator struct {
	rows []Row
	pos  int
}

func newSliceIterator(rows []Row) *sliceIterator {
	return &sliceIterator{rows: rows, pos: -1}
}

func (it *sliceIterator) Next() bool {
	if it.pos+1 >= len(it.rows) {
		it.pos = len(it.rows)
		return false
	}
	it.pos++
	return true
}

func (it *sliceIterator) Row() Row {
	if it.pos < 0 || it.pos >= len(it.rows) {
		return Row{}
	}
	return it.rows[it.pos]
}

func (it *sliceIterator) Err() error   { return nil }
func (it *sliceIterator) Close() error { return nil }

// Collect drains it into a slice and closes it.
func Collect(it RowIterator) ([]Row, error) {
	defer it.Close()
	var rows []Row
	for it.Next() {
		rows = append(rows, it.Row())
	}
	return rows, it.Err()
}

// normalizeRow checks row against spec and returns a copy whose cells carry
// the canonical Go type of their column.
func normalizeRow(spec Spec, row Row) (Row, error) {
	if len(row.Cells) != spec.NumColumns() {
		return Row{}, fmt.Errorf("row %q has %d cells, spec has %d columns", row.Key, len(row.Cells), spec.NumColumns())
	}
	cells := make([]any, len(row.Cells))
	for i, cell := range row.Cells {
		c, err := normalizeCell(spec.Columns[i].Type, cell)
		if err != nil {
			return Row{}, fmt.Errorf("row %q column %q: %w", row.Key, spec.Columns[i].Name, err)
		}
		cells[i] = c
	}
	return Row{Key: row.Key, Cells: cells}, nil
}

func normalizeCell(t ColumnType, cell any) (any, error) {
	if cell == nil {
		return nil, nil
	}
	switch t {
	case IntColumn:
		switch v := cell.(type) {
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case uint64:
			if v > math.MaxInt64 {
				return nil, fmt.Errorf("value %d overflows int", v)
			}
			return int64(v), nil
		}
	case DoubleColumn:
		switch v := cell.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		}
	case StringColumn:
		if v, ok := cell.(string); ok {
			return v, nil
		}
	case BoolColumn:
		if v, ok := cell.(bool); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%T is not a %s cell", cell, t)
}

// domainTracker accumulates column domains while rows are added.
type domainTracker struct {
	maxValues int
	min       []any
	max       []any
	values    [][]string
	seen      []map[string]struct{}
}

func newDomainTracker(spec Spec, maxValues int) *domainTracker {
	n := spec.NumColumns()
	d := &domainTracker{
		maxValues: maxValues,
		min:       make([]any, n),
		max:       make([]any, n),
		values:    make([][]string, n),
		seen:      make([]map[string]struct{}, n),
	}
	for i, c := range spec.Columns {
		if c.Type == StringColumn {
			d.seen[i] = make(map[string]struct{})
			d.values[i] = []string{}
		}
	}
	return d
}

func (d *domainTracker) add(cells []any) {
	for i, cell := range cells {
		switch v := cell.(type) {
		case int64:
			if d.min[i] == nil || v < d.min[i].(int64) {
				d.min[i] = v
			}
			if d.max[i] == nil || v > d.max[i].(int64) {
				d.max[i] = v
			}
		case float64:
			if math.IsNaN(v) {
				continue
			}
			if d.min[i] == nil || v < d.min[i].(float64) {
				d.min[i] = v
			}
			if d.max[i] == nil || v > d.max[i].(float64) {
				d.max[i] = v
			}
		case string:
			if d.seen[i] == nil {
				continue
			}
			if _, ok := d.seen[i][v]; ok {
				continue
			}
			if len(d.values[i]) >= d.maxValues {
				d.seen[i] = nil
				d.values[i] = nil
				continue
			}
			d.seen[i][v] = struct{}{}
			d.values[i] = append(d.values[i], v)
		}
	}
}

func (d *domainTracker) apply(spec Spec) Spec {
	cols := make([]Column, len(spec.Columns))
	for i, c := range spec.Columns {
		cols[i] = Column{Name: c.Name, Type: c.Type}
		dom := &Domain{Min: d.min[i], Max: d.max[i], Values: d.values[i]}
		if dom.Min != nil || dom.Max != nil || dom.Values != nil {
			cols[i].Domain = dom
		}
	}
	return Spec{Columns: cols}
}

func illegalState(format string, args ...any) error {
	return nferrors.IllegalStatef(format, args...)
}
