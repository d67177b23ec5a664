package table

import (
	"fmt"
	"sync/atomic"
)

// columnView exposes a subset of another table's columns without copying
// rows. Clearing the view never touches the underlying storage.
type columnView struct {
	id      int64
	src     *BufferedDataTable
	indices []int
	spec    Spec
	cleared atomic.Bool
}

// NewColumnView returns a table over the columns of src at indices, in that
// order. The view gets its own buffer ID and is registered in repos.
func NewColumnView(src *BufferedDataTable, indices []int, repos ...*Repository) (*BufferedDataTable, error) {
	spec, err := src.DataSpec().Select(indices)
	if err != nil {
		return nil, err
	}
	v := &columnView{
		id:      NextBufferID(),
		src:     src,
		indices: append([]int(nil), indices...),
		spec:    spec,
	}
	return newBufferedDataTable(v, repos...)
}

func (v *columnView) BufferID() int64 { return v.id }
func (v *columnView) DataSpec() Spec  { return v.spec }
func (v *columnView) Size() int       { return v.src.Size() }

func (v *columnView) Rows() (RowIterator, error) {
	if v.cleared.Load() {
		return nil, illegalState("buffer %d has been cleared", v.id)
	}
	it, err := v.src.Rows()
	if err != nil {
		return nil, err
	}
	return &projectingIterator{RowIterator: it, indices: v.indices}, nil
}

func (v *columnView) clear() error {
	v.cleared.Store(true)
	return nil
}

type projectingIterator struct {
	RowIterator
	indices []int
}

func (p *projectingIterator) Row() Row {
	row := p.RowIterator.Row()
	cells := make([]any, len(p.indices))
	for i, idx := range p.indices {
		cells[i] = row.Cells[idx]
	}
	return Row{Key: row.Key, Cells: cells}
}

// specReplacer serves another table's rows under a different spec.
type specReplacer struct {
	id      int64
	src     *BufferedDataTable
	spec    Spec
	cleared atomic.Bool
}

// NewSpecReplacer returns a table with the rows of src described by spec,
// typically to rename columns or replace domains. spec must keep the column
// count and types of src.
func NewSpecReplacer(src *BufferedDataTable, spec Spec, repos ...*Repository) (*BufferedDataTable, error) {
	if _, err := NewSpec(spec.Columns...); err != nil {
		return nil, err
	}
	old := src.DataSpec()
	if spec.NumColumns() != old.NumColumns() {
		return nil, fmt.Errorf("replacement spec has %d columns, table #%d has %d", spec.NumColumns(), src.BufferID(), old.NumColumns())
	}
	for i, c := range spec.Columns {
		if want := old.Columns[i].Type; c.Type != want {
			return nil, fmt.Errorf("column %d %q must stay %s, got %s", i, c.Name, want, c.Type)
		}
	}
	r := &specReplacer{id: NextBufferID(), src: src, spec: spec}
	return newBufferedDataTable(r, repos...)
}

func (r *specReplacer) BufferID() int64 { return r.id }
func (r *specReplacer) DataSpec() Spec  { return r.spec }
func (r *specReplacer) Size() int       { return r.src.Size() }

func (r *specReplacer) Rows() (RowIterator, error) {
	if r.cleared.Load() {
		return nil, illegalState("buffer %d has been cleared", r.id)
	}
	return r.src.Rows()
}

func (r *specReplacer) clear() error {
	r.cleared.Store(true)
	return nil
}
