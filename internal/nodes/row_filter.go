package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// RowFilterType is the type name of the row filter.
const RowFilterType = "row_filter"

type rowFilterSettings struct {
	Column   string `settings:"column" validate:"required"`
	Operator string `settings:"operator" validate:"required,oneof=eq ne lt le gt ge contains missing present"`
	Value    string `settings:"value"`
}

type rowFilter struct {
	cfg rowFilterSettings
}

// RowFilter describes the row_filter node type. It keeps the rows whose cell
// in column satisfies operator against value.
func RowFilter() node.Descriptor {
	return node.Descriptor{
		Name:        RowFilterType,
		Version:     "1.0.0",
		Description: "Keeps rows matching a condition on one column",
		InPorts:     tablePorts,
		OutPorts:    tablePorts,
		Factory:     func() node.Model { return &rowFilter{} },
	}
}

func (m *rowFilter) ValidateSettings(s *settings.Tree) error {
	_, err := settingsOf[rowFilterSettings](s)
	return err
}

func (m *rowFilter) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[rowFilterSettings](s)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *rowFilter) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

// predicate compiles the condition against spec.
func (m *rowFilter) predicate(spec table.Spec) (func(table.Row) bool, error) {
	idx, ok := spec.Index(m.cfg.Column)
	if !ok {
		return nil, nferrors.InvalidSettingsf("column %q not in input (%s)", m.cfg.Column, strings.Join(spec.Names(), ", "))
	}
	ct := spec.Columns[idx].Type

	switch m.cfg.Operator {
	case "missing":
		return func(r table.Row) bool { return r.Cells[idx] == nil }, nil
	case "present":
		return func(r table.Row) bool { return r.Cells[idx] != nil }, nil
	case "contains":
		if ct != table.StringColumn {
			return nil, nferrors.InvalidSettingsf("contains needs a string column, %q is %s", m.cfg.Column, ct)
		}
		return func(r table.Row) bool {
			s, ok := r.Cells[idx].(string)
			return ok && strings.Contains(s, m.cfg.Value)
		}, nil
	}

	want, err := parseCell(ct, m.cfg.Value)
	if err != nil || want == nil {
		return nil, nferrors.InvalidSettingsf("value %q is not a valid %s", m.cfg.Value, ct)
	}
	op := m.cfg.Operator
	return func(r table.Row) bool {
		cmp, ok := compareCells(r.Cells[idx], want)
		if !ok {
			return false
		}
		switch op {
		case "eq":
			return cmp == 0
		case "ne":
			return cmp != 0
		case "lt":
			return cmp < 0
		case "le":
			return cmp <= 0
		case "gt":
			return cmp > 0
		case "ge":
			return cmp >= 0
		}
		return false
	}, nil
}

// compareCells orders two cells of the same column type. Missing cells do not
// compare.
func compareCells(a, b any) (int, bool) {
	switch x := a.(type) {
	case int64:
		y, ok := b.(int64)
		if !ok {
			return 0, false
		}
		return compareOrdered(x, y), true
	case float64:
		y, ok := b.(float64)
		if !ok {
			return 0, false
		}
		return compareOrdered(x, y), true
	case string:
		y, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(x, y), true
	case bool:
		y, ok := b.(bool)
		if !ok {
			return 0, false
		}
		switch {
		case x == y:
			return 0, true
		case !x:
			return -1, true
		default:
			return 1, true
		}
	}
	return 0, false
}

func compareOrdered[T int64 | float64](x, y T) int {
	switch {
	case x < y:
		return -1
	case x > y:
		return 1
	default:
		return 0
	}
}

func (m *rowFilter) Configure(_ context.Context, in []port.Spec) ([]port.Spec, error) {
	spec, err := inputSpec(in, 0)
	if err != nil {
		return nil, err
	}
	if _, err := m.predicate(spec); err != nil {
		return nil, err
	}
	return []port.Spec{spec.WithoutDomain()}, nil
}

func (m *rowFilter) Execute(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error) {
	src, err := inputTable(in, 0)
	if err != nil {
		return nil, err
	}
	keep, err := m.predicate(src.DataSpec())
	if err != nil {
		return nil, err
	}

	it, err := src.Rows()
	if err != nil {
		return nil, err
	}
	defer it.Close()

	c := exec.CreateContainer(src.DataSpec().WithoutDomain())
	total, seen := src.Size(), 0
	for it.Next() {
		if err := exec.CheckCanceled(); err != nil {
			return nil, err
		}
		seen++
		row := it.Row()
		if keep(row) {
			if err := c.AddRow(row); err != nil {
				return nil, err
			}
		}
		if total > 0 {
			exec.SetProgressMessage(float64(seen)/float64(total), fmt.Sprintf("Filtered row #%d (%q)", seen, row.Key))
		}
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	if c.Size() == 0 && total > 0 {
		exec.SetWarning(fmt.Sprintf("no row of %d matched %s %s %q", total, m.cfg.Column, m.cfg.Operator, m.cfg.Value))
	}

	if _, err := c.Close(); err != nil {
		return nil, err
	}
	t, err := c.Table()
	if err != nil {
		return nil, err
	}
	return []port.Object{t}, nil
}

func (m *rowFilter) Reset() {}
