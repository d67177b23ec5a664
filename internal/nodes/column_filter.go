package nodes

import (
	"context"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// ColumnFilterType is the type name of the column filter.
const ColumnFilterType = "column_filter"

type columnFilterSettings struct {
	Include []string `settings:"include" validate:"required_without=Exclude,excluded_with=Exclude"`
	Exclude []string `settings:"exclude"`
}

type columnFilter struct {
	cfg columnFilterSettings
}

// ColumnFilter describes the column_filter node type. The output is a view
// over the input table; no rows are copied.
func ColumnFilter() node.Descriptor {
	return node.Descriptor{
		Name:        ColumnFilterType,
		Version:     "1.0.0",
		Description: "Keeps or drops columns without copying rows",
		InPorts:     tablePorts,
		OutPorts:    tablePorts,
		Factory:     func() node.Model { return &columnFilter{} },
	}
}

func (m *columnFilter) ValidateSettings(s *settings.Tree) error {
	_, err := settingsOf[columnFilterSettings](s)
	return err
}

func (m *columnFilter) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[columnFilterSettings](s)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *columnFilter) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

func (m *columnFilter) indices(spec table.Spec) ([]int, error) {
	if len(m.cfg.Include) > 0 {
		out := make([]int, 0, len(m.cfg.Include))
		for _, name := range m.cfg.Include {
			idx, ok := spec.Index(name)
			if !ok {
				return nil, nferrors.InvalidSettingsf("column %q not in input", name)
			}
			out = append(out, idx)
		}
		return out, nil
	}

	drop := make(map[string]struct{}, len(m.cfg.Exclude))
	for _, name := range m.cfg.Exclude {
		if _, ok := spec.Index(name); !ok {
			return nil, nferrors.InvalidSettingsf("column %q not in input", name)
		}
		drop[name] = struct{}{}
	}
	var out []int
	for i, col := range spec.Columns {
		if _, ok := drop[col.Name]; !ok {
			out = append(out, i)
		}
	}
	if len(out) == 0 {
		return nil, nferrors.InvalidSettingsf("every column is excluded")
	}
	return out, nil
}

func (m *columnFilter) Configure(_ context.Context, in []port.Spec) ([]port.Spec, error) {
	spec, err := inputSpec(in, 0)
	if err != nil {
		return nil, err
	}
	idx, err := m.indices(spec)
	if err != nil {
		return nil, err
	}
	out, err := spec.Select(idx)
	if err != nil {
		return nil, err
	}
	return []port.Spec{out}, nil
}

func (m *columnFilter) Execute(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error) {
	src, err := inputTable(in, 0)
	if err != nil {
		return nil, err
	}
	idx, err := m.indices(src.DataSpec())
	if err != nil {
		return nil, err
	}
	view, err := exec.CreateColumnView(src, idx)
	if err != nil {
		return nil, err
	}
	exec.SetProgress(1)
	return []port.Object{view}, nil
}

func (m *columnFilter) Reset() {}
