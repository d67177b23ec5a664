package nodes

import (
	"context"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// TableSourceType is the type name of the inline table source.
const TableSourceType = "table_source"

type tableSourceSettings struct {
	Columns []string `settings:"columns" validate:"required,min=1"`
	Rows    []string `settings:"rows"`
	Repeat  int      `settings:"repeat" validate:"gte=0,lte=10000000"`
}

// tableSource emits rows declared inline in its settings. Each row is one
// comma separated line; repeat replays the whole block.
type tableSource struct {
	cfg  tableSourceSettings
	spec table.Spec
	rows [][]string
}

// TableSource describes the table_source node type.
func TableSource() node.Descriptor {
	return node.Descriptor{
		Name:        TableSourceType,
		Version:     "1.0.0",
		Description: "Emits a table declared inline in the settings",
		OutPorts:    tablePorts,
		Factory:     func() node.Model { return &tableSource{} },
	}
}

func (m *tableSource) ValidateSettings(s *settings.Tree) error {
	cfg, err := settingsOf[tableSourceSettings](s)
	if err != nil {
		return err
	}
	_, _, err = compileTableSource(cfg)
	return err
}

func (m *tableSource) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[tableSourceSettings](s)
	if err != nil {
		return err
	}
	spec, rows, err := compileTableSource(cfg)
	if err != nil {
		return err
	}
	m.cfg, m.spec, m.rows = cfg, spec, rows
	return nil
}

func (m *tableSource) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

func compileTableSource(cfg tableSourceSettings) (table.Spec, [][]string, error) {
	spec, err := parseColumns(cfg.Columns)
	if err != nil {
		return table.Spec{}, nil, err
	}
	rows := make([][]string, 0, len(cfg.Rows))
	for i, line := range cfg.Rows {
		r := csv.NewReader(strings.NewReader(line))
		r.TrimLeadingSpace = true
		fields, err := r.Read()
		if err != nil {
			return table.Spec{}, nil, nferrors.InvalidSettingsf("rows[%d]: %v", i, err)
		}
		if _, err := parseRow(spec, rowKey(i), fields); err != nil {
			return table.Spec{}, nil, nferrors.InvalidSettingsf("rows[%d]: %v", i, err)
		}
		rows = append(rows, fields)
	}
	return spec, rows, nil
}

func (m *tableSource) Configure(context.Context, []port.Spec) ([]port.Spec, error) {
	if m.spec.NumColumns() == 0 {
		return nil, nferrors.NewNotConfigurableError("", "no columns configured")
	}
	return []port.Spec{m.spec}, nil
}

func (m *tableSource) Execute(exec *node.ExecutionContext, _ []port.Object) ([]port.Object, error) {
	repeat := m.cfg.Repeat
	if repeat == 0 {
		repeat = 1
	}
	total := repeat * len(m.rows)

	c := exec.CreateContainer(m.spec)
	index := 0
	for r := 0; r < repeat; r++ {
		for _, fields := range m.rows {
			if err := exec.CheckCanceled(); err != nil {
				return nil, err
			}
			row, err := parseRow(m.spec, rowKey(index), fields)
			if err != nil {
				return nil, err
			}
			if err := c.AddRow(row); err != nil {
				return nil, err
			}
			index++
			exec.SetProgressMessage(float64(index)/float64(total), fmt.Sprintf("Row %d of %d", index, total))
		}
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

func (m *tableSource) Reset() {}
