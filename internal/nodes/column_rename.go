package nodes

import (
	"context"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// ColumnRenameType is the type name of the column renamer.
const ColumnRenameType = "column_rename"

type columnRenameSettings struct {
	Rename []string `settings:"rename" validate:"required,min=1"`
}

type columnRename struct {
	cfg columnRenameSettings
}

// ColumnRename describes the column_rename node type. Each rename entry is
// "old=new". The output serves the input rows under the new names.
func ColumnRename() node.Descriptor {
	return node.Descriptor{
		Name:        ColumnRenameType,
		Version:     "1.0.0",
		Description: "Renames columns without copying rows",
		InPorts:     tablePorts,
		OutPorts:    tablePorts,
		Factory:     func() node.Model { return &columnRename{} },
	}
}

func (m *columnRename) ValidateSettings(s *settings.Tree) error {
	cfg, err := settingsOf[columnRenameSettings](s)
	if err != nil {
		return err
	}
	_, err = parseRenames(cfg.Rename)
	return err
}

func (m *columnRename) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[columnRenameSettings](s)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *columnRename) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

func parseRenames(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, entry := range entries {
		from, to, _ := strings.Cut(entry, "=")
		from, to = strings.TrimSpace(from), strings.TrimSpace(to)
		if from == "" || to == "" {
			return nil, nferrors.InvalidSettingsf("rename %q must look like old=new", entry)
		}
		if _, dup := out[from]; dup {
			return nil, nferrors.InvalidSettingsf("column %q is renamed twice", from)
		}
		out[from] = to
	}
	return out, nil
}

// renamed returns spec with the configured names. Domains are kept.
func (m *columnRename) renamed(spec table.Spec) (table.Spec, error) {
	renames, err := parseRenames(m.cfg.Rename)
	if err != nil {
		return table.Spec{}, err
	}
	cols := append([]table.Column(nil), spec.Columns...)
	for from, to := range renames {
		idx, ok := spec.Index(from)
		if !ok {
			return table.Spec{}, nferrors.InvalidSettingsf("column %q not in input", from)
		}
		cols[idx].Name = to
	}
	out, err := table.NewSpec(cols...)
	if err != nil {
		return table.Spec{}, nferrors.NewInvalidSettingsError("", "", err)
	}
	return out, nil
}

func (m *columnRename) Configure(_ context.Context, in []port.Spec) ([]port.Spec, error) {
	spec, err := inputSpec(in, 0)
	if err != nil {
		return nil, err
	}
	out, err := m.renamed(spec)
	if err != nil {
		return nil, err
	}
	return []port.Spec{out.WithoutDomain()}, nil
}

func (m *columnRename) Execute(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error) {
	src, err := inputTable(in, 0)
	if err != nil {
		return nil, err
	}
	spec, err := m.renamed(src.DataSpec())
	if err != nil {
		return nil, err
	}
	renamed, err := exec.CreateSpecReplacerTable(src, spec)
	if err != nil {
		return nil, err
	}
	exec.SetProgress(1)
	return []port.Object{renamed}, nil
}

func (m *columnRename) Reset() {}
