// Package nodes provides the built-in table node types.
package nodes

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// Descriptors returns every built-in node type.
func Descriptors() []node.Descriptor {
	return []node.Descriptor{
		TableSource(),
		CSVReader(),
		RowFilter(),
		ColumnFilter(),
		ColumnRename(),
		CSVWriter(),
	}
}

// Register adds every built-in node type to reg.
func Register(reg *node.Registry) error {
	for _, desc := range Descriptors() {
		if err := reg.Register(desc); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding the built-in node types.
func NewRegistry() *node.Registry {
	reg := node.NewRegistry()
	for _, desc := range Descriptors() {
		reg.MustRegister(desc)
	}
	return reg
}

var tablePorts = []*port.Type{table.PortType}

// settingsOf decodes s into a fresh T. It backs ValidateSettings so that a
// failed validation never touches the model.
func settingsOf[T any](s *settings.Tree) (T, error) {
	var out T
	err := settings.Decode(s, &out)
	return out, err
}

func saveSettings(s *settings.Tree, in any) {
	tree, err := settings.Encode(in)
	if err != nil {
		return
	}
	for _, k := range tree.Keys() {
		copyKey(s, tree, k)
	}
}

func copyKey(dst, src *settings.Tree, key string) {
	kind, ok := src.Kind(key)
	if !ok {
		return
	}
	switch kind {
	case settings.KindInt:
		v, _ := src.Int(key)
		dst.SetInt(key, v)
	case settings.KindDouble:
		v, _ := src.Double(key)
		dst.SetDouble(key, v)
	case settings.KindString:
		v, _ := src.String(key)
		dst.SetString(key, v)
	case settings.KindBool:
		v, _ := src.Bool(key)
		dst.SetBool(key, v)
	case settings.KindStrings:
		v, _ := src.Strings(key)
		dst.SetStrings(key, v)
	}
}

// parseColumns reads "name:type" declarations. A bare name is a string column.
func parseColumns(decls []string) (table.Spec, error) {
	cols := make([]table.Column, 0, len(decls))
	for _, decl := range decls {
		name, typeName, found := strings.Cut(decl, ":")
		ct := table.StringColumn
		if found {
			parsed, err := table.ParseColumnType(typeName)
			if err != nil {
				return table.Spec{}, nferrors.InvalidSettingsf("column %q: %v", decl, err)
			}
			ct = parsed
		}
		cols = append(cols, table.Col(strings.TrimSpace(name), ct))
	}
	spec, err := table.NewSpec(cols...)
	if err != nil {
		return table.Spec{}, nferrors.NewInvalidSettingsError("", "", err)
	}
	return spec, nil
}

// parseCell converts text to a cell of type t. Empty text is a missing cell.
func parseCell(t table.ColumnType, text string) (any, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	switch t {
	case table.IntColumn:
		return strconv.ParseInt(text, 10, 64)
	case table.DoubleColumn:
		return strconv.ParseFloat(text, 64)
	case table.BoolColumn:
		return strconv.ParseBool(text)
	default:
		return text, nil
	}
}

func parseRow(spec table.Spec, key string, fields []string) (table.Row, error) {
	if len(fields) != spec.NumColumns() {
		return table.Row{}, fmt.Errorf("row %s has %d fields, expected %d", key, len(fields), spec.NumColumns())
	}
	cells := make([]any, len(fields))
	for i, f := range fields {
		cell, err := parseCell(spec.Columns[i].Type, f)
		if err != nil {
			return table.Row{}, fmt.Errorf("row %s column %q: %w", key, spec.Columns[i].Name, err)
		}
		cells[i] = cell
	}
	return table.NewRow(key, cells...), nil
}

func formatCell(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func inputTable(in []port.Object, i int) (*table.BufferedDataTable, error) {
	t, ok := in[i].(*table.BufferedDataTable)
	if !ok {
		return nil, nferrors.IllegalStatef("input %d is %T, not a table", i, in[i])
	}
	return t, nil
}

func inputSpec(in []port.Spec, i int) (table.Spec, error) {
	s, ok := in[i].(table.Spec)
	if !ok {
		return table.Spec{}, nferrors.NewNotConfigurableError("", fmt.Sprintf("input %d is not a table", i))
	}
	return s, nil
}

func rowKey(i int) string { return fmt.Sprintf("Row%d", i) }
