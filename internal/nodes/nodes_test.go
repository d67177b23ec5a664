package nodes

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

func newNode(t *testing.T, id, typeName string, values map[string]any, opts ...node.Option) *node.Node {
	t.Helper()
	n, err := NewRegistry().Create(typeName, id, opts...)
	require.NoError(t, err)
	tree, err := settings.FromMap(values)
	require.NoError(t, err)
	require.NoError(t, n.SetSettings(tree))
	return n
}

func quietMonitor() *progress.Root {
	return progress.NewMonitor(progress.WithNotifier(progress.NewNotifier(time.Hour, nil)))
}

func run(t *testing.T, nodes ...*node.Node) {
	t.Helper()
	for _, n := range nodes {
		require.NoError(t, n.Configure(context.Background()), n.String())
	}
	for _, n := range nodes {
		require.NoError(t, n.Execute(context.Background(), quietMonitor()), n.String())
	}
}

func connect(t *testing.T, from, to *node.Node) {
	t.Helper()
	require.NoError(t, node.Connect(from, 0, to, 0))
}

func output(t *testing.T, n *node.Node) *table.BufferedDataTable {
	t.Helper()
	out, err := n.OutPort(0)
	require.NoError(t, err)
	tbl, ok := out.Object().(*table.BufferedDataTable)
	require.True(t, ok)
	return tbl
}

func rows(t *testing.T, tbl table.Table) [][]any {
	t.Helper()
	it, err := tbl.Rows()
	require.NoError(t, err)
	all, err := table.Collect(it)
	require.NoError(t, err)
	out := make([][]any, len(all))
	for i, r := range all {
		out[i] = r.Cells
	}
	return out
}

func people(t *testing.T) *node.Node {
	return newNode(t, "people", TableSourceType, map[string]any{
		"columns": []any{"id:int", "name", "score:double", "active:bool"},
		"rows": []any{
			"1, alice, 9.5, true",
			"2, bob, , false",
			"3, carol, 7.25, true",
		},
	})
}

func TestTableSourceEmitsTypedRows(t *testing.T) {
	t.Parallel()

	src := people(t)
	run(t, src)

	tbl := output(t, src)
	require.Equal(t, [][]any{
		{int64(1), "alice", 9.5, true},
		{int64(2), "bob", nil, false},
		{int64(3), "carol", 7.25, true},
	}, rows(t, tbl))
	require.Equal(t, []string{"id", "name", "score", "active"}, tbl.DataSpec().Names())
	require.Equal(t, int64(3), tbl.DataSpec().Columns[0].Domain.Max)
}

func TestTableSourceRejectsBadRowsAtSettingsTime(t *testing.T) {
	t.Parallel()

	n, err := NewRegistry().Create(TableSourceType, "src")
	require.NoError(t, err)

	tree, err := settings.FromMap(map[string]any{
		"columns": []any{"id:int"},
		"rows":    []any{"x"},
	})
	require.NoError(t, err)
	err = n.SetSettings(tree)
	require.ErrorIs(t, err, nferrors.ErrInvalidSettings)
	require.Contains(t, err.Error(), "rows[0]")

	tree, err = settings.FromMap(map[string]any{"columns": []any{"id:decimal"}})
	require.NoError(t, err)
	require.ErrorIs(t, n.SetSettings(tree), nferrors.ErrInvalidSettings)

	tree, err = settings.FromMap(map[string]any{"columns": []any{"id"}, "typo": true})
	require.NoError(t, err)
	require.ErrorIs(t, n.SetSettings(tree), nferrors.ErrInvalidSettings)
}

func TestTableSourceSpillsWhenRepeated(t *testing.T) {
	t.Parallel()

	store, err := table.NewFileStore(t.TempDir(), nil)
	require.NoError(t, err)
	defer store.Close()

	src := newNode(t, "big", TableSourceType, map[string]any{
		"columns": []any{"n:int"},
		"rows":    []any{"1", "2"},
		"repeat":  500,
	}, node.WithSpillStore(store), node.WithMaxCellsInMemory(100))
	run(t, src)

	tbl := output(t, src)
	require.Equal(t, 1000, tbl.Size())
	require.False(t, tbl.InMemory())

	saved, err := src.Settings().Int("repeat")
	require.NoError(t, err)
	require.EqualValues(t, 500, saved)
}

func TestRowFilterOperators(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		column   string
		operator string
		value    any
		want     []int64
	}{
		{name: "greater", column: "score", operator: "gt", value: 8, want: []int64{1}},
		{name: "less or equal", column: "id", operator: "le", value: "2", want: []int64{1, 2}},
		{name: "not equal", column: "name", operator: "ne", value: "bob", want: []int64{1, 3}},
		{name: "contains", column: "name", operator: "contains", value: "ar", want: []int64{3}},
		{name: "missing", column: "score", operator: "missing", want: []int64{2}},
		{name: "present", column: "score", operator: "present", want: []int64{1, 3}},
		{name: "bool", column: "active", operator: "eq", value: "true", want: []int64{1, 3}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := map[string]any{"column": tc.column, "operator": tc.operator}
			if tc.value != nil {
				cfg["value"] = tc.value
			}
			src := people(t)
			filter := newNode(t, "filter", RowFilterType, cfg)
			connect(t, src, filter)
			run(t, src, filter)

			var ids []int64
			for _, r := range rows(t, output(t, filter)) {
				ids = append(ids, r[0].(int64))
			}
			require.Equal(t, tc.want, ids)
		})
	}
}

func TestRowFilterConfigureChecksColumn(t *testing.T) {
	t.Parallel()

	src := people(t)
	filter := newNode(t, "filter", RowFilterType, map[string]any{"column": "age", "operator": "gt", "value": 1})
	require.NoError(t, src.Configure(context.Background()))

	err := node.Connect(src, 0, filter, 0)
	require.NoError(t, err)
	require.Equal(t, node.Idle, filter.State())
	require.Contains(t, filter.Message(), `column "age" not in input`)

	contains := newNode(t, "contains", RowFilterType, map[string]any{"column": "id", "operator": "contains", "value": "1"})
	require.NoError(t, node.Connect(src, 0, contains, 0))
	require.Equal(t, node.Idle, contains.State())
}

func TestRowFilterWarnsWhenNothingMatches(t *testing.T) {
	t.Parallel()

	src := people(t)
	filter := newNode(t, "filter", RowFilterType, map[string]any{"column": "id", "operator": "gt", "value": 100})
	connect(t, src, filter)
	run(t, src, filter)

	require.Equal(t, 0, output(t, filter).Size())
	require.Contains(t, filter.Warning(), "no row of 3 matched")
}

func TestColumnFilterIncludeAndExclude(t *testing.T) {
	t.Parallel()

	src := people(t)
	include := newNode(t, "include", ColumnFilterType, map[string]any{"include": []any{"name", "id"}})
	exclude := newNode(t, "exclude", ColumnFilterType, map[string]any{"exclude": []any{"score", "active"}})
	connect(t, src, include)
	connect(t, src, exclude)
	run(t, src, include, exclude)

	in := output(t, include)
	require.Equal(t, []string{"name", "id"}, in.DataSpec().Names())
	require.Equal(t, []any{"alice", int64(1)}, rows(t, in)[0])

	ex := output(t, exclude)
	require.Equal(t, []string{"id", "name"}, ex.DataSpec().Names())
	require.Equal(t, 3, ex.Size())
}

func TestColumnFilterSettingsAreExclusive(t *testing.T) {
	t.Parallel()

	n, err := NewRegistry().Create(ColumnFilterType, "cols")
	require.NoError(t, err)

	both, err := settings.FromMap(map[string]any{"include": []any{"a"}, "exclude": []any{"b"}})
	require.NoError(t, err)
	require.ErrorIs(t, n.SetSettings(both), nferrors.ErrInvalidSettings)

	require.ErrorIs(t, n.SetSettings(settings.New()), nferrors.ErrInvalidSettings)
}

func TestColumnRenameKeepsRowsAndDomains(t *testing.T) {
	t.Parallel()

	src := people(t)
	rename := newNode(t, "rename", ColumnRenameType, map[string]any{"rename": []any{"score=points", "name = who"}})
	connect(t, src, rename)
	run(t, src, rename)

	in, out := output(t, src), output(t, rename)
	require.NotEqual(t, in.BufferID(), out.BufferID())
	require.Equal(t, []string{"id", "who", "points", "active"}, out.DataSpec().Names())
	require.Equal(t, rows(t, in), rows(t, out))
	require.Equal(t, in.DataSpec().Columns[2].Domain, out.DataSpec().Columns[2].Domain)
	require.Same(t, rename, out.Owner())

	rename.Reset()
	require.True(t, out.IsCleared())
	require.False(t, in.IsCleared())
}

func TestColumnRenameRejectsBadEntries(t *testing.T) {
	t.Parallel()

	n, err := NewRegistry().Create(ColumnRenameType, "rename")
	require.NoError(t, err)
	for _, entries := range [][]any{{"score"}, {"a=b", "a=c"}, {}} {
		s, err := settings.FromMap(map[string]any{"rename": entries})
		require.NoError(t, err)
		require.ErrorIs(t, n.SetSettings(s), nferrors.ErrInvalidSettings, entries)
	}

	src := people(t)
	require.NoError(t, src.Configure(context.Background()))
	clash := newNode(t, "clash", ColumnRenameType, map[string]any{"rename": []any{"id=name"}})
	connect(t, src, clash)
	require.ErrorContains(t, clash.Configure(context.Background()), "duplicate column name")
	missing := newNode(t, "missing", ColumnRenameType, map[string]any{"rename": []any{"age=years"}})
	connect(t, src, missing)
	require.ErrorContains(t, missing.Configure(context.Background()), `column "age" not in input`)
}

func TestCSVRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	out := filepath.Join(dir, "people.csv")

	src := people(t)
	writer := newNode(t, "writer", CSVWriterType, map[string]any{"path": out})
	connect(t, src, writer)
	run(t, src, writer)
	require.Equal(t, node.Executed, writer.State())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	require.Equal(t, "id,name,score,active\n1,alice,9.5,true\n2,bob,,false\n3,carol,7.25,true\n", string(data))

	reader := newNode(t, "reader", CSVReaderType, map[string]any{
		"path":    out,
		"columns": []any{"id:int", "name", "score:double", "active:bool"},
	})
	run(t, reader)
	require.Equal(t, rows(t, output(t, src)), rows(t, output(t, reader)))

	untyped := newNode(t, "untyped", CSVReaderType, map[string]any{"path": out})
	run(t, untyped)
	tbl := output(t, untyped)
	require.Equal(t, []string{"id", "name", "score", "active"}, tbl.DataSpec().Names())
	require.Equal(t, table.StringColumn, tbl.DataSpec().Columns[0].Type)

	again := newNode(t, "again", CSVWriterType, map[string]any{"path": out})
	src2 := people(t)
	require.NoError(t, src2.Configure(context.Background()))
	connect(t, src2, again)
	require.Equal(t, node.Configured, again.State())
	require.NoError(t, src2.Execute(context.Background(), quietMonitor()))
	err = again.Execute(context.Background(), quietMonitor())
	require.Error(t, err)
	require.Contains(t, err.Error(), "overwrite is off")
	require.Equal(t, node.Error, again.State())
}

func TestCSVReaderSkipsBadRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("n;label\n1;a\nx;b\n3;c\n"), 0o644))

	strict := newNode(t, "strict", CSVReaderType, map[string]any{
		"path": path, "delimiter": ";", "columns": []any{"n:int", "label"},
	})
	require.NoError(t, strict.Configure(context.Background()))
	require.Error(t, strict.Execute(context.Background(), quietMonitor()))

	lenient := newNode(t, "lenient", CSVReaderType, map[string]any{
		"path": path, "delimiter": ";", "columns": []any{"n:int", "label"}, "skip_bad_rows": true,
	})
	run(t, lenient)
	require.Equal(t, [][]any{{int64(1), "a"}, {int64(3), "c"}}, rows(t, output(t, lenient)))
	require.Equal(t, "skipped 1 malformed rows", lenient.Warning())
}

func TestCSVReaderConfigureNeedsFile(t *testing.T) {
	t.Parallel()

	n := newNode(t, "reader", CSVReaderType, map[string]any{"path": filepath.Join(t.TempDir(), "missing.csv")})
	err := n.Configure(context.Background())
	var ise *nferrors.InvalidSettingsError
	require.ErrorAs(t, err, &ise)
	require.Equal(t, "reader", ise.NodeID)
	require.Equal(t, node.Idle, n.State())
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.Len(t, reg.List(), 6)
	require.Error(t, Register(reg))
	require.NoError(t, Register(node.NewRegistry()))
}

func TestCSVEncodings(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "latin.csv")
	src := newNode(t, "src", TableSourceType, map[string]any{
		"columns": []any{"city"},
		"rows":    []any{"Montréal", "Québec"},
	})
	writer := newNode(t, "writer", CSVWriterType, map[string]any{"path": path, "encoding": "latin1"})
	connect(t, src, writer)
	run(t, src, writer)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "Montr\xe9al")

	reader := newNode(t, "reader", CSVReaderType, map[string]any{"path": path, "encoding": "ISO-8859-1"})
	run(t, reader)
	require.Equal(t, [][]any{{"Montréal"}, {"Québec"}}, rows(t, output(t, reader)))

	n, err := NewRegistry().Create(CSVReaderType, "bad")
	require.NoError(t, err)
	tree, err := settings.FromMap(map[string]any{"path": path, "encoding": "ebcdic"})
	require.NoError(t, err)
	require.ErrorIs(t, n.SetSettings(tree), nferrors.ErrInvalidSettings)
}
