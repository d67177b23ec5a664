// Package persist saves and loads port content and node settings. The core
// only depends on the Persistor interface; DirPersistor is the directory
// layout used by the CLI.
package persist

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/progress"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

const (
	SpecFile     = "spec.json"
	SettingsFile = "settings.json"
	TableFile    = "table.json"
	DataFile     = "data.bin"
)

var codec = jsoniter.Config{
	IndentionStep:          2,
	SortMapKeys:            true,
	UseNumber:              true,
	ValidateJsonRawMessage: true,
}.Froze()

// Persistor is the boundary through which port content and settings are
// stored. Object I/O reports progress on mon and honors its cancellation.
type Persistor interface {
	SaveSpec(dir string, spec port.Spec) error
	LoadSpec(dir string) (port.Spec, error)
	SaveObject(dir string, obj port.Object, mon progress.Monitor) error
	LoadObject(dir string, mon progress.Monitor, opts ...table.ContainerOption) (port.Object, error)
	HasObject(dir string) bool
	SaveSettings(dir string, s *settings.Tree) error
	LoadSettings(dir string) (*settings.Tree, error)
}

// PortDir returns the directory holding the content of out-port index of the
// node saved in nodeDir.
func PortDir(nodeDir string, index int) string {
	return filepath.Join(nodeDir, fmt.Sprintf("port_%d", index))
}

// DirPersistor stores each item as a file in the given directory.
type DirPersistor struct {
	log *logger.Logger
}

// NewDirPersistor returns a DirPersistor.
func NewDirPersistor(log *logger.Logger) *DirPersistor {
	return &DirPersistor{log: log}
}

var _ Persistor = (*DirPersistor)(nil)

type tableHeader struct {
	Spec table.Spec `json:"spec"`
	Rows int        `json:"rows"`
}

// SaveSpec writes spec to spec.json. Only table specs are supported.
func (p *DirPersistor) SaveSpec(dir string, spec port.Spec) error {
	ts, ok := spec.(table.Spec)
	if !ok {
		return nferrors.IllegalStatef("cannot persist spec of type %T", spec)
	}
	return writeJSON(filepath.Join(dir, SpecFile), ts)
}

// LoadSpec reads spec.json.
func (p *DirPersistor) LoadSpec(dir string) (port.Spec, error) {
	var ts table.Spec
	if err := readJSON(filepath.Join(dir, SpecFile), &ts); err != nil {
		return nil, err
	}
	restored, err := restoreDomains(ts)
	if err != nil {
		return nil, err
	}
	return restored, nil
}

// SaveObject writes a table's header and rows.
func (p *DirPersistor) SaveObject(dir string, obj port.Object, mon progress.Monitor) error {
	t, ok := obj.(table.Table)
	if !ok {
		return nferrors.IllegalStatef("cannot persist object of type %T", obj)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, TableFile), tableHeader{Spec: t.DataSpec(), Rows: t.Size()}); err != nil {
		return err
	}

	it, err := t.Rows()
	if err != nil {
		return err
	}
	tracked := &progressIterator{RowIterator: it, mon: mon, total: t.Size(), verb: "Saving"}
	written, err := writeAtomic(filepath.Join(dir, DataFile), func(w *bufio.Writer) (int, error) {
		return table.WriteRows(w, tracked)
	})
	if err != nil {
		return err
	}
	p.log.WithFields(map[string]any{"buffer_id": t.BufferID(), "rows": written, "dir": dir}).Debug("table saved")
	return nil
}

// LoadObject rebuilds a saved table through a container so the result is
// registered like a computed table. opts configure that container.
func (p *DirPersistor) LoadObject(dir string, mon progress.Monitor, opts ...table.ContainerOption) (port.Object, error) {
	var header tableHeader
	if err := readJSON(filepath.Join(dir, TableFile), &header); err != nil {
		return nil, err
	}
	spec, err := restoreDomains(header.Spec)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filepath.Join(dir, DataFile))
	if err != nil {
		return nil, fmt.Errorf("failed to open table data: %w", err)
	}
	defer f.Close()

	c := table.NewContainer(spec, opts...)
	it := &progressIterator{RowIterator: table.ReadRows(bufio.NewReader(f), spec), mon: mon, total: header.Rows, verb: "Loading"}
	defer it.Close()
	for it.Next() {
		if err := c.AddRow(it.Row()); err != nil {
			c.Discard()
			return nil, err
		}
	}
	if err := it.Err(); err != nil {
		c.Discard()
		return nil, err
	}
	if c.Size() != header.Rows {
		c.Discard()
		return nil, fmt.Errorf("table data holds %d rows, header says %d", c.Size(), header.Rows)
	}
	if _, err := c.Close(); err != nil {
		c.Discard()
		return nil, err
	}
	return c.Table()
}

// HasObject reports whether dir holds a complete saved table.
func (p *DirPersistor) HasObject(dir string) bool {
	for _, name := range []string{TableFile, DataFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return false
		}
	}
	return true
}

// SaveSettings writes s to settings.json.
func (p *DirPersistor) SaveSettings(dir string, s *settings.Tree) error {
	if s == nil {
		s = settings.New()
	}
	return writeJSON(filepath.Join(dir, SettingsFile), s.ToMap())
}

// LoadSettings reads settings.json. Integers stay integers.
func (p *DirPersistor) LoadSettings(dir string) (*settings.Tree, error) {
	var raw map[string]any
	if err := readJSON(filepath.Join(dir, SettingsFile), &raw); err != nil {
		return nil, err
	}
	return settings.FromMap(raw)
}

// progressIterator reports per-row progress and stops on cancellation.
type progressIterator struct {
	table.RowIterator
	mon   progress.Monitor
	total int
	verb  string
	count int
	err   error
}

func (it *progressIterator) Next() bool {
	if it.mon != nil {
		if err := it.mon.CheckCanceled(); err != nil {
			it.err = err
			return false
		}
	}
	if !it.RowIterator.Next() {
		return false
	}
	it.count++
	if it.mon != nil && it.total > 0 {
		it.mon.SetProgressMessage(float64(it.count)/float64(it.total), fmt.Sprintf("%s row #%d", it.verb, it.count))
	}
	return true
}

func (it *progressIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.RowIterator.Err()
}

// restoreDomains converts JSON numbers in domains back to cell types.
func restoreDomains(spec table.Spec) (table.Spec, error) {
	for i := range spec.Columns {
		col := &spec.Columns[i]
		if col.Domain == nil {
			continue
		}
		lo, err := restoreBound(col.Type, col.Domain.Min)
		if err != nil {
			return table.Spec{}, fmt.Errorf("column %q domain: %w", col.Name, err)
		}
		hi, err := restoreBound(col.Type, col.Domain.Max)
		if err != nil {
			return table.Spec{}, fmt.Errorf("column %q domain: %w", col.Name, err)
		}
		col.Domain.Min, col.Domain.Max = lo, hi
	}
	return spec, nil
}

func restoreBound(t table.ColumnType, v any) (any, error) {
	n, ok := v.(json.Number)
	if !ok {
		return v, nil
	}
	if t == table.IntColumn {
		return n.Int64()
	}
	return n.Float64()
}

func writeJSON(path string, v any) error {
	data, err := codec.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	_, err = writeAtomic(path, func(w *bufio.Writer) (int, error) {
		return w.Write(data)
	})
	return err
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := codec.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeAtomic writes through a temporary file renamed into place.
func writeAtomic(path string, write func(w *bufio.Writer) (int, error)) (int, error) {
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to write temporary file: %w", err)
	}
	w := bufio.NewWriter(f)
	n, err := write(w)
	if err == nil {
		err = w.Flush()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return n, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	return n, nil
}
