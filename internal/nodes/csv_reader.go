package nodes

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	"github.com/alexisbeaulieu97/nodeflow/internal/validation"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// CSVReaderType is the type name of the CSV reader.
const CSVReaderType = "csv_reader"

type csvReaderSettings struct {
	Path      string   `settings:"path" validate:"required"`
	Delimiter string   `settings:"delimiter" validate:"omitempty,len=1"`
	NoHeader  bool     `settings:"no_header"`
	Columns   []string `settings:"columns"`
	SkipBad   bool     `settings:"skip_bad_rows"`
	Encoding  string   `settings:"encoding"`
}

type csvReader struct {
	cfg csvReaderSettings
}

// CSVReader describes the csv_reader node type. Without declared columns the
// header row names string columns.
func CSVReader() node.Descriptor {
	return node.Descriptor{
		Name:        CSVReaderType,
		Version:     "1.0.0",
		Description: "Reads a CSV file into a table",
		OutPorts:    tablePorts,
		Factory:     func() node.Model { return &csvReader{} },
	}
}

func (m *csvReader) ValidateSettings(s *settings.Tree) error {
	cfg, err := settingsOf[csvReaderSettings](s)
	if err != nil {
		return err
	}
	if _, err := charset(cfg.Encoding); err != nil {
		return err
	}
	if cfg.NoHeader && len(cfg.Columns) == 0 {
		return nferrors.InvalidSettingsf("columns are required when no_header is set")
	}
	if len(cfg.Columns) > 0 {
		if _, err := parseColumns(cfg.Columns); err != nil {
			return err
		}
	}
	return nil
}

func (m *csvReader) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[csvReaderSettings](s)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *csvReader) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

func (m *csvReader) open() (*os.File, *csv.Reader, error) {
	enc, err := charset(m.cfg.Encoding)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(m.cfg.Path)
	if err != nil {
		return nil, nil, err
	}
	r := csv.NewReader(decodeFrom(bufio.NewReader(f), enc))
	r.TrimLeadingSpace = true
	if m.cfg.Delimiter != "" {
		r.Comma = rune(m.cfg.Delimiter[0])
	}
	return f, r, nil
}

// spec derives the output spec, reading the header when no columns are
// declared.
func (m *csvReader) spec(r *csv.Reader) (table.Spec, error) {
	var header []string
	if !m.cfg.NoHeader {
		h, err := r.Read()
		if err != nil {
			return table.Spec{}, fmt.Errorf("failed to read header of %s: %w", m.cfg.Path, err)
		}
		header = h
	}
	if len(m.cfg.Columns) > 0 {
		spec, err := parseColumns(m.cfg.Columns)
		if err != nil {
			return table.Spec{}, err
		}
		if header != nil && len(header) != spec.NumColumns() {
			return table.Spec{}, nferrors.InvalidSettingsf("%s has %d columns, %d declared", m.cfg.Path, len(header), spec.NumColumns())
		}
		return spec, nil
	}
	return parseColumns(header)
}

func (m *csvReader) Configure(context.Context, []port.Spec) ([]port.Spec, error) {
	if err := validation.CheckFileExists(m.cfg.Path); err != nil {
		return nil, nferrors.NewInvalidSettingsError("", "", err)
	}
	f, r, err := m.open()
	if err != nil {
		return nil, nferrors.NewInvalidSettingsError("", "", err)
	}
	defer f.Close()
	spec, err := m.spec(r)
	if err != nil {
		return nil, err
	}
	return []port.Spec{spec}, nil
}

func (m *csvReader) Execute(exec *node.ExecutionContext, _ []port.Object) ([]port.Object, error) {
	f, r, err := m.open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	spec, err := m.spec(r)
	if err != nil {
		return nil, err
	}

	c := exec.CreateContainer(spec)
	skipped := 0
	for {
		if err := exec.CheckCanceled(); err != nil {
			return nil, err
		}
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		var row table.Row
		if err == nil {
			row, err = parseRow(spec, rowKey(c.Size()), fields)
		}
		if err != nil {
			if m.cfg.SkipBad {
				skipped++
				continue
			}
			return nil, fmt.Errorf("%s: %w", m.cfg.Path, err)
		}
		if err := c.AddRow(row); err != nil {
			return nil, err
		}
		if size := info.Size(); size > 0 {
			done := min(1, float64(r.InputOffset())/float64(size))
			exec.SetProgressMessage(done, fmt.Sprintf("Reading row #%d", c.Size()))
		}
	}
	if skipped > 0 {
		exec.SetWarning(fmt.Sprintf("skipped %d malformed rows", skipped))
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

func (m *csvReader) Reset() {}
