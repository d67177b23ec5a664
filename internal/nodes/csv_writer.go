package nodes

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"

	"github.com/alexisbeaulieu97/nodeflow/internal/node"
	"github.com/alexisbeaulieu97/nodeflow/internal/port"
	"github.com/alexisbeaulieu97/nodeflow/internal/settings"
	"github.com/alexisbeaulieu97/nodeflow/internal/table"
	"github.com/alexisbeaulieu97/nodeflow/internal/validation"
	nferrors "github.com/alexisbeaulieu97/nodeflow/pkg/errors"
)

// CSVWriterType is the type name of the CSV writer.
const CSVWriterType = "csv_writer"

type csvWriterSettings struct {
	Path      string `settings:"path" validate:"required"`
	Delimiter string `settings:"delimiter" validate:"omitempty,len=1"`
	NoHeader  bool   `settings:"no_header"`
	Overwrite bool   `settings:"overwrite"`
	Encoding  string `settings:"encoding"`
}

type csvWriter struct {
	cfg csvWriterSettings
}

// CSVWriter describes the csv_writer node type, a sink without out-ports.
func CSVWriter() node.Descriptor {
	return node.Descriptor{
		Name:        CSVWriterType,
		Version:     "1.0.0",
		Description: "Writes a table to a CSV file",
		InPorts:     tablePorts,
		Factory:     func() node.Model { return &csvWriter{} },
	}
}

func (m *csvWriter) ValidateSettings(s *settings.Tree) error {
	cfg, err := settingsOf[csvWriterSettings](s)
	if err != nil {
		return err
	}
	_, err = charset(cfg.Encoding)
	return err
}

func (m *csvWriter) LoadSettings(s *settings.Tree) error {
	cfg, err := settingsOf[csvWriterSettings](s)
	if err != nil {
		return err
	}
	m.cfg = cfg
	return nil
}

func (m *csvWriter) SaveSettings(s *settings.Tree) { saveSettings(s, m.cfg) }

func (m *csvWriter) checkTarget() error {
	if err := validation.CheckWritableTarget(m.cfg.Path); err != nil {
		return nferrors.NewInvalidSettingsError("", "", err)
	}
	return nil
}

func (m *csvWriter) Configure(_ context.Context, in []port.Spec) ([]port.Spec, error) {
	if _, err := inputSpec(in, 0); err != nil {
		return nil, err
	}
	if err := m.checkTarget(); err != nil {
		return nil, err
	}
	return []port.Spec{}, nil
}

func (m *csvWriter) Execute(exec *node.ExecutionContext, in []port.Object) ([]port.Object, error) {
	src, err := inputTable(in, 0)
	if err != nil {
		return nil, err
	}
	if err := m.checkTarget(); err != nil {
		return nil, err
	}
	if !m.cfg.Overwrite {
		if _, err := os.Stat(m.cfg.Path); err == nil {
			return nil, fmt.Errorf("%s exists and overwrite is off", m.cfg.Path)
		}
	}

	tmpPath := m.cfg.Path + ".tmp"
	if err := m.write(exec, src, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, m.cfg.Path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temporary file: %w", err)
	}
	exec.Logger().WithFields(map[string]any{"path": m.cfg.Path, "rows": src.Size()}).Info("table written")
	return []port.Object{}, nil
}

func (m *csvWriter) write(exec *node.ExecutionContext, src table.Table, path string) (err error) {
	enc, err := charset(m.cfg.Encoding)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); err == nil {
			err = closeErr
		}
	}()

	buf := bufio.NewWriter(f)
	out := encodeTo(buf, enc)
	w := csv.NewWriter(out)
	if m.cfg.Delimiter != "" {
		w.Comma = rune(m.cfg.Delimiter[0])
	}
	header := src.DataSpec().Names()
	if !m.cfg.NoHeader {
		if err := w.Write(header); err != nil {
			return err
		}
	}

	it, err := src.Rows()
	if err != nil {
		return err
	}
	defer it.Close()

	total, count := src.Size(), 0
	record := make([]string, len(header))
	for it.Next() {
		if err := exec.CheckCanceled(); err != nil {
			return err
		}
		for i, cell := range it.Row().Cells {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return err
		}
		count++
		if total > 0 {
			exec.SetProgressMessage(float64(count)/float64(total), fmt.Sprintf("Writing row #%d", count))
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return buf.Flush()
}

func (m *csvWriter) Reset() {}
