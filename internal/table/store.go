package table

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
)

// SpillStore receives rows that do not fit a container's memory budget.
// Every buffer ID is written once and read any number of times.
type SpillStore interface {
	Create(id int64) (SpillWriter, error)
	Open(id int64, spec Spec) (RowIterator, error)
	Remove(id int64) error
	Close() error
}

// SpillWriter appends rows of one buffer. Close must be called before the
// buffer can be opened.
type SpillWriter interface {
	Write(row Row) error
	Close() error
}

// FileStore writes one snappy-framed file per buffer.
type FileStore struct {
	dir     string
	ownsDir bool
	log     *logger.Logger
}

// NewFileStore creates a store in dir. An empty dir creates a private
// temporary directory that Close removes.
func NewFileStore(dir string, log *logger.Logger) (*FileStore, error) {
	owns := false
	if dir == "" {
		tmp, err := os.MkdirTemp("", "nodeflow-spill-")
		if err != nil {
			return nil, fmt.Errorf("create spill directory: %w", err)
		}
		dir, owns = tmp, true
	} else if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spill directory: %w", err)
	}
	return &FileStore{dir: dir, ownsDir: owns, log: log}, nil
}

// Dir returns the directory holding the buffer files.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(id int64) string {
	return filepath.Join(s.dir, fmt.Sprintf("buffer-%d.bin", id))
}

// Create implements SpillStore.
func (s *FileStore) Create(id int64) (SpillWriter, error) {
	f, err := os.Create(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("create spill file for buffer %d: %w", id, err)
	}
	return &fileWriter{id: id, f: f, enc: newRowEncoder(f), log: s.log}, nil
}

// Open implements SpillStore.
func (s *FileStore) Open(id int64, spec Spec) (RowIterator, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, fmt.Errorf("open spill file for buffer %d: %w", id, err)
	}
	return newStreamIterator(f, spec, f), nil
}

// Remove implements SpillStore. Removing an unknown buffer is not an error.
func (s *FileStore) Remove(id int64) error {
	err := os.Remove(s.path(id))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Close removes the directory when the store created it.
func (s *FileStore) Close() error {
	if !s.ownsDir {
		return nil
	}
	return os.RemoveAll(s.dir)
}

type fileWriter struct {
	id   int64
	f    *os.File
	enc  *rowEncoder
	rows int
	log  *logger.Logger
	once sync.Once
	err  error
}

func (w *fileWriter) Write(row Row) error {
	if err := w.enc.encode(row); err != nil {
		return fmt.Errorf("write buffer %d: %w", w.id, err)
	}
	w.rows++
	return nil
}

func (w *fileWriter) Close() error {
	w.once.Do(func() {
		if err := w.enc.finish(); err != nil {
			w.err = errors.Join(err, w.f.Close())
			return
		}
		if info, err := w.f.Stat(); err == nil {
			w.log.WithFields(map[string]any{
				"buffer_id": w.id,
				"rows":      w.rows,
				"size":      humanize.Bytes(uint64(info.Size())),
			}).Debug("spilled buffer to disk")
		}
		w.err = w.f.Close()
	})
	return w.err
}

var (
	defaultStoreOnce sync.Once
	defaultStore     SpillStore
	defaultStoreErr  error
)

// DefaultSpillStore returns a process-wide file store in a temporary
// directory. It backs containers created without an explicit store.
func DefaultSpillStore() (SpillStore, error) {
	defaultStoreOnce.Do(func() {
		defaultStore, defaultStoreErr = NewFileStore("", nil)
	})
	return defaultStore, defaultStoreErr
}
