package table

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"

	"github.com/alexisbeaulieu97/nodeflow/internal/logger"
)

// BadgerStore keeps spilled rows in a badger database keyed by buffer ID and
// row index, so rows of one buffer iterate in insertion order.
type BadgerStore struct {
	db  *badger.DB
	log *logger.Logger
}

// NewBadgerStore opens a store at dir. An empty dir opens an in-memory
// database.
func NewBadgerStore(dir string, log *logger.Logger) (*BadgerStore, error) {
	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir)
	}
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	return &BadgerStore{db: db, log: log}, nil
}

func bufferPrefix(id int64) []byte {
	prefix := make([]byte, 8)
	binary.BigEndian.PutUint64(prefix, uint64(id))
	return prefix
}

func rowKey(id int64, index uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key, uint64(id))
	binary.BigEndian.PutUint64(key[8:], index)
	return key
}

// Create implements SpillStore.
func (s *BadgerStore) Create(id int64) (SpillWriter, error) {
	return &badgerWriter{id: id, batch: s.db.NewWriteBatch(), log: s.log}, nil
}

// Open implements SpillStore.
func (s *BadgerStore) Open(id int64, spec Spec) (RowIterator, error) {
	txn := s.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = bufferPrefix(id)
	it := txn.NewIterator(opts)
	it.Seek(opts.Prefix)
	return &badgerIterator{txn: txn, it: it, prefix: opts.Prefix, spec: spec, first: true}, nil
}

// Remove implements SpillStore.
func (s *BadgerStore) Remove(id int64) error {
	return s.db.DropPrefix(bufferPrefix(id))
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

type badgerWriter struct {
	id     int64
	batch  *badger.WriteBatch
	next   uint64
	log    *logger.Logger
	closed bool
}

func (w *badgerWriter) Write(row Row) error {
	value, err := marshalRow(row)
	if err != nil {
		return fmt.Errorf("write buffer %d: %w", w.id, err)
	}
	if err := w.batch.Set(rowKey(w.id, w.next), value); err != nil {
		return fmt.Errorf("write buffer %d: %w", w.id, err)
	}
	w.next++
	return nil
}

func (w *badgerWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if err := w.batch.Flush(); err != nil {
		return fmt.Errorf("flush buffer %d: %w", w.id, err)
	}
	w.log.WithFields(map[string]any{"buffer_id": w.id, "rows": w.next}).Debug("spilled buffer to badger")
	return nil
}

type badgerIterator struct {
	txn    *badger.Txn
	it     *badger.Iterator
	prefix []byte
	spec   Spec
	first  bool
	row    Row
	err    error
	closed bool
}

func (b *badgerIterator) Next() bool {
	if b.closed || b.err != nil {
		return false
	}
	if b.first {
		b.first = false
	} else {
		b.it.Next()
	}
	if !b.it.ValidForPrefix(b.prefix) {
		return false
	}
	value, err := b.it.Item().ValueCopy(nil)
	if err != nil {
		b.err = err
		return false
	}
	row, err := unmarshalRow(value, b.spec)
	if err != nil {
		b.err = err
		return false
	}
	b.row = row
	return true
}

func (b *badgerIterator) Row() Row   { return b.row }
func (b *badgerIterator) Err() error { return b.err }

func (b *badgerIterator) Close() error {
	if b.closed {
		return nil
	}
	b.closed = true
	b.it.Close()
	b.txn.Discard()
	return nil
}
