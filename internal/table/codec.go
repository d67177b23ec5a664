package table

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"
)

// Rows are encoded as msgpack records: a continuation flag, the row key, and
// the cell array. A false flag terminates the stream. Streams are wrapped in
// snappy framing; single records stored in key-value backends use snappy
// block encoding.

type rowEncoder struct {
	sw  *snappy.Writer
	enc *msgpack.Encoder
}

func newRowEncoder(w io.Writer) *rowEncoder {
	sw := snappy.NewBufferedWriter(w)
	return &rowEncoder{sw: sw, enc: msgpack.NewEncoder(sw)}
}

func (e *rowEncoder) encode(row Row) error {
	if err := e.enc.EncodeBool(true); err != nil {
		return err
	}
	return encodeRecord(e.enc, row)
}

// finish writes the terminator and flushes. It does not close the underlying
// writer.
func (e *rowEncoder) finish() error {
	if err := e.enc.EncodeBool(false); err != nil {
		return err
	}
	return e.sw.Close()
}

func encodeRecord(enc *msgpack.Encoder, row Row) error {
	if err := enc.EncodeString(row.Key); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(row.Cells)); err != nil {
		return err
	}
	for i, cell := range row.Cells {
		var err error
		switch v := cell.(type) {
		case nil:
			err = enc.EncodeNil()
		case int64:
			err = enc.EncodeInt(v)
		case float64:
			err = enc.EncodeFloat64(v)
		case string:
			err = enc.EncodeString(v)
		case bool:
			err = enc.EncodeBool(v)
		default:
			err = fmt.Errorf("cell %d of row %q: unsupported type %T", i, row.Key, cell)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func decodeRecord(dec *msgpack.Decoder, spec Spec) (Row, error) {
	key, err := dec.DecodeString()
	if err != nil {
		return Row{}, err
	}
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return Row{}, err
	}
	if n != spec.NumColumns() {
		return Row{}, fmt.Errorf("row %q: stored %d cells, spec has %d columns", key, n, spec.NumColumns())
	}
	cells := make([]any, n)
	for i := range cells {
		raw, err := dec.DecodeInterfaceLoose()
		if err != nil {
			return Row{}, err
		}
		cells[i], err = normalizeCell(spec.Columns[i].Type, raw)
		if err != nil {
			return Row{}, fmt.Errorf("row %q: %w", key, err)
		}
	}
	return Row{Key: key, Cells: cells}, nil
}

// marshalRow encodes one row as a snappy block.
func marshalRow(row Row) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeRecord(msgpack.NewEncoder(&buf), row); err != nil {
		return nil, err
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func unmarshalRow(data []byte, spec Spec) (Row, error) {
	raw, err := snappy.Decode(nil, data)
	if err != nil {
		return Row{}, err
	}
	return decodeRecord(msgpack.NewDecoder(bytes.NewReader(raw)), spec)
}

// streamIterator decodes a row stream produced by rowEncoder.
type streamIterator struct {
	dec    *msgpack.Decoder
	spec   Spec
	closer io.Closer
	row    Row
	err    error
	done   bool
}

func newStreamIterator(r io.Reader, spec Spec, closer io.Closer) *streamIterator {
	return &streamIterator{
		dec:    msgpack.NewDecoder(snappy.NewReader(r)),
		spec:   spec,
		closer: closer,
	}
}

func (it *streamIterator) Next() bool {
	if it.done {
		return false
	}
	more, err := it.dec.DecodeBool()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return it.fail(err)
	}
	if !more {
		it.done = true
		return false
	}
	row, err := decodeRecord(it.dec, it.spec)
	if err != nil {
		return it.fail(err)
	}
	it.row = row
	return true
}

func (it *streamIterator) fail(err error) bool {
	it.err = fmt.Errorf("decode row stream: %w", err)
	it.done = true
	return false
}

func (it *streamIterator) Row() Row   { return it.row }
func (it *streamIterator) Err() error { return it.err }

func (it *streamIterator) Close() error {
	it.done = true
	if it.closer == nil {
		return nil
	}
	c := it.closer
	it.closer = nil
	return c.Close()
}

// WriteRows encodes every row of it to w and returns the number written.
// it is closed before returning.
func WriteRows(w io.Writer, it RowIterator) (int, error) {
	defer it.Close()
	enc := newRowEncoder(w)
	n := 0
	for it.Next() {
		if err := enc.encode(it.Row()); err != nil {
			return n, err
		}
		n++
	}
	if err := it.Err(); err != nil {
		return n, err
	}
	return n, enc.finish()
}

// ReadRows decodes a stream written by WriteRows.
func ReadRows(r io.Reader, spec Spec) RowIterator {
	return newStreamIterator(r, spec, nil)
}
