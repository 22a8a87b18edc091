package cfile

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mathsigit/kudu/internal/hash"
	"github.com/mathsigit/kudu/schema"
)

var (
	// ErrOutOfOrder is returned when a value-indexed column receives values
	// that are not strictly ascending. Key columns determine row order, so
	// this always indicates a caller bug.
	ErrOutOfOrder = errors.New("cfile: value-indexed column requires strictly ascending values")

	// ErrTypeMismatch is returned when an appended datum does not match the
	// writer's column type.
	ErrTypeMismatch = errors.New("cfile: datum type does not match column type")
)

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithCodec selects the block compression codec.
func WithCodec(c Codec) WriterOption {
	return func(w *Writer) { w.codec = c }
}

// WithBlockRows sets the number of values per data block.
func WithBlockRows(n int) WriterOption {
	return func(w *Writer) {
		if n > 0 {
			w.blockRows = n
		}
	}
}

// WithValueIndex records each block's first value in the block index,
// enabling binary search by value. Required for key columns; values must
// then be appended in strictly ascending order.
func WithValueIndex(enabled bool) WriterOption {
	return func(w *Writer) { w.valueIndex = enabled }
}

// Writer builds a column file. Values are buffered and laid out when Flush
// is called.
type Writer struct {
	typ        schema.DataType
	codec      Codec
	blockRows  int
	valueIndex bool

	values []schema.Datum
}

// NewWriter creates a writer for a column of the given type.
func NewWriter(typ schema.DataType, opts ...WriterOption) *Writer {
	w := &Writer{
		typ:       typ,
		codec:     CodecNone,
		blockRows: DefaultBlockRows,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Append adds one value to the column.
func (w *Writer) Append(d schema.Datum) error {
	if d.Type() != w.typ {
		return fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, d.Type(), w.typ)
	}
	if w.valueIndex && len(w.values) > 0 {
		if w.values[len(w.values)-1].Compare(d) >= 0 {
			return ErrOutOfOrder
		}
	}
	w.values = append(w.values, d)
	return nil
}

// RowCount returns the number of values appended so far.
func (w *Writer) RowCount() int { return len(w.values) }

// Flush writes the complete column file to dst.
func (w *Writer) Flush(dst io.Writer) error {
	bw := bufio.NewWriter(dst)

	numBlocks := (len(w.values) + w.blockRows - 1) / w.blockRows
	metas := make([]blockMeta, 0, numBlocks)

	offset := uint64(HeaderSize)
	blocks := make([][]byte, 0, numBlocks)
	for start := 0; start < len(w.values); start += w.blockRows {
		end := start + w.blockRows
		if end > len(w.values) {
			end = len(w.values)
		}
		payload := w.encodePayload(w.values[start:end])
		stored, err := compressBlock(w.codec, payload)
		if err != nil {
			return err
		}
		m := blockMeta{
			firstOrdinal: uint32(start),
			numRows:      uint32(end - start),
			offset:       offset,
			length:       uint32(len(stored)),
			rawLength:    uint32(len(payload)),
		}
		if w.valueIndex {
			m.firstValue = w.values[start]
		}
		metas = append(metas, m)
		blocks = append(blocks, stored)
		offset += uint64(len(stored))
	}

	var index []byte
	for i := range metas {
		index = metas[i].encode(index, w.valueIndex)
	}

	hdr := fileHeader{
		Magic:         MagicNumber,
		Version:       Version,
		DataType:      w.typ,
		Codec:         w.codec,
		ValueIndex:    w.valueIndex,
		RowCount:      uint32(len(w.values)),
		BlockCount:    uint32(len(metas)),
		IndexOffset:   offset,
		IndexSize:     uint32(len(index)),
		IndexChecksum: hash.CRC32C(index),
	}

	if _, err := bw.Write(hdr.encode()); err != nil {
		return err
	}
	for _, b := range blocks {
		if _, err := bw.Write(b); err != nil {
			return err
		}
	}
	if _, err := bw.Write(index); err != nil {
		return err
	}
	return bw.Flush()
}

func (w *Writer) encodePayload(values []schema.Datum) []byte {
	if width := w.typ.FixedWidth(); width > 0 {
		payload := make([]byte, 0, len(values)*width)
		for _, v := range values {
			payload = v.Encode(payload)
		}
		return payload
	}

	// Variable width: offset array then concatenated bytes.
	total := 0
	for _, v := range values {
		total += len(v.Bytes())
	}
	payload := make([]byte, 0, (len(values)+1)*4+total)
	off := uint32(0)
	var buf [4]byte
	for _, v := range values {
		binary.LittleEndian.PutUint32(buf[:], off)
		payload = append(payload, buf[:]...)
		off += uint32(len(v.Bytes()))
	}
	binary.LittleEndian.PutUint32(buf[:], off)
	payload = append(payload, buf[:]...)
	for _, v := range values {
		payload = append(payload, v.Bytes()...)
	}
	return payload
}
