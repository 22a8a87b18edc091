package cfile

import (
	"encoding/binary"
	"fmt"

	"github.com/mathsigit/kudu/schema"
)

// ColumnBlock is a caller-owned destination buffer for materialized column
// values. It is typed at construction and holds up to its capacity of
// decoded values for one batch.
type ColumnBlock struct {
	typ schema.DataType
	cap int
	n   int

	u32  []uint32
	u64  []uint64
	i64  []int64
	strs [][]byte
}

// NewColumnBlock creates a destination buffer for capacity values of the
// given type.
func NewColumnBlock(typ schema.DataType, capacity int) *ColumnBlock {
	b := &ColumnBlock{typ: typ, cap: capacity}
	switch typ {
	case schema.TypeUint32:
		b.u32 = make([]uint32, 0, capacity)
	case schema.TypeUint64:
		b.u64 = make([]uint64, 0, capacity)
	case schema.TypeInt64:
		b.i64 = make([]int64, 0, capacity)
	case schema.TypeString:
		b.strs = make([][]byte, 0, capacity)
	}
	return b
}

// Type returns the block's value type.
func (b *ColumnBlock) Type() schema.DataType { return b.typ }

// Len returns the number of decoded values currently held.
func (b *ColumnBlock) Len() int { return b.n }

// Capacity returns the maximum number of values the block can hold.
func (b *ColumnBlock) Capacity() int { return b.cap }

// Reset discards all held values.
func (b *ColumnBlock) Reset() {
	b.n = 0
	b.u32 = b.u32[:0]
	b.u64 = b.u64[:0]
	b.i64 = b.i64[:0]
	b.strs = b.strs[:0]
}

// Uint32s returns the decoded values. Only valid for TypeUint32.
func (b *ColumnBlock) Uint32s() []uint32 { return b.u32 }

// Uint64s returns the decoded values. Only valid for TypeUint64.
func (b *ColumnBlock) Uint64s() []uint64 { return b.u64 }

// Int64s returns the decoded values. Only valid for TypeInt64.
func (b *ColumnBlock) Int64s() []int64 { return b.i64 }

// Strings returns the decoded values. Only valid for TypeString. The byte
// slices alias the block's internal storage and are valid until Reset.
func (b *ColumnBlock) Strings() [][]byte { return b.strs }

// DatumAt returns the value at position i as a Datum.
func (b *ColumnBlock) DatumAt(i int) schema.Datum {
	switch b.typ {
	case schema.TypeUint32:
		return schema.Uint32Datum(b.u32[i])
	case schema.TypeUint64:
		return schema.Uint64Datum(b.u64[i])
	case schema.TypeInt64:
		return schema.Int64Datum(b.i64[i])
	default:
		return schema.BytesDatum(b.strs[i])
	}
}

func (b *ColumnBlock) appendDatum(d schema.Datum) {
	switch b.typ {
	case schema.TypeUint32:
		b.u32 = append(b.u32, d.Uint32())
	case schema.TypeUint64:
		b.u64 = append(b.u64, d.Uint64())
	case schema.TypeInt64:
		b.i64 = append(b.i64, d.Int64())
	default:
		b.strs = append(b.strs, d.Bytes())
	}
	b.n++
}

// appendFromPayload decodes values [from, to) of a block payload into b.
func (b *ColumnBlock) appendFromPayload(payload []byte, numRows, from, to int) error {
	for i := from; i < to; i++ {
		d, err := payloadDatum(payload, b.typ, numRows, i)
		if err != nil {
			return err
		}
		b.appendDatum(d)
	}
	return nil
}

// payloadDatum extracts value i from a decompressed block payload.
//
// Fixed-width types are a dense little-endian array. Strings are an offset
// array of numRows+1 uint32s followed by the concatenated bytes; offsets are
// relative to the start of the byte section.
func payloadDatum(payload []byte, typ schema.DataType, numRows, i int) (schema.Datum, error) {
	switch typ {
	case schema.TypeUint32:
		off := i * 4
		if off+4 > len(payload) {
			return schema.Datum{}, fmt.Errorf("cfile: value %d past end of block payload", i)
		}
		return schema.Uint32Datum(binary.LittleEndian.Uint32(payload[off:])), nil
	case schema.TypeUint64:
		off := i * 8
		if off+8 > len(payload) {
			return schema.Datum{}, fmt.Errorf("cfile: value %d past end of block payload", i)
		}
		return schema.Uint64Datum(binary.LittleEndian.Uint64(payload[off:])), nil
	case schema.TypeInt64:
		off := i * 8
		if off+8 > len(payload) {
			return schema.Datum{}, fmt.Errorf("cfile: value %d past end of block payload", i)
		}
		return schema.Int64Datum(int64(binary.LittleEndian.Uint64(payload[off:]))), nil
	case schema.TypeString:
		offSection := (numRows + 1) * 4
		if i < 0 || i >= numRows || offSection > len(payload) {
			return schema.Datum{}, fmt.Errorf("cfile: string offsets truncated in block payload")
		}
		start := binary.LittleEndian.Uint32(payload[i*4:])
		end := binary.LittleEndian.Uint32(payload[(i+1)*4:])
		if start > end || int(end) > len(payload)-offSection {
			return schema.Datum{}, fmt.Errorf("cfile: corrupt string offsets in block payload")
		}
		data := payload[offSection:]
		return schema.BytesDatum(data[start:end]), nil
	default:
		return schema.Datum{}, fmt.Errorf("cfile: unsupported type %s", typ)
	}
}
