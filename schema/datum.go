package schema

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// DataType identifies the physical type of a column.
type DataType uint8

const (
	TypeUnknown DataType = iota
	TypeUint32
	TypeUint64
	TypeInt64
	TypeString
)

func (t DataType) String() string {
	switch t {
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeString:
		return "string"
	default:
		return "unknown"
	}
}

// FixedWidth returns the encoded width of one value in bytes, or 0 for
// variable-width types.
func (t DataType) FixedWidth() int {
	switch t {
	case TypeUint32:
		return 4
	case TypeUint64, TypeInt64:
		return 8
	default:
		return 0
	}
}

// Datum is a single typed value. The zero Datum has TypeUnknown and is not a
// valid value.
type Datum struct {
	typ DataType
	u64 uint64
	str []byte
}

// Uint32Datum creates a uint32 datum.
func Uint32Datum(v uint32) Datum { return Datum{typ: TypeUint32, u64: uint64(v)} }

// Uint64Datum creates a uint64 datum.
func Uint64Datum(v uint64) Datum { return Datum{typ: TypeUint64, u64: v} }

// Int64Datum creates an int64 datum.
func Int64Datum(v int64) Datum { return Datum{typ: TypeInt64, u64: uint64(v)} }

// StringDatum creates a string datum.
func StringDatum(v string) Datum { return Datum{typ: TypeString, str: []byte(v)} }

// BytesDatum creates a string datum from raw bytes. The slice is not copied.
func BytesDatum(v []byte) Datum { return Datum{typ: TypeString, str: v} }

// Type returns the datum's type.
func (d Datum) Type() DataType { return d.typ }

// Uint32 returns the value as uint32. Only valid for TypeUint32.
func (d Datum) Uint32() uint32 { return uint32(d.u64) }

// Uint64 returns the value as uint64. Only valid for TypeUint64.
func (d Datum) Uint64() uint64 { return d.u64 }

// Int64 returns the value as int64. Only valid for TypeInt64.
func (d Datum) Int64() int64 { return int64(d.u64) }

// Bytes returns the value's bytes. Only valid for TypeString.
func (d Datum) Bytes() []byte { return d.str }

func (d Datum) String() string {
	switch d.typ {
	case TypeUint32:
		return fmt.Sprintf("uint32:%d", uint32(d.u64))
	case TypeUint64:
		return fmt.Sprintf("uint64:%d", d.u64)
	case TypeInt64:
		return fmt.Sprintf("int64:%d", int64(d.u64))
	case TypeString:
		return fmt.Sprintf("string:%q", d.str)
	default:
		return "unknown"
	}
}

// Compare orders d relative to other, which must have the same type.
// Returns -1, 0 or 1.
func (d Datum) Compare(other Datum) int {
	switch d.typ {
	case TypeInt64:
		a, b := int64(d.u64), int64(other.u64)
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		}
		return 0
	case TypeString:
		return bytes.Compare(d.str, other.str)
	default:
		switch {
		case d.u64 < other.u64:
			return -1
		case d.u64 > other.u64:
			return 1
		}
		return 0
	}
}

// Encode appends a stable byte representation of the datum to dst. The
// encoding identifies equal values across processes (filter probes, value
// index entries); it is not required to be order-preserving.
func (d Datum) Encode(dst []byte) []byte {
	switch d.typ {
	case TypeUint32:
		var buf [4]byte
		binary.LittleEndian.PutUint32(buf[:], uint32(d.u64))
		return append(dst, buf[:]...)
	case TypeUint64, TypeInt64:
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], d.u64)
		return append(dst, buf[:]...)
	default:
		return append(dst, d.str...)
	}
}

// DecodeDatum reconstructs a datum of the given type from bytes produced by
// Encode.
func DecodeDatum(typ DataType, b []byte) (Datum, error) {
	switch typ {
	case TypeUint32:
		if len(b) != 4 {
			return Datum{}, fmt.Errorf("schema: bad uint32 encoding length %d", len(b))
		}
		return Uint32Datum(binary.LittleEndian.Uint32(b)), nil
	case TypeUint64:
		if len(b) != 8 {
			return Datum{}, fmt.Errorf("schema: bad uint64 encoding length %d", len(b))
		}
		return Uint64Datum(binary.LittleEndian.Uint64(b)), nil
	case TypeInt64:
		if len(b) != 8 {
			return Datum{}, fmt.Errorf("schema: bad int64 encoding length %d", len(b))
		}
		return Int64Datum(int64(binary.LittleEndian.Uint64(b))), nil
	case TypeString:
		return BytesDatum(append([]byte(nil), b...)), nil
	default:
		return Datum{}, fmt.Errorf("schema: cannot decode type %s", typ)
	}
}
