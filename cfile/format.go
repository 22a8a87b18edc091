package cfile

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/s2"
	"github.com/pierrec/lz4/v4"

	"github.com/mathsigit/kudu/schema"
)

const (
	MagicNumber = 0x4B434631 // "KCF1"
	Version     = 1

	// DefaultBlockRows is the number of values per data block unless
	// overridden. Small enough that point lookups decode little, large
	// enough that sequential scans amortize block overhead.
	DefaultBlockRows = 256
)

// HeaderSize is the size of the fixed file header in bytes.
const HeaderSize = 4 + 4 + 1 + 1 + 1 + 1 + 4 + 4 + 8 + 4 + 4 + 12

var (
	ErrInvalidMagic   = errors.New("cfile: invalid magic number")
	ErrInvalidVersion = errors.New("cfile: unsupported version")
	ErrCorruptIndex   = errors.New("cfile: corrupted block index")
)

// Codec selects the per-block compression algorithm.
type Codec uint8

const (
	CodecNone Codec = iota
	CodecS2
	CodecLZ4
)

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecS2:
		return "s2"
	case CodecLZ4:
		return "lz4"
	default:
		return "invalid"
	}
}

// Block storage flag: the first byte of every stored block records whether
// the codec actually ran. LZ4 in particular declines to compress
// incompressible input, in which case the raw payload is stored.
const (
	blockRaw        = 0
	blockCompressed = 1
)

// fileHeader describes the layout of a column file. It is stored at the
// beginning of the file; the block index lives at IndexOffset.
type fileHeader struct {
	Magic         uint32
	Version       uint32
	DataType      schema.DataType
	Codec         Codec
	ValueIndex    bool
	RowCount      uint32
	BlockCount    uint32
	IndexOffset   uint64
	IndexSize     uint32
	IndexChecksum uint32 // CRC32C of the encoded block index
}

func (h *fileHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	buf[8] = byte(h.DataType)
	buf[9] = byte(h.Codec)
	if h.ValueIndex {
		buf[10] = 1
	}
	// buf[11] padding
	binary.LittleEndian.PutUint32(buf[12:], h.RowCount)
	binary.LittleEndian.PutUint32(buf[16:], h.BlockCount)
	binary.LittleEndian.PutUint64(buf[20:], h.IndexOffset)
	binary.LittleEndian.PutUint32(buf[28:], h.IndexSize)
	binary.LittleEndian.PutUint32(buf[32:], h.IndexChecksum)
	// buf[36:48] reserved
	return buf
}

func decodeHeader(buf []byte) (*fileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, errors.New("cfile: buffer too small for header")
	}
	h := &fileHeader{}
	h.Magic = binary.LittleEndian.Uint32(buf[0:])
	if h.Magic != MagicNumber {
		return nil, ErrInvalidMagic
	}
	h.Version = binary.LittleEndian.Uint32(buf[4:])
	if h.Version != Version {
		return nil, ErrInvalidVersion
	}
	h.DataType = schema.DataType(buf[8])
	h.Codec = Codec(buf[9])
	h.ValueIndex = buf[10] != 0
	h.RowCount = binary.LittleEndian.Uint32(buf[12:])
	h.BlockCount = binary.LittleEndian.Uint32(buf[16:])
	h.IndexOffset = binary.LittleEndian.Uint64(buf[20:])
	h.IndexSize = binary.LittleEndian.Uint32(buf[28:])
	h.IndexChecksum = binary.LittleEndian.Uint32(buf[32:])
	return h, nil
}

// blockMeta is one entry of the trailing block index.
type blockMeta struct {
	firstOrdinal uint32
	numRows      uint32
	offset       uint64
	length       uint32 // stored (possibly compressed) size, incl. flag byte
	rawLength    uint32 // decompressed payload size

	// firstValue is set when the file carries a value index; it is the
	// column value at firstOrdinal and enables cross-block binary search.
	firstValue schema.Datum
}

func (m *blockMeta) encode(dst []byte, valueIndex bool) []byte {
	var buf [24]byte
	binary.LittleEndian.PutUint32(buf[0:], m.firstOrdinal)
	binary.LittleEndian.PutUint32(buf[4:], m.numRows)
	binary.LittleEndian.PutUint64(buf[8:], m.offset)
	binary.LittleEndian.PutUint32(buf[16:], m.length)
	binary.LittleEndian.PutUint32(buf[20:], m.rawLength)
	dst = append(dst, buf[:]...)
	if valueIndex {
		fv := m.firstValue.Encode(nil)
		var l [2]byte
		binary.LittleEndian.PutUint16(l[:], uint16(len(fv)))
		dst = append(dst, l[:]...)
		dst = append(dst, fv...)
	}
	return dst
}

func decodeBlockMeta(buf []byte, typ schema.DataType, valueIndex bool) (blockMeta, int, error) {
	if len(buf) < 24 {
		return blockMeta{}, 0, ErrCorruptIndex
	}
	m := blockMeta{
		firstOrdinal: binary.LittleEndian.Uint32(buf[0:]),
		numRows:      binary.LittleEndian.Uint32(buf[4:]),
		offset:       binary.LittleEndian.Uint64(buf[8:]),
		length:       binary.LittleEndian.Uint32(buf[16:]),
		rawLength:    binary.LittleEndian.Uint32(buf[20:]),
	}
	n := 24
	if valueIndex {
		if len(buf) < n+2 {
			return blockMeta{}, 0, ErrCorruptIndex
		}
		fvLen := int(binary.LittleEndian.Uint16(buf[n:]))
		n += 2
		if len(buf) < n+fvLen {
			return blockMeta{}, 0, ErrCorruptIndex
		}
		fv, err := schema.DecodeDatum(typ, buf[n:n+fvLen])
		if err != nil {
			return blockMeta{}, 0, fmt.Errorf("%w: %v", ErrCorruptIndex, err)
		}
		m.firstValue = fv
		n += fvLen
	}
	return m, n, nil
}

// compressBlock wraps payload for storage: a flag byte followed by either
// the codec output or the raw payload when compression does not help.
func compressBlock(codec Codec, payload []byte) ([]byte, error) {
	switch codec {
	case CodecNone:
		return append([]byte{blockRaw}, payload...), nil
	case CodecS2:
		enc := s2.Encode(nil, payload)
		if len(enc) >= len(payload) {
			return append([]byte{blockRaw}, payload...), nil
		}
		return append([]byte{blockCompressed}, enc...), nil
	case CodecLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(payload)))
		var c lz4.Compressor
		n, err := c.CompressBlock(payload, buf)
		if err != nil {
			return nil, fmt.Errorf("cfile: lz4 compress: %w", err)
		}
		if n == 0 || n >= len(payload) {
			return append([]byte{blockRaw}, payload...), nil
		}
		return append([]byte{blockCompressed}, buf[:n]...), nil
	default:
		return nil, fmt.Errorf("cfile: unknown codec %d", codec)
	}
}

// decompressBlock reverses compressBlock. rawLength is the expected
// decompressed payload size from the block index.
func decompressBlock(codec Codec, stored []byte, rawLength int) ([]byte, error) {
	if len(stored) == 0 {
		return nil, errors.New("cfile: empty block")
	}
	flag, body := stored[0], stored[1:]
	if flag == blockRaw {
		if len(body) != rawLength {
			return nil, fmt.Errorf("cfile: raw block length %d, index says %d", len(body), rawLength)
		}
		return body, nil
	}
	switch codec {
	case CodecS2:
		payload, err := s2.Decode(nil, body)
		if err != nil {
			return nil, fmt.Errorf("cfile: s2 decode: %w", err)
		}
		if len(payload) != rawLength {
			return nil, fmt.Errorf("cfile: s2 block decoded to %d bytes, index says %d", len(payload), rawLength)
		}
		return payload, nil
	case CodecLZ4:
		payload := make([]byte, rawLength)
		n, err := lz4.UncompressBlock(body, payload)
		if err != nil {
			return nil, fmt.Errorf("cfile: lz4 decode: %w", err)
		}
		if n != rawLength {
			return nil, fmt.Errorf("cfile: lz4 block decoded to %d bytes, index says %d", n, rawLength)
		}
		return payload, nil
	default:
		return nil, fmt.Errorf("cfile: compressed block with codec %s", codec)
	}
}
