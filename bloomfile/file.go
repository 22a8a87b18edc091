package bloomfile

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/mathsigit/kudu/blobstore"
)

const (
	MagicNumber = 0x4B424631 // "KBF1"
	Version     = 1
)

// header: magic(4) version(4) numBits(8) k(4) count(4)
const headerSize = 4 + 4 + 8 + 4 + 4

var (
	ErrInvalidMagic   = errors.New("bloomfile: invalid magic number")
	ErrInvalidVersion = errors.New("bloomfile: unsupported version")
)

// Writer builds a membership filter file for one rowset.
type Writer struct {
	f *filter
}

// NewWriter sizes a filter for the expected key count and target
// false-positive rate (e.g. 0.01).
func NewWriter(expectedKeys int, falsePositiveRate float64) *Writer {
	numBits, k := filterSize(expectedKeys, falsePositiveRate)
	return &Writer{f: newFilter(numBits, k)}
}

// AddKey records an encoded key as present.
func (w *Writer) AddKey(key []byte) {
	w.f.add(key)
}

// Flush writes the complete filter file to dst.
func (w *Writer) Flush(dst io.Writer) error {
	bw := bufio.NewWriter(dst)

	hdr := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(hdr[0:], MagicNumber)
	binary.LittleEndian.PutUint32(hdr[4:], Version)
	binary.LittleEndian.PutUint64(hdr[8:], w.f.numBits)
	binary.LittleEndian.PutUint32(hdr[16:], w.f.k)
	binary.LittleEndian.PutUint32(hdr[20:], w.f.count)
	if _, err := bw.Write(hdr); err != nil {
		return err
	}

	var buf [8]byte
	for _, word := range w.f.bits {
		binary.LittleEndian.PutUint64(buf[:], word)
		if _, err := bw.Write(buf[:]); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Reader answers membership probes against one filter file. The filter is
// small relative to its column files and is loaded fully at open; Reader is
// safe for concurrent use.
type Reader struct {
	f *filter
}

// Open reads and validates a filter file.
func Open(ctx context.Context, blob blobstore.Blob) (*Reader, error) {
	hdr := make([]byte, headerSize)
	if _, err := blob.ReadAt(ctx, hdr, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("bloomfile: read header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:]) != MagicNumber {
		return nil, ErrInvalidMagic
	}
	if binary.LittleEndian.Uint32(hdr[4:]) != Version {
		return nil, ErrInvalidVersion
	}
	numBits := binary.LittleEndian.Uint64(hdr[8:])
	k := binary.LittleEndian.Uint32(hdr[16:])
	count := binary.LittleEndian.Uint32(hdr[20:])

	if numBits < 64 || numBits%64 != 0 || k < 1 || k > 16 {
		return nil, ErrCorruptFilter
	}
	if blob.Size() != int64(headerSize)+int64(numBits/8) {
		return nil, fmt.Errorf("%w: file size %d does not match header", ErrCorruptFilter, blob.Size())
	}

	words := make([]byte, numBits/8)
	if _, err := blob.ReadAt(ctx, words, headerSize); err != nil && err != io.EOF {
		return nil, fmt.Errorf("bloomfile: read bits: %w", err)
	}
	bits := make([]uint64, numBits/64)
	for i := range bits {
		bits[i] = binary.LittleEndian.Uint64(words[i*8:])
	}

	return &Reader{f: &filter{bits: bits, numBits: numBits, k: k, count: count}}, nil
}

// MayContainKey reports false only when the key is definitely absent.
func (r *Reader) MayContainKey(key []byte) bool {
	return r.f.mayContain(key)
}

// KeyCount returns the number of keys the filter was built with.
func (r *Reader) KeyCount() int {
	return int(r.f.count)
}
