package cfile

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/mathsigit/kudu/blobstore"
	"github.com/mathsigit/kudu/internal/cache"
	"github.com/mathsigit/kudu/internal/hash"
	"github.com/mathsigit/kudu/schema"
)

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithBlockCache attaches a block cache shared with other readers. The
// cache path must also be set for keys to be distinct per file.
func WithBlockCache(c cache.BlockCache, path string) ReaderOption {
	return func(r *Reader) {
		r.cache = c
		r.cachePath = path
	}
}

// Reader provides access to one immutable column file. It is safe for
// concurrent use by multiple iterators once opened.
type Reader struct {
	blob   blobstore.Blob
	header *fileHeader
	metas  []blockMeta

	cache     cache.BlockCache
	cachePath string
}

// Open reads and validates the header and block index of a column file.
func Open(ctx context.Context, blob blobstore.Blob, opts ...ReaderOption) (*Reader, error) {
	hdrBuf := make([]byte, HeaderSize)
	if _, err := blob.ReadAt(ctx, hdrBuf, 0); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cfile: read header: %w", err)
	}
	header, err := decodeHeader(hdrBuf)
	if err != nil {
		return nil, err
	}

	index := make([]byte, header.IndexSize)
	if len(index) > 0 {
		if _, err := blob.ReadAt(ctx, index, int64(header.IndexOffset)); err != nil && err != io.EOF {
			return nil, fmt.Errorf("cfile: read block index: %w", err)
		}
	}
	if hash.CRC32C(index) != header.IndexChecksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorruptIndex)
	}

	metas := make([]blockMeta, 0, header.BlockCount)
	rest := index
	for len(rest) > 0 {
		m, n, err := decodeBlockMeta(rest, header.DataType, header.ValueIndex)
		if err != nil {
			return nil, err
		}
		metas = append(metas, m)
		rest = rest[n:]
	}
	if uint32(len(metas)) != header.BlockCount {
		return nil, fmt.Errorf("%w: %d entries, header says %d", ErrCorruptIndex, len(metas), header.BlockCount)
	}
	var total uint32
	for i, m := range metas {
		if m.firstOrdinal != total {
			return nil, fmt.Errorf("%w: block %d first ordinal %d, want %d", ErrCorruptIndex, i, m.firstOrdinal, total)
		}
		total += m.numRows
	}
	if total != header.RowCount {
		return nil, fmt.Errorf("%w: blocks cover %d rows, header says %d", ErrCorruptIndex, total, header.RowCount)
	}

	r := &Reader{blob: blob, header: header, metas: metas}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// RowCount returns the number of values in the file.
func (r *Reader) RowCount() int { return int(r.header.RowCount) }

// Type returns the column's data type.
func (r *Reader) Type() schema.DataType { return r.header.DataType }

// HasValueIndex reports whether the file supports binary search by value.
func (r *Reader) HasValueIndex() bool { return r.header.ValueIndex }

// SizeOnDisk returns the file's on-disk footprint in bytes.
func (r *Reader) SizeOnDisk() int64 { return r.blob.Size() }

// NewIterator returns a cursor over the file. The cursor is not safe for
// concurrent use; open one per scan.
func (r *Reader) NewIterator() *Iterator {
	return &Iterator{reader: r, pos: -1}
}

// Close releases the underlying blob.
func (r *Reader) Close() error {
	return r.blob.Close()
}

// blockForOrdinal returns the index of the block containing ordinal ord.
// ord must be within [0, RowCount).
func (r *Reader) blockForOrdinal(ord int) int {
	// First block whose firstOrdinal is > ord, minus one.
	i := sort.Search(len(r.metas), func(i int) bool {
		return int(r.metas[i].firstOrdinal) > ord
	})
	return i - 1
}

// readBlock returns the decompressed payload of block i, consulting the
// cache first. stats is updated with the I/O performed.
func (r *Reader) readBlock(ctx context.Context, i int, stats *IOStatistics) ([]byte, error) {
	var key cache.Key
	if r.cache != nil {
		key = cache.Key{Path: r.cachePath, Block: uint32(i)}
		if b, ok := r.cache.Get(ctx, key); ok {
			stats.CacheHits++
			return b, nil
		}
	}

	m := r.metas[i]
	stored := make([]byte, m.length)
	if _, err := r.blob.ReadAt(ctx, stored, int64(m.offset)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("cfile: read block %d: %w", i, err)
	}
	stats.BlocksRead++
	stats.BytesRead += int64(m.length)

	payload, err := decompressBlock(r.header.Codec, stored, int(m.rawLength))
	if err != nil {
		return nil, fmt.Errorf("cfile: block %d: %w", i, err)
	}
	if r.cache != nil {
		r.cache.Set(ctx, key, payload)
	}
	return payload, nil
}
