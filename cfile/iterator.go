package cfile

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/mathsigit/kudu/schema"
)

var (
	// ErrOrdinalOutOfRange is returned by SeekToOrdinal for positions
	// outside the file.
	ErrOrdinalOutOfRange = errors.New("cfile: ordinal out of range")

	// ErrAfterLastValue is returned by SeekAtOrAfter when the target is
	// greater than every value in the file.
	ErrAfterLastValue = errors.New("cfile: value after last in file")

	// ErrNoValueIndex is returned by SeekAtOrAfter on files written without
	// a value index.
	ErrNoValueIndex = errors.New("cfile: file has no value index")

	// ErrNotSeeked is returned by ReadValues before any successful seek.
	ErrNotSeeked = errors.New("cfile: iterator not positioned")
)

// IOStatistics counts the physical reads performed through one iterator.
type IOStatistics struct {
	// BlocksRead is the number of data blocks fetched from storage.
	BlocksRead int
	// BytesRead is the on-disk (compressed) bytes fetched.
	BytesRead int64
	// CacheHits is the number of block fetches served by the block cache.
	CacheHits int
}

// Iterator is a positional cursor over one column file.
//
// The cursor is moved only by the seek methods; ReadValues decodes from the
// current position without advancing, so re-reading the same range is
// deterministic. Not safe for concurrent use.
type Iterator struct {
	reader *Reader
	pos    int // current ordinal; -1 until first seek
	stats  IOStatistics

	// last decoded block, retained across reads at nearby positions
	curBlock        int
	curPayload      []byte
	curPayloadValid bool
}

// Ordinal returns the cursor's current ordinal position.
func (it *Iterator) Ordinal() int { return it.pos }

// IOStats returns the I/O performed through this iterator so far.
func (it *Iterator) IOStats() IOStatistics { return it.stats }

// SeekToOrdinal positions the cursor at the given ordinal. No I/O happens
// until values are read.
func (it *Iterator) SeekToOrdinal(ord int) error {
	if ord < 0 || ord >= it.reader.RowCount() {
		return fmt.Errorf("%w: %d of %d", ErrOrdinalOutOfRange, ord, it.reader.RowCount())
	}
	it.pos = ord
	return nil
}

// SeekAtOrAfter positions the cursor at the first ordinal whose value is
// >= target and reports whether the match is exact. Requires a value index.
// Returns ErrAfterLastValue when target is greater than every value.
func (it *Iterator) SeekAtOrAfter(ctx context.Context, target schema.Datum) (ord int, exact bool, err error) {
	r := it.reader
	if !r.HasValueIndex() {
		return 0, false, ErrNoValueIndex
	}
	if r.RowCount() == 0 {
		return 0, false, ErrAfterLastValue
	}
	if target.Type() != r.Type() {
		return 0, false, fmt.Errorf("%w: got %s, want %s", ErrTypeMismatch, target.Type(), r.Type())
	}

	// Candidate block: the last one whose first value is <= target. If the
	// target precedes the whole file, ordinal 0 is the answer.
	bi := sort.Search(len(r.metas), func(i int) bool {
		return r.metas[i].firstValue.Compare(target) > 0
	})
	if bi == 0 {
		it.pos = 0
		return 0, r.metas[0].firstValue.Compare(target) == 0, nil
	}
	bi--

	m := r.metas[bi]
	payload, err := it.loadBlock(ctx, bi)
	if err != nil {
		return 0, false, err
	}

	nrows := int(m.numRows)
	var searchErr error
	vi := sort.Search(nrows, func(i int) bool {
		if searchErr != nil {
			return true
		}
		d, derr := payloadDatum(payload, r.Type(), nrows, i)
		if derr != nil {
			searchErr = derr
			return true
		}
		return d.Compare(target) >= 0
	})
	if searchErr != nil {
		return 0, false, searchErr
	}

	if vi == nrows {
		// Everything in the candidate block is < target; the answer is the
		// next block's first value, if any.
		if bi+1 >= len(r.metas) {
			return 0, false, ErrAfterLastValue
		}
		next := r.metas[bi+1]
		it.pos = int(next.firstOrdinal)
		return it.pos, next.firstValue.Compare(target) == 0, nil
	}

	d, err := payloadDatum(payload, r.Type(), nrows, vi)
	if err != nil {
		return 0, false, err
	}
	it.pos = int(m.firstOrdinal) + vi
	return it.pos, d.Compare(target) == 0, nil
}

// ReadValues decodes n values starting at the current position into dst,
// resetting dst first. The cursor does not advance.
func (it *Iterator) ReadValues(ctx context.Context, n int, dst *ColumnBlock) error {
	if it.pos < 0 {
		return ErrNotSeeked
	}
	if dst.Type() != it.reader.Type() {
		return fmt.Errorf("%w: destination %s, column %s", ErrTypeMismatch, dst.Type(), it.reader.Type())
	}
	if n > dst.Capacity() {
		return fmt.Errorf("cfile: destination holds %d values, %d requested", dst.Capacity(), n)
	}
	if it.pos+n > it.reader.RowCount() {
		return fmt.Errorf("%w: rows [%d, %d) of %d", ErrOrdinalOutOfRange, it.pos, it.pos+n, it.reader.RowCount())
	}

	dst.Reset()
	remaining := n
	ord := it.pos
	for remaining > 0 {
		bi := it.reader.blockForOrdinal(ord)
		m := it.reader.metas[bi]
		payload, err := it.loadBlock(ctx, bi)
		if err != nil {
			return err
		}

		from := ord - int(m.firstOrdinal)
		to := from + remaining
		if to > int(m.numRows) {
			to = int(m.numRows)
		}
		if err := dst.appendFromPayload(payload, int(m.numRows), from, to); err != nil {
			return err
		}
		ord += to - from
		remaining -= to - from
	}
	return nil
}

// loadBlock fetches block bi, reusing the last decoded block when possible.
func (it *Iterator) loadBlock(ctx context.Context, bi int) ([]byte, error) {
	if it.curPayloadValid && it.curBlock == bi {
		return it.curPayload, nil
	}
	payload, err := it.reader.readBlock(ctx, bi, &it.stats)
	if err != nil {
		return nil, err
	}
	it.curBlock = bi
	it.curPayload = payload
	it.curPayloadValid = true
	return payload, nil
}
