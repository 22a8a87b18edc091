package rowset

import (
	"context"
	"errors"
	"fmt"

	"github.com/mathsigit/kudu/cfile"
	"github.com/mathsigit/kudu/scan"
	"github.com/mathsigit/kudu/schema"
)

// ScanIterator is the batch-oriented scan protocol over one rowset.
//
// Call order: Init once, then any number of
// PrepareBatch → {MaterializeColumn*} → FinishBatch cycles while HasNext
// reports true, then Close. A ScanIterator is strictly single-threaded;
// it borrows the underlying file set and keeps it alive until Close.
type ScanIterator interface {
	// Init validates the projection, opens the key cursor, applies
	// predicate pushdown against spec (which may be nil) and positions the
	// scan. Any predicate it converts into ordinal bounds is removed from
	// spec and must not be re-evaluated downstream.
	Init(ctx context.Context, spec *scan.Spec) error

	// HasNext reports whether unconsumed rows remain.
	HasNext() bool

	// PrepareBatch commits to a batch of at most maxRows rows and returns
	// the actual batch size. It performs no column I/O.
	PrepareBatch(maxRows int) (int, error)

	// InitializeSelectionVector sizes sv to the prepared batch with every
	// row selected.
	InitializeSelectionVector(sv *scan.SelectionVector) error

	// MaterializeColumn decodes the prepared batch's values for projection
	// column colIdx into dst. Idempotent within a batch.
	MaterializeColumn(ctx context.Context, colIdx int, dst *cfile.ColumnBlock) error

	// FinishBatch consumes the prepared batch and advances the scan.
	FinishBatch() error

	// IOStatistics reports the I/O performed per underlying column.
	IOStatistics() []cfile.IOStatistics

	// Close releases the iterator's reference on the file set.
	Close() error
}

// Iterator is the on-disk ScanIterator implementation. Created by
// FileSet.NewIterator.
type Iterator struct {
	base       *FileSet
	projection *schema.Schema

	// mapping[i] is the underlying column index of projection column i.
	mapping []int

	// keyIter drives positioning: it is used for pushdown translation and
	// seeks, independent of whether the key column is ever materialized.
	keyIter *cfile.Iterator

	// colIters/colsPrepared are indexed by underlying column; a column's
	// cursor is created on first use, so untouched columns cost no I/O.
	colIters     []*cfile.Iterator
	colsPrepared []bool

	rowCount int

	// Inclusive scan bounds. Always set after Init; with no key predicate
	// they are [0, rowCount-1]. An empty range has lowerBound > upperBound.
	lowerBound int
	upperBound int

	curIdx        int
	preparedCount int

	initted bool
	closed  bool
}

var _ ScanIterator = (*Iterator)(nil)

// Schema returns the iterator's projection.
func (it *Iterator) Schema() *schema.Schema { return it.projection }

func (it *Iterator) String() string {
	return "rowset iterator for " + it.base.String()
}

// Bounds returns the inclusive ordinal scan bounds computed by Init.
// An empty scan has lower > upper.
func (it *Iterator) Bounds() (lower, upper int) {
	return it.lowerBound, it.upperBound
}

// Init implements ScanIterator.
func (it *Iterator) Init(ctx context.Context, spec *scan.Spec) error {
	if it.closed {
		return ErrClosed
	}
	if it.initted {
		return ErrAlreadyInitialized
	}

	// Projection validation happens before any I/O so a misconfigured scan
	// fails fast.
	mapping, err := it.base.Schema().ProjectionMapping(it.projection)
	if err != nil {
		return err
	}
	for i, u := range mapping {
		if it.base.readers[u] == nil {
			return fmt.Errorf("%w: column %q", ErrNotOpen, it.projection.Column(i).Name)
		}
	}
	it.mapping = mapping

	it.keyIter = it.base.keyReader().NewIterator()
	it.colIters = make([]*cfile.Iterator, it.base.Schema().NumColumns())
	it.colsPrepared = make([]bool, it.base.Schema().NumColumns())

	it.lowerBound = 0
	it.upperBound = it.rowCount - 1
	if spec != nil {
		if err := it.PushdownRangeScanPredicate(ctx, spec); err != nil {
			return err
		}
	}

	it.curIdx = it.lowerBound
	if it.lowerBound <= it.upperBound {
		if err := it.keyIter.SeekToOrdinal(it.lowerBound); err != nil {
			return err
		}
	}

	it.initted = true
	it.base.logger.Debug("initialized rowset scan",
		"rowset", it.base.dir,
		"projection", len(it.mapping),
		"lower", it.lowerBound,
		"upper", it.upperBound)
	return nil
}

// PushdownRangeScanPredicate looks for a predicate over the key column that
// can be converted into ordinal bounds. If found, the predicate is removed
// from spec, since it is now enforced structurally, and the iterator's
// bounds are narrowed.
func (it *Iterator) PushdownRangeScanPredicate(ctx context.Context, spec *scan.Spec) error {
	keyCol := it.base.Schema().Column(0)
	for i, p := range spec.Predicates() {
		if p.Column != keyCol.Name {
			continue
		}
		if p.Lower == nil && p.Upper == nil {
			continue
		}
		if err := it.pushdownBounds(ctx, p); err != nil {
			return err
		}
		spec.RemovePredicate(i)
		return nil
	}
	return nil
}

// pushdownBounds translates one key predicate into inclusive ordinal
// bounds via binary search on the key cursor.
//
// The tie-break rules are fixed: a lower bound resolves to the first
// ordinal whose key satisfies it, an upper bound to the last; exclusive
// bounds shift by exactly one ordinal on an exact match; keys are unique
// within a rowset.
func (it *Iterator) pushdownBounds(ctx context.Context, p scan.ColumnRangePredicate) error {
	if p.Lower != nil {
		idx, exact, err := it.keyIter.SeekAtOrAfter(ctx, *p.Lower)
		switch {
		case errors.Is(err, cfile.ErrAfterLastValue):
			// The bound exceeds every key: empty range.
			it.lowerBound = it.rowCount
			it.upperBound = it.rowCount - 1
			return nil
		case err != nil:
			return err
		}
		lb := idx
		if exact && !p.LowerInclusive {
			lb = idx + 1
		}
		if lb > it.lowerBound {
			it.lowerBound = lb
		}
	}

	if p.Upper != nil {
		idx, exact, err := it.keyIter.SeekAtOrAfter(ctx, *p.Upper)
		switch {
		case errors.Is(err, cfile.ErrAfterLastValue):
			// Every key satisfies the upper bound.
		case err != nil:
			return err
		default:
			ub := idx - 1
			if exact && p.UpperInclusive {
				ub = idx
			}
			if ub < it.upperBound {
				it.upperBound = ub
			}
		}
	}
	return nil
}

// HasNext implements ScanIterator. Valid only after Init.
func (it *Iterator) HasNext() bool {
	return it.initted && !it.closed && it.curIdx <= it.upperBound
}

func (it *Iterator) checkIterating() error {
	if it.closed {
		return ErrClosed
	}
	if !it.initted {
		return ErrNotInitialized
	}
	if it.curIdx > it.upperBound {
		return ErrExhausted
	}
	return nil
}

// PrepareBatch implements ScanIterator.
func (it *Iterator) PrepareBatch(maxRows int) (int, error) {
	if err := it.checkIterating(); err != nil {
		return 0, err
	}
	if maxRows < 0 {
		return 0, fmt.Errorf("rowset: negative batch size %d", maxRows)
	}
	n := it.upperBound - it.curIdx + 1
	if maxRows < n {
		n = maxRows
	}
	it.preparedCount = n
	return n, nil
}

// InitializeSelectionVector implements ScanIterator. The ordinal-range
// predicate has already excluded ineligible rows structurally, so every row
// of the batch starts selected; remaining row-level predicates are the
// caller's to apply.
func (it *Iterator) InitializeSelectionVector(sv *scan.SelectionVector) error {
	if it.closed {
		return ErrClosed
	}
	if !it.initted {
		return ErrNotInitialized
	}
	sv.Resize(it.preparedCount)
	sv.SetAllTrue()
	return nil
}

// PrepareColumn seeks projection column colIdx's cursor to the prepared
// batch. Idempotent within a batch; columns never materialized are never
// prepared, so they incur no I/O.
func (it *Iterator) PrepareColumn(ctx context.Context, colIdx int) error {
	if err := it.checkIterating(); err != nil {
		return err
	}
	if colIdx < 0 || colIdx >= len(it.mapping) {
		return fmt.Errorf("%w: index %d of %d", ErrNotInProjection, colIdx, len(it.mapping))
	}
	u := it.mapping[colIdx]
	if it.colsPrepared[u] {
		return nil
	}
	if it.colIters[u] == nil {
		it.colIters[u] = it.base.readers[u].NewIterator()
	}
	if err := it.colIters[u].SeekToOrdinal(it.curIdx); err != nil {
		return err
	}
	it.colsPrepared[u] = true
	return nil
}

// MaterializeColumn implements ScanIterator.
func (it *Iterator) MaterializeColumn(ctx context.Context, colIdx int, dst *cfile.ColumnBlock) error {
	if err := it.PrepareColumn(ctx, colIdx); err != nil {
		return err
	}
	u := it.mapping[colIdx]
	return it.colIters[u].ReadValues(ctx, it.preparedCount, dst)
}

// FinishBatch implements ScanIterator. This is the only place the scan
// advances; between PrepareBatch and FinishBatch the row range is fixed and
// columns may be materialized in any order, or not at all.
func (it *Iterator) FinishBatch() error {
	if it.closed {
		return ErrClosed
	}
	if !it.initted {
		return ErrNotInitialized
	}
	it.curIdx += it.preparedCount
	it.preparedCount = 0
	for i := range it.colsPrepared {
		it.colsPrepared[i] = false
	}
	return nil
}

// IOStatistics implements ScanIterator: one entry per underlying column,
// zero for columns whose cursor was never opened.
func (it *Iterator) IOStatistics() []cfile.IOStatistics {
	stats := make([]cfile.IOStatistics, len(it.colIters))
	for i, ci := range it.colIters {
		if ci != nil {
			stats[i] = ci.IOStats()
		}
	}
	return stats
}

// KeyIOStatistics reports the I/O performed by the positioning cursor over
// the key column (pushdown searches and seeks), kept separate from
// materialization I/O.
func (it *Iterator) KeyIOStatistics() cfile.IOStatistics {
	if it.keyIter == nil {
		return cfile.IOStatistics{}
	}
	return it.keyIter.IOStats()
}

// Close implements ScanIterator. Idempotent.
func (it *Iterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	return it.base.Release()
}
