package rowset

import "errors"

var (
	// ErrNotOpen is returned when a file set is used before its columns
	// were opened, or when a scan projects a column that was not opened.
	ErrNotOpen = errors.New("rowset: column files not opened")

	// ErrRowCountMismatch is returned when the column files of one rowset
	// disagree on the row count. The file set is unusable; the rowset data
	// is corrupt.
	ErrRowCountMismatch = errors.New("rowset: column row counts differ")

	// ErrKeyNotIndexed is returned when a key column file was written
	// without a value index.
	ErrKeyNotIndexed = errors.New("rowset: key column file has no value index")

	// ErrNotInitialized is returned when iterator batch methods are called
	// before Init. This is a caller bug, not a data error.
	ErrNotInitialized = errors.New("rowset: iterator not initialized")

	// ErrAlreadyInitialized is returned when Init is called twice.
	ErrAlreadyInitialized = errors.New("rowset: iterator already initialized")

	// ErrExhausted is returned when batch methods are called after the scan
	// range is consumed. This is a caller bug, not a data error.
	ErrExhausted = errors.New("rowset: iterator exhausted")

	// ErrNotInProjection is returned when a materialize call references a
	// column index outside the scan's projection.
	ErrNotInProjection = errors.New("rowset: column not in projection")

	// ErrClosed is returned when an iterator is used after Close.
	ErrClosed = errors.New("rowset: iterator closed")
)
