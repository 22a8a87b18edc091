// Package rowset implements the read path for one immutable columnar
// rowset: a directory of per-column files sharing a row count, plus an
// optional membership filter.
//
// FileSet opens and validates the file set and answers point lookups
// (FindRow, CheckRowPresent). Iterator drives batched column-wise scans
// with predicate pushdown: a key-range predicate is translated into an
// ordinal row range once, up front, and columns are read lazily, only
// when a batch actually materializes them.
//
// A FileSet is immutable after open and safe for concurrent scans; each
// Iterator is single-threaded and holds a reference that keeps the files
// open for the scan's duration.
package rowset
