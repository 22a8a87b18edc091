package rowset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/mathsigit/kudu/blobstore"
	"github.com/mathsigit/kudu/bloomfile"
	"github.com/mathsigit/kudu/cfile"
	"github.com/mathsigit/kudu/internal/cache"
	"github.com/mathsigit/kudu/schema"
)

// BloomFileName is the name of the membership filter file inside a rowset
// directory.
const BloomFileName = "bloom.kbf"

// ColumnFileName returns the file name for the named column.
func ColumnFileName(column string) string {
	return column + ".cf"
}

// openParallelism bounds how many column files are opened concurrently.
const openParallelism = 8

// RowSet is the read surface of one rowset. *FileSet is the on-disk
// implementation; test doubles can simulate a rowset without files.
type RowSet interface {
	// CountRows returns the rowset's row count.
	CountRows() (int, error)

	// FindRow returns the ordinal index of the row with the given key.
	// found=false is a normal outcome, not an error.
	FindRow(ctx context.Context, key schema.Datum) (row int, found bool, err error)

	// CheckRowPresent reports whether a row with the given key exists,
	// using the membership filter as a fast-path negative test.
	CheckRowPresent(ctx context.Context, key schema.Datum) (present bool, err error)

	// NewIterator returns a scan iterator over the given projection.
	NewIterator(projection *schema.Schema) (ScanIterator, error)
}

// Option configures a FileSet.
type Option func(*FileSet)

// WithLogger sets the logger. The default discards all output.
func WithLogger(l *slog.Logger) Option {
	return func(fs *FileSet) { fs.logger = l }
}

// WithBlockCache attaches a block cache shared by all column readers of
// this file set (and, if the same cache is passed elsewhere, across file
// sets).
func WithBlockCache(c cache.BlockCache) Option {
	return func(fs *FileSet) { fs.cache = c }
}

// FileSet is the set of column files making up one immutable rowset, plus
// its optional membership filter.
//
// All column files hold the same number of rows, so an ordinal index
// addresses corresponding entries across files. A FileSet is opened once
// and never mutated; after open it is safe for concurrent use by any number
// of scans.
//
// Ownership is reference counted: NewIterator retains the file set, so an
// in-flight scan keeps the files open even if the owning rowset is retired
// concurrently. The last release closes the files.
type FileSet struct {
	store blobstore.BlobStore
	dir   string
	sch   *schema.Schema

	cache  cache.BlockCache
	logger *slog.Logger

	// readers is index-aligned with the schema; entries stay nil until the
	// corresponding column is opened.
	readers  []*cfile.Reader
	bloom    *bloomfile.Reader
	rowCount int
	opened   bool

	refs atomic.Int32
}

// New creates an unopened FileSet for the rowset stored under dir in store.
// dir is identity only; the store determines actual file access. The caller
// holds the initial reference and must call Close.
func New(store blobstore.BlobStore, dir string, sch *schema.Schema, opts ...Option) *FileSet {
	fs := &FileSet{
		store:   store,
		dir:     dir,
		sch:     sch,
		logger:  slog.New(slog.DiscardHandler),
		readers: make([]*cfile.Reader, sch.NumColumns()),
	}
	for _, opt := range opts {
		opt(fs)
	}
	fs.refs.Store(1)
	return fs
}

// Schema returns the rowset's full schema.
func (fs *FileSet) Schema() *schema.Schema { return fs.sch }

// String describes the file set for logs.
func (fs *FileSet) String() string {
	return "column data in " + fs.dir
}

// OpenAllColumns opens every column file plus the membership filter.
// Required before full scans.
func (fs *FileSet) OpenAllColumns(ctx context.Context) error {
	return fs.openColumns(ctx, fs.sch.NumColumns())
}

// OpenKeyColumns opens only the key column file(s) and the membership
// filter. Sufficient for FindRow and CheckRowPresent; avoids touching the
// remaining columns.
func (fs *FileSet) OpenKeyColumns(ctx context.Context) error {
	return fs.openColumns(ctx, fs.sch.NumKeyColumns())
}

func (fs *FileSet) openColumns(ctx context.Context, numCols int) error {
	opened := make([]*cfile.Reader, numCols)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(openParallelism)
	for i := 0; i < numCols; i++ {
		if fs.readers[i] != nil {
			continue
		}
		g.Go(func() error {
			col := fs.sch.Column(i)
			r, err := fs.openOneColumn(gctx, i, col)
			if err != nil {
				return err
			}
			opened[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, r := range opened {
			if r != nil {
				r.Close()
			}
		}
		return err
	}

	for i, r := range opened {
		if r != nil {
			fs.readers[i] = r
		}
	}

	// Every column file of a rowset must agree on the row count; a mismatch
	// means the files are torn or mixed up, never something to tolerate.
	rows := -1
	for i := 0; i < numCols; i++ {
		n := fs.readers[i].RowCount()
		if rows < 0 {
			rows = n
			continue
		}
		if n != rows {
			return fmt.Errorf("%w: column %q has %d rows, %q has %d (%s)",
				ErrRowCountMismatch, fs.sch.Column(i).Name, n, fs.sch.Column(0).Name, rows, fs)
		}
	}
	fs.rowCount = rows
	fs.opened = true

	if fs.bloom == nil {
		if err := fs.openBloom(ctx); err != nil {
			return err
		}
	}

	fs.logger.Debug("opened rowset columns",
		"rowset", fs.dir,
		"columns", numCols,
		"rows", fs.rowCount,
		"bloom", fs.bloom != nil,
		"size_bytes", fs.EstimateOnDiskSize())
	return nil
}

func (fs *FileSet) openOneColumn(ctx context.Context, idx int, col schema.ColumnSchema) (*cfile.Reader, error) {
	name := ColumnFileName(col.Name)
	blob, err := fs.store.Open(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("rowset: open column %q: %w", col.Name, err)
	}

	var opts []cfile.ReaderOption
	if fs.cache != nil {
		opts = append(opts, cfile.WithBlockCache(fs.cache, fs.dir+"/"+name))
	}
	r, err := cfile.Open(ctx, blob, opts...)
	if err != nil {
		blob.Close()
		return nil, fmt.Errorf("rowset: open column %q: %w", col.Name, err)
	}
	if r.Type() != col.Type {
		r.Close()
		return nil, fmt.Errorf("rowset: column %q stored as %s, schema says %s", col.Name, r.Type(), col.Type)
	}
	if fs.sch.IsKeyColumn(idx) && !r.HasValueIndex() {
		r.Close()
		return nil, fmt.Errorf("%w: column %q", ErrKeyNotIndexed, col.Name)
	}
	return r, nil
}

// openBloom opens the membership filter. Its absence only disables the
// fast-path negative check.
func (fs *FileSet) openBloom(ctx context.Context) error {
	blob, err := fs.store.Open(ctx, BloomFileName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("rowset: open bloom file: %w", err)
	}
	br, err := bloomfile.Open(ctx, blob)
	blob.Close()
	if err != nil {
		return fmt.Errorf("rowset: open bloom file: %w", err)
	}
	fs.bloom = br
	return nil
}

// CountRows returns the rowset's row count.
func (fs *FileSet) CountRows() (int, error) {
	if !fs.opened {
		return 0, ErrNotOpen
	}
	return fs.rowCount, nil
}

// EstimateOnDiskSize sums the footprint of the opened column files.
// Advisory: used for scan planning, not exact accounting.
func (fs *FileSet) EstimateOnDiskSize() int64 {
	var total int64
	for _, r := range fs.readers {
		if r != nil {
			total += r.SizeOnDisk()
		}
	}
	return total
}

// keyReader returns the reader for the first key column.
func (fs *FileSet) keyReader() *cfile.Reader {
	return fs.readers[0]
}

// FindRow returns the ordinal index of the row whose key equals key.
// Relies on the key column being sorted ascending, a structural invariant
// of the format.
func (fs *FileSet) FindRow(ctx context.Context, key schema.Datum) (int, bool, error) {
	if !fs.opened {
		return 0, false, ErrNotOpen
	}
	it := fs.keyReader().NewIterator()
	idx, exact, err := it.SeekAtOrAfter(ctx, key)
	if errors.Is(err, cfile.ErrAfterLastValue) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	if !exact {
		return 0, false, nil
	}
	return idx, true, nil
}

// CheckRowPresent reports whether a row with the given key exists.
//
// The membership filter, when present, is consulted first: a definite
// negative short-circuits at filter cost. A "maybe" is never trusted and is
// always confirmed by FindRow.
func (fs *FileSet) CheckRowPresent(ctx context.Context, key schema.Datum) (bool, error) {
	if !fs.opened {
		return false, ErrNotOpen
	}
	if fs.bloom != nil && !fs.bloom.MayContainKey(key.Encode(nil)) {
		return false, nil
	}
	_, found, err := fs.FindRow(ctx, key)
	return found, err
}

// NewIterator returns a scan iterator over the given projection. The
// iterator holds a reference to the file set until closed.
func (fs *FileSet) NewIterator(projection *schema.Schema) (ScanIterator, error) {
	if !fs.opened {
		return nil, ErrNotOpen
	}
	fs.Retain()
	return &Iterator{
		base:       fs,
		projection: projection,
		rowCount:   fs.rowCount,
	}, nil
}

// Retain adds a reference to the file set.
func (fs *FileSet) Retain() {
	fs.refs.Add(1)
}

// Release drops one reference; the last release closes all files.
func (fs *FileSet) Release() error {
	if fs.refs.Add(-1) != 0 {
		return nil
	}
	var firstErr error
	for i, r := range fs.readers {
		if r == nil {
			continue
		}
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		fs.readers[i] = nil
	}
	fs.opened = false
	fs.logger.Debug("closed rowset", "rowset", fs.dir)
	return firstErr
}

// Close releases the owner's reference.
func (fs *FileSet) Close() error {
	return fs.Release()
}
