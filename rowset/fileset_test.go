package rowset

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathsigit/kudu/blobstore"
	"github.com/mathsigit/kudu/bloomfile"
	"github.com/mathsigit/kudu/cfile"
	"github.com/mathsigit/kudu/schema"
)

// testSchema is the fixture schema: uint32 key, int64 value, string name.
func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	return schema.MustNew([]schema.ColumnSchema{
		{Name: "key", Type: schema.TypeUint32},
		{Name: "val", Type: schema.TypeInt64},
		{Name: "name", Type: schema.TypeString},
	}, 1)
}

// writeFixture writes a rowset with keys keyAt(i) for i in [0, rows),
// val = key*10 and name = "row-<key>", plus a bloom file.
func writeFixture(t *testing.T, store *blobstore.MemoryStore, rows int, keyAt func(i int) uint32) {
	t.Helper()

	keyW := cfile.NewWriter(schema.TypeUint32, cfile.WithValueIndex(true), cfile.WithBlockRows(50))
	valW := cfile.NewWriter(schema.TypeInt64, cfile.WithCodec(cfile.CodecS2), cfile.WithBlockRows(64))
	nameW := cfile.NewWriter(schema.TypeString, cfile.WithCodec(cfile.CodecLZ4), cfile.WithBlockRows(64))
	bloomW := bloomfile.NewWriter(rows, 0.01)

	for i := 0; i < rows; i++ {
		k := keyAt(i)
		require.NoError(t, keyW.Append(schema.Uint32Datum(k)))
		require.NoError(t, valW.Append(schema.Int64Datum(int64(k)*10)))
		require.NoError(t, nameW.Append(schema.StringDatum(fmt.Sprintf("row-%04d", k))))
		bloomW.AddKey(schema.Uint32Datum(k).Encode(nil))
	}

	var buf bytes.Buffer
	require.NoError(t, keyW.Flush(&buf))
	store.Put(ColumnFileName("key"), buf.Bytes())
	buf.Reset()
	require.NoError(t, valW.Flush(&buf))
	store.Put(ColumnFileName("val"), buf.Bytes())
	buf.Reset()
	require.NoError(t, nameW.Flush(&buf))
	store.Put(ColumnFileName("name"), buf.Bytes())
	buf.Reset()
	require.NoError(t, bloomW.Flush(&buf))
	store.Put(BloomFileName, buf.Bytes())
}

func sequentialKeys(i int) uint32 { return uint32(i) }
func evenKeys(i int) uint32       { return uint32(i * 2) }

func openFixture(t *testing.T, rows int, keyAt func(i int) uint32, opts ...Option) *FileSet {
	t.Helper()
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, rows, keyAt)

	fs := New(store, "mem:rs0", testSchema(t), opts...)
	require.NoError(t, fs.OpenAllColumns(context.Background()))
	t.Cleanup(func() { fs.Close() })
	return fs
}

func TestOpenAllColumns(t *testing.T) {
	fs := openFixture(t, 1000, sequentialKeys)

	rows, err := fs.CountRows()
	require.NoError(t, err)
	assert.Equal(t, 1000, rows)
	assert.Positive(t, fs.EstimateOnDiskSize())
	assert.Equal(t, "column data in mem:rs0", fs.String())
}

func TestOpenFailsOnRowCountMismatch(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 100, sequentialKeys)

	// Overwrite one column with a shorter file.
	short := cfile.NewWriter(schema.TypeInt64)
	for i := 0; i < 99; i++ {
		require.NoError(t, short.Append(schema.Int64Datum(int64(i))))
	}
	var buf bytes.Buffer
	require.NoError(t, short.Flush(&buf))
	store.Put(ColumnFileName("val"), buf.Bytes())

	fs := New(store, "mem:bad", testSchema(t))
	defer fs.Close()
	err := fs.OpenAllColumns(context.Background())
	require.ErrorIs(t, err, ErrRowCountMismatch)

	_, err = fs.CountRows()
	require.ErrorIs(t, err, ErrNotOpen)
}

func TestOpenFailsOnMissingColumn(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 10, sequentialKeys)

	fs := New(store, "mem:missing", schema.MustNew([]schema.ColumnSchema{
		{Name: "key", Type: schema.TypeUint32},
		{Name: "ghost", Type: schema.TypeInt64},
	}, 1))
	defer fs.Close()
	err := fs.OpenAllColumns(context.Background())
	require.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestOpenFailsOnUnindexedKey(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 10, sequentialKeys)

	// Rewrite the key column without a value index.
	w := cfile.NewWriter(schema.TypeUint32)
	for i := 0; i < 10; i++ {
		require.NoError(t, w.Append(schema.Uint32Datum(uint32(i))))
	}
	var buf bytes.Buffer
	require.NoError(t, w.Flush(&buf))
	store.Put(ColumnFileName("key"), buf.Bytes())

	fs := New(store, "mem:noidx", testSchema(t))
	defer fs.Close()
	require.ErrorIs(t, fs.OpenAllColumns(context.Background()), ErrKeyNotIndexed)
}

func TestOpenKeyColumnsLookupOnly(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 100, sequentialKeys)
	ctx := context.Background()

	fs := New(store, "mem:keys", testSchema(t))
	defer fs.Close()
	require.NoError(t, fs.OpenKeyColumns(ctx))

	row, found, err := fs.FindRow(ctx, schema.Uint32Datum(42))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 42, row)

	// Scanning non-key columns requires OpenAllColumns.
	it, err := fs.NewIterator(testSchema(t))
	require.NoError(t, err)
	defer it.Close()
	require.ErrorIs(t, it.Init(ctx, nil), ErrNotOpen)
}

func TestFindRow(t *testing.T) {
	fs := openFixture(t, 1000, sequentialKeys)
	ctx := context.Background()

	for _, k := range []int{0, 1, 150, 999} {
		row, found, err := fs.FindRow(ctx, schema.Uint32Datum(uint32(k)))
		require.NoError(t, err)
		require.True(t, found, "key %d", k)
		require.Equal(t, k, row)
	}

	_, found, err := fs.FindRow(ctx, schema.Uint32Datum(5000))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFindRowMissBetweenKeys(t *testing.T) {
	fs := openFixture(t, 500, evenKeys)
	ctx := context.Background()

	row, found, err := fs.FindRow(ctx, schema.Uint32Datum(200))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 100, row)

	_, found, err = fs.FindRow(ctx, schema.Uint32Datum(201))
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCheckRowPresent(t *testing.T) {
	fs := openFixture(t, 1000, sequentialKeys)
	ctx := context.Background()

	present, err := fs.CheckRowPresent(ctx, schema.Uint32Datum(500))
	require.NoError(t, err)
	assert.True(t, present)

	// Never a false positive, whatever the filter says.
	for k := 1000; k < 1200; k++ {
		present, err := fs.CheckRowPresent(ctx, schema.Uint32Datum(uint32(k)))
		require.NoError(t, err)
		require.False(t, present, "key %d", k)
	}

	present, err = fs.CheckRowPresent(ctx, schema.Uint32Datum(5000))
	require.NoError(t, err)
	assert.False(t, present)
}

func TestCheckRowPresentWithoutBloom(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 100, sequentialKeys)

	// A rowset without a filter file: the fast path is simply disabled.
	noBloom := blobstore.NewMemoryStore()
	for _, name := range []string{"key", "val", "name"} {
		blob, err := store.Open(context.Background(), ColumnFileName(name))
		require.NoError(t, err)
		m := blob.(blobstore.Mappable)
		data, err := m.Bytes()
		require.NoError(t, err)
		noBloom.Put(ColumnFileName(name), data)
	}

	fs := New(noBloom, "mem:nobloom", testSchema(t))
	defer fs.Close()
	ctx := context.Background()
	require.NoError(t, fs.OpenAllColumns(ctx))

	present, err := fs.CheckRowPresent(ctx, schema.Uint32Datum(50))
	require.NoError(t, err)
	assert.True(t, present)

	present, err = fs.CheckRowPresent(ctx, schema.Uint32Datum(12345))
	require.NoError(t, err)
	assert.False(t, present)
}

// countingStore counts ReadAt calls per blob name.
type countingStore struct {
	inner blobstore.BlobStore

	mu    sync.Mutex
	reads map[string]*atomic.Int64
}

func newCountingStore(inner blobstore.BlobStore) *countingStore {
	return &countingStore{inner: inner, reads: make(map[string]*atomic.Int64)}
}

func (s *countingStore) counter(name string) *atomic.Int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.reads[name]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.reads[name] = c
	return c
}

func (s *countingStore) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	b, err := s.inner.Open(ctx, name)
	if err != nil {
		return nil, err
	}
	return &countingBlob{inner: b, reads: s.counter(name)}, nil
}

type countingBlob struct {
	inner blobstore.Blob
	reads *atomic.Int64
}

func (b *countingBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	b.reads.Add(1)
	return b.inner.ReadAt(ctx, p, off)
}

func (b *countingBlob) Size() int64 { return b.inner.Size() }

func (b *countingBlob) Close() error { return b.inner.Close() }

func TestBloomNegativeSkipsKeySearch(t *testing.T) {
	mem := blobstore.NewMemoryStore()
	writeFixture(t, mem, 1000, sequentialKeys)
	store := newCountingStore(mem)
	ctx := context.Background()

	fs := New(store, "mem:counted", testSchema(t))
	defer fs.Close()
	require.NoError(t, fs.OpenAllColumns(ctx))

	keyReads := store.counter(ColumnFileName("key"))
	base := keyReads.Load() // header + index reads from open

	// Probe many absent keys; the filter answers almost all of them without
	// touching the key column. A handful of false positives may slip
	// through at the 1% target rate.
	probes := int64(0)
	for k := 100_000; k < 101_000; k++ {
		present, err := fs.CheckRowPresent(ctx, schema.Uint32Datum(uint32(k)))
		require.NoError(t, err)
		require.False(t, present)
		probes++
	}
	searched := keyReads.Load() - base
	assert.Less(t, searched, probes/10, "bloom filter should answer most absent-key probes")
}

func TestRefCountingKeepsFilesOpen(t *testing.T) {
	store := blobstore.NewMemoryStore()
	writeFixture(t, store, 100, sequentialKeys)
	ctx := context.Background()

	fs := New(store, "mem:refs", testSchema(t))
	require.NoError(t, fs.OpenAllColumns(ctx))

	proj, err := testSchema(t).Project("val")
	require.NoError(t, err)
	it, err := fs.NewIterator(proj)
	require.NoError(t, err)
	require.NoError(t, it.Init(ctx, nil))

	// Owner retires the rowset while the scan is in flight.
	require.NoError(t, fs.Close())

	n, err := it.PrepareBatch(10)
	require.NoError(t, err)
	require.Equal(t, 10, n)
	dst := cfile.NewColumnBlock(schema.TypeInt64, 10)
	require.NoError(t, it.MaterializeColumn(ctx, 0, dst))
	assert.Equal(t, int64(0), dst.Int64s()[0])
	require.NoError(t, it.FinishBatch())

	// The iterator held the last reference.
	require.NoError(t, it.Close())
	_, err = fs.NewIterator(proj)
	require.ErrorIs(t, err, ErrNotOpen)
}

// fakeRowSet simulates a rowset without files, exercising the RowSet
// interface the way fault-injecting doubles do.
type fakeRowSet struct {
	keys map[uint32]int
}

func (f *fakeRowSet) CountRows() (int, error) { return len(f.keys), nil }

func (f *fakeRowSet) FindRow(_ context.Context, key schema.Datum) (int, bool, error) {
	row, ok := f.keys[key.Uint32()]
	return row, ok, nil
}

func (f *fakeRowSet) CheckRowPresent(ctx context.Context, key schema.Datum) (bool, error) {
	_, found, err := f.FindRow(ctx, key)
	return found, err
}

func (f *fakeRowSet) NewIterator(*schema.Schema) (ScanIterator, error) {
	return nil, ErrNotOpen
}

func TestRowSetInterfaceDouble(t *testing.T) {
	var rs RowSet = &fakeRowSet{keys: map[uint32]int{7: 0, 9: 1}}

	present, err := rs.CheckRowPresent(context.Background(), schema.Uint32Datum(7))
	require.NoError(t, err)
	assert.True(t, present)

	present, err = rs.CheckRowPresent(context.Background(), schema.Uint32Datum(8))
	require.NoError(t, err)
	assert.False(t, present)
}
