package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := New([]ColumnSchema{
		{Name: "key", Type: TypeUint32},
		{Name: "value", Type: TypeInt64},
		{Name: "name", Type: TypeString},
	}, 1)
	require.NoError(t, err)
	return s
}

func TestNewValidation(t *testing.T) {
	_, err := New(nil, 1)
	require.ErrorIs(t, err, ErrNoColumns)

	_, err = New([]ColumnSchema{{Name: "a", Type: TypeUint32}}, 0)
	require.ErrorIs(t, err, ErrInvalidKeyCount)

	_, err = New([]ColumnSchema{{Name: "a", Type: TypeUint32}}, 2)
	require.ErrorIs(t, err, ErrInvalidKeyCount)

	_, err = New([]ColumnSchema{
		{Name: "a", Type: TypeUint32},
		{Name: "a", Type: TypeInt64},
	}, 1)
	require.ErrorIs(t, err, ErrDuplicateColumn)
}

func TestLookup(t *testing.T) {
	s := testSchema(t)

	assert.Equal(t, 3, s.NumColumns())
	assert.Equal(t, 1, s.NumKeyColumns())
	assert.Equal(t, 0, s.ColumnIndex("key"))
	assert.Equal(t, 2, s.ColumnIndex("name"))
	assert.Equal(t, -1, s.ColumnIndex("missing"))
	assert.True(t, s.IsKeyColumn(0))
	assert.False(t, s.IsKeyColumn(1))
}

func TestProject(t *testing.T) {
	s := testSchema(t)

	p, err := s.Project("name", "key")
	require.NoError(t, err)
	assert.Equal(t, 2, p.NumColumns())
	assert.Equal(t, "name", p.Column(0).Name)

	_, err = s.Project("ghost")
	var notFound *ErrColumnNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "ghost", notFound.Name)
}

func TestProjectionMapping(t *testing.T) {
	s := testSchema(t)

	p, err := s.Project("name", "value")
	require.NoError(t, err)

	mapping, err := s.ProjectionMapping(p)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 1}, mapping)

	// Same name, wrong type.
	bad := MustNew([]ColumnSchema{{Name: "value", Type: TypeString}}, 1)
	_, err = s.ProjectionMapping(bad)
	require.Error(t, err)
}

func TestDatumCompare(t *testing.T) {
	assert.Equal(t, -1, Uint32Datum(1).Compare(Uint32Datum(2)))
	assert.Equal(t, 0, Uint32Datum(7).Compare(Uint32Datum(7)))
	assert.Equal(t, 1, Uint64Datum(9).Compare(Uint64Datum(3)))

	// Signed ordering must survive the uint64 representation.
	assert.Equal(t, -1, Int64Datum(-5).Compare(Int64Datum(3)))
	assert.Equal(t, 1, Int64Datum(0).Compare(Int64Datum(-1)))

	assert.Equal(t, -1, StringDatum("abc").Compare(StringDatum("abd")))
	assert.Equal(t, 0, StringDatum("").Compare(StringDatum("")))
}

func TestDatumEncodeDecode(t *testing.T) {
	cases := []Datum{
		Uint32Datum(42),
		Uint64Datum(1 << 40),
		Int64Datum(-12345),
		StringDatum("hello"),
		StringDatum(""),
	}
	for _, d := range cases {
		enc := d.Encode(nil)
		got, err := DecodeDatum(d.Type(), enc)
		require.NoError(t, err)
		assert.Equal(t, 0, d.Compare(got), "datum %s", d)
	}

	_, err := DecodeDatum(TypeUint32, []byte{1, 2})
	require.Error(t, err)
}
