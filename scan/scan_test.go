package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mathsigit/kudu/schema"
)

func TestEqualityPredicate(t *testing.T) {
	p := Equality("key", schema.Uint32Datum(42))
	assert.True(t, p.IsEquality())
	assert.Equal(t, "key >= uint32:42 AND key <= uint32:42", p.String())
}

func TestRangePredicate(t *testing.T) {
	lo := schema.Uint32Datum(10)
	hi := schema.Uint32Datum(20)

	p := Range("key", &lo, true, &hi, false)
	assert.False(t, p.IsEquality())
	assert.Equal(t, "key >= uint32:10 AND key < uint32:20", p.String())

	open := Range("key", nil, false, nil, false)
	assert.Equal(t, "key: unbounded", open.String())
}

func TestSpecRemove(t *testing.T) {
	lo := schema.Uint32Datum(1)
	s := NewSpec(
		Range("key", &lo, true, nil, false),
		Equality("name", schema.StringDatum("x")),
	)
	require.Len(t, s.Predicates(), 2)

	s.RemovePredicate(0)
	require.Len(t, s.Predicates(), 1)
	assert.Equal(t, "name", s.Predicates()[0].Column)

	s.AddPredicate(Equality("key", schema.Uint32Datum(9)))
	require.Len(t, s.Predicates(), 2)
}

func TestSelectionVector(t *testing.T) {
	sv := NewSelectionVector(50)
	assert.Equal(t, 50, sv.Len())
	assert.Equal(t, 0, sv.CountSelected())
	assert.False(t, sv.AnySelected())

	sv.SetAllTrue()
	assert.Equal(t, 50, sv.CountSelected())
	assert.True(t, sv.IsRowSelected(0))
	assert.True(t, sv.IsRowSelected(49))

	sv.Unselect(10)
	assert.Equal(t, 49, sv.CountSelected())
	assert.False(t, sv.IsRowSelected(10))

	sv.Select(10)
	assert.True(t, sv.IsRowSelected(10))

	sv.Resize(3)
	assert.Equal(t, 3, sv.Len())
	assert.Equal(t, 0, sv.CountSelected())

	empty := NewSelectionVector(0)
	empty.SetAllTrue()
	assert.Equal(t, 0, empty.CountSelected())
}
