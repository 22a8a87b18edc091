package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUBasic(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1024)

	k := Key{Path: "rs0/key.cf", Block: 0}
	_, ok := c.Get(ctx, k)
	assert.False(t, ok)

	c.Set(ctx, k, []byte("block-zero"))
	b, ok := c.Get(ctx, k)
	require.True(t, ok)
	assert.Equal(t, "block-zero", string(b))

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRUEviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(300)

	block := make([]byte, 100)
	for i := uint32(0); i < 3; i++ {
		c.Set(ctx, Key{Path: "f", Block: i}, block)
	}
	assert.Equal(t, 3, c.Len())

	// Touch block 0 so block 1 is the eviction victim.
	_, ok := c.Get(ctx, Key{Path: "f", Block: 0})
	require.True(t, ok)

	c.Set(ctx, Key{Path: "f", Block: 3}, block)
	assert.Equal(t, 3, c.Len())

	_, ok = c.Get(ctx, Key{Path: "f", Block: 1})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Path: "f", Block: 0})
	assert.True(t, ok)
}

func TestLRUOversizedValue(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(10)

	c.Set(ctx, Key{Path: "f", Block: 0}, make([]byte, 100))
	assert.Equal(t, 0, c.Len())
}

func TestLRUReplace(t *testing.T) {
	ctx := context.Background()
	c := NewLRUBlockCache(1024)

	k := Key{Path: "f", Block: 0}
	c.Set(ctx, k, []byte("old"))
	c.Set(ctx, k, []byte("newer-value"))

	b, ok := c.Get(ctx, k)
	require.True(t, ok)
	assert.Equal(t, "newer-value", string(b))
	assert.Equal(t, 1, c.Len())
}
