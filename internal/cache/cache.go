// Package cache provides LRU caching for decoded column file blocks.
//
// All cached data is immutable: entries are keyed by file path and block
// ordinal, and the files they come from are never rewritten, so the cache
// needs no invalidation path.
package cache

import "context"

// Key identifies one block of one immutable file.
type Key struct {
	// Path identifies the source file within its blob store.
	Path string
	// Block is the block ordinal within the file.
	Block uint32
}

// BlockCache is a byte-oriented cache for immutable blocks.
// Returned slices must be treated as read-only.
type BlockCache interface {
	// Get returns a cached block. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a block. The caller must treat b as immutable afterwards.
	Set(ctx context.Context, key Key, b []byte)
	// Stats returns hit/miss counters.
	Stats() (hits, misses int64)
}
