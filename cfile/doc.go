// Package cfile implements the immutable column file format.
//
// One file stores the values of one column for one rowset, in row order.
// Values are grouped into blocks, each independently compressed (none, S2,
// or LZ4); a trailing block index maps ordinal ranges to block offsets and,
// for value-indexed files (key columns), records each block's first value so
// a cursor can binary-search by value across blocks.
//
// Readers are immutable and shareable; each scan opens its own Iterator,
// which tracks its own I/O statistics. Iterators read positionally: only
// seeks move the cursor, so a range can be decoded repeatedly with
// identical results.
package cfile
