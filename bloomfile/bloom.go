// Package bloomfile implements the rowset membership filter file.
//
// The filter answers "key definitely absent" or "key maybe present"; it can
// never confirm presence. A negative answer lets lookups skip the key column
// entirely, which is the whole point: absent-key probes are common in
// upsert-heavy workloads and should not cost a disk search.
package bloomfile

import (
	"errors"
	"math"
)

// ErrCorruptFilter indicates the filter payload is invalid.
var ErrCorruptFilter = errors.New("bloomfile: corrupted filter data")

// filter is a standard bloom filter over encoded keys: a word-aligned bit
// array probed by k double-hashed positions.
type filter struct {
	bits    []uint64
	numBits uint64
	k       uint32
	count   uint32
}

// filterSize computes the bit-array size and hash count for the expected
// number of keys and target false-positive rate.
func filterSize(expectedKeys int, falsePositiveRate float64) (numBits uint64, k uint32) {
	if expectedKeys <= 0 {
		expectedKeys = 1
	}
	if falsePositiveRate <= 0 || falsePositiveRate >= 1 {
		falsePositiveRate = 0.01
	}

	// m = -n*ln(p) / ln(2)^2, k = (m/n)*ln(2)
	ln2Sq := math.Ln2 * math.Ln2
	m := float64(-expectedKeys) * math.Log(falsePositiveRate) / ln2Sq
	kFloat := (m / float64(expectedKeys)) * math.Ln2

	numBits = ((uint64(m) + 63) / 64) * 64
	if numBits < 64 {
		numBits = 64
	}
	k = uint32(math.Ceil(kFloat))
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return numBits, k
}

func newFilter(numBits uint64, k uint32) *filter {
	numBits = ((numBits + 63) / 64) * 64
	if numBits < 64 {
		numBits = 64
	}
	if k < 1 {
		k = 1
	}
	if k > 16 {
		k = 16
	}
	return &filter{
		bits:    make([]uint64, numBits/64),
		numBits: numBits,
		k:       k,
	}
}

func (f *filter) add(key []byte) {
	h1, h2 := bloomHash(key)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		f.bits[bit/64] |= 1 << (bit % 64)
	}
	f.count++
}

func (f *filter) mayContain(key []byte) bool {
	h1, h2 := bloomHash(key)
	for i := uint32(0); i < f.k; i++ {
		bit := (h1 + uint64(i)*h2) % f.numBits
		if f.bits[bit/64]&(1<<(bit%64)) == 0 {
			return false
		}
	}
	return true
}

// bloomHash computes two independent FNV-1a hashes for double hashing.
func bloomHash(b []byte) (h1, h2 uint64) {
	const (
		fnvOffset = 14695981039346656037
		fnvPrime  = 1099511628211
	)

	h1 = fnvOffset
	for i := 0; i < len(b); i++ {
		h1 ^= uint64(b[i])
		h1 *= fnvPrime
	}

	h2 = fnvOffset ^ 0x5555555555555555
	for i := len(b) - 1; i >= 0; i-- {
		h2 ^= uint64(b[i])
		h2 *= fnvPrime
	}

	// Odd h2 gives a full-period probe sequence.
	h2 |= 1
	return h1, h2
}
