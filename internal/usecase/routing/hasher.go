package routing

import "github.com/cespare/xxhash/v2"

// Hasher maps bytes to a 64-bit hash. Satisfies consistent.Hasher.
type Hasher interface {
	Sum64(data []byte) uint64
}

// XXHasher hashes with xxhash64.
type XXHasher struct{}

// Sum64 implements Hasher.
func (XXHasher) Sum64(data []byte) uint64 {
	return xxhash.Sum64(data)
}
