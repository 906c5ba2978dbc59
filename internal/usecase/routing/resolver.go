package routing

import (
	"fmt"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// Partitioner names a key → peer partition function.
type Partitioner string

// Supported partitioners.
const (
	// PartitionModulo assigns hash(key) mod |view| (reference behavior).
	PartitionModulo Partitioner = "modulo"
	// PartitionRing assigns keys on a consistent-hash ring.
	PartitionRing Partitioner = "ring"
)

// IsValid checks if the partitioner is supported.
func (p Partitioner) IsValid() bool {
	return p == PartitionModulo || p == PartitionRing
}

// Resolver decides which peer of a membership view owns a key.
// Responsibility is a function of the view passed in, so concurrent membership
// changes can move keys between steps of the same search.
type Resolver interface {
	IsResponsible(view peer.View, p peer.ID, key string) bool
	NextHop(view peer.View, key string) (peer.ID, error)
}

// New builds the resolver for partitioner p.
func New(p Partitioner, hasher Hasher) (Resolver, error) {
	if hasher == nil {
		hasher = XXHasher{}
	}
	switch p {
	case PartitionModulo, "":
		return NewModulo(hasher), nil
	case PartitionRing:
		return NewRing(hasher), nil
	default:
		return nil, fmt.Errorf("unknown partitioner %q", p)
	}
}

// Modulo is the hash(key) mod |view| partition.
type Modulo struct {
	hasher Hasher
}

// NewModulo creates a modulo resolver.
func NewModulo(hasher Hasher) *Modulo {
	return &Modulo{hasher: hasher}
}

// Index returns the position of the responsible peer in a view of size n.
func (m *Modulo) Index(key string, n int) int {
	return int(m.hasher.Sum64([]byte(key)) % uint64(n))
}

// IsResponsible reports whether p sits at hash(key) mod |view|.
func (m *Modulo) IsResponsible(view peer.View, p peer.ID, key string) bool {
	if view.IsEmpty() {
		return false
	}
	idx := view.IndexOf(p)
	return idx >= 0 && idx == m.Index(key, view.Len())
}

// NextHop returns the peer at hash(key) mod |view|.
func (m *Modulo) NextHop(view peer.View, key string) (peer.ID, error) {
	if view.IsEmpty() {
		return "", domain.ErrEmptyMembership
	}
	return view.At(m.Index(key, view.Len())), nil
}
