package routing

import (
	"sync"

	"github.com/buraksezer/consistent"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// Ring parameters, same as the partition layout used for storage rings.
const (
	ringPartitionCount    = 271
	ringReplicationFactor = 20
	ringLoad              = 1.25
)

// ringMember adapts peer.ID to consistent.Member.
type ringMember peer.ID

func (m ringMember) String() string { return string(m) }

// Ring partitions keys over a consistent-hash ring built from the view.
// Rings are cached per view version; a new version rebuilds the ring.
type Ring struct {
	hasher Hasher

	mu      sync.Mutex
	version uint64
	ring    *consistent.Consistent
}

// NewRing creates a ring resolver.
func NewRing(hasher Hasher) *Ring {
	return &Ring{hasher: hasher}
}

// IsResponsible reports whether the ring locates key on p.
func (r *Ring) IsResponsible(view peer.View, p peer.ID, key string) bool {
	owner, err := r.NextHop(view, key)
	return err == nil && owner == p
}

// NextHop returns the ring owner of key.
func (r *Ring) NextHop(view peer.View, key string) (peer.ID, error) {
	if view.IsEmpty() {
		return "", domain.ErrEmptyMembership
	}
	member := r.ringFor(view).LocateKey([]byte(key))
	if member == nil {
		return "", domain.ErrEmptyMembership
	}
	return peer.ID(member.String()), nil
}

func (r *Ring) ringFor(view peer.View) *consistent.Consistent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ring != nil && r.version == view.Version() {
		return r.ring
	}

	members := make([]consistent.Member, 0, view.Len())
	for _, p := range view.Peers() {
		members = append(members, ringMember(p))
	}
	r.ring = consistent.New(members, consistent.Config{
		PartitionCount:    ringPartitionCount,
		ReplicationFactor: ringReplicationFactor,
		Load:              ringLoad,
		Hasher:            r.hasher,
	})
	r.version = view.Version()
	return r.ring
}
