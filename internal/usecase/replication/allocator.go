package replication

import "github.com/kailas-cloud/synapse/internal/domain/peer"

// Allocator splits a branch's replication budget across peers.
type Allocator struct{}

// New creates an allocator.
func New() *Allocator { return &Allocator{} }

// Allocate gives every peer of the full view total/|view|, whether or not the
// peer is forwarded to this step. Shares sum to total.
func (a *Allocator) Allocate(total float64, view peer.View) map[peer.ID]float64 {
	shares := make(map[peer.ID]float64, view.Len())
	if view.IsEmpty() {
		return shares
	}
	share := total / float64(view.Len())
	for _, p := range view.Peers() {
		shares[p] = share
	}
	return shares
}
