package search

import (
	"context"

	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
)

// TagRegistry deduplicates search tags.
type TagRegistry interface {
	MarkAndCheck(t tag.Tag) bool
}

// Membership hands out per-step snapshots of the peer view.
type Membership interface {
	Snapshot() peer.View
}

// Resolver maps keys to responsible peers.
type Resolver interface {
	IsResponsible(view peer.View, p peer.ID, key string) bool
	NextHop(view peer.View, key string) (peer.ID, error)
}

// BudgetAllocator splits a replication budget across the view.
type BudgetAllocator interface {
	Allocate(total float64, view peer.View) map[peer.ID]float64
}

// PeerScorer judges forwarding and records FOUND outcomes.
type PeerScorer interface {
	IsGoodDeal(p peer.ID, source string) bool
	RecordOutcome(p peer.ID, address string)
}

// Table is the key/value table of each responsible peer.
// Read returns domain.ErrNotFound for a missing key.
type Table interface {
	Read(ctx context.Context, p peer.ID, key string) ([]byte, error)
	Write(ctx context.Context, p peer.ID, key string, value []byte) error
}

// Forwarder delivers a FIND message to a remote hop.
type Forwarder interface {
	Forward(ctx context.Context, m message.Find) error
}
