package domain

import "time"

// KeyPrefix namespaces every key synapse writes to the shared store.
const KeyPrefix = "synapse:"

// ProtocolConfig holds the per-node search defaults.
type ProtocolConfig struct {
	TTL               int
	ReplicationBudget float64
	Parallelism       int
	HopTimeout        time.Duration
	TagRetention      time.Duration
	GoodDealThreshold float64
}

// DefaultProtocolConfig returns the reference defaults: ten hops, a replication
// budget of ten, sequential fan-out and tags that are never evicted.
func DefaultProtocolConfig() ProtocolConfig {
	return ProtocolConfig{
		TTL:               10,
		ReplicationBudget: 10,
		Parallelism:       1,
		HopTimeout:        2 * time.Second,
		TagRetention:      0,
		GoodDealThreshold: 0.5,
	}
}
