package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Search protocol Prometheus metrics.
var (
	SearchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "searches_total",
			Help:      "Total number of operations started on this node",
		},
		[]string{"code", "summary"},
	)

	SearchStepsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "search_steps_total",
			Help:      "FIND steps evaluated, by result",
		},
		[]string{"result"}, // "processed" / "ttl_expired" / "already_processed"
	)

	ForwardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "forwards_total",
			Help:      "FIND branches forwarded, by transport",
		},
		[]string{"transport", "status"}, // transport: "local" / "remote"
	)

	FoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "found_total",
			Help:      "FOUND events handled at responsible peers",
		},
		[]string{"code", "status"},
	)

	StorageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "synapse",
			Name:      "storage_duration_seconds",
			Help:      "Key/value table operation duration in seconds",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1},
		},
		[]string{"op"},
	)

	TagsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "synapse",
			Name:      "tags_tracked",
			Help:      "Search tags currently held by the dedup registry",
		},
	)

	MembershipSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "synapse",
			Name:      "membership_size",
			Help:      "Peers in the local membership view",
		},
	)

	InvitesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "synapse",
			Name:      "invites_total",
			Help:      "Membership invites, by decision",
		},
		[]string{"decision"}, // "accepted" / "declined" / "duplicate"
	)
)

var registerSearchOnce sync.Once

// RegisterSearchMetrics registers the protocol metrics. Must be called from main.
func RegisterSearchMetrics() {
	registerSearchOnce.Do(func() {
		prometheus.MustRegister(
			SearchesTotal,
			SearchStepsTotal,
			ForwardsTotal,
			FoundTotal,
			StorageDuration,
			TagsTracked,
			MembershipSize,
			InvitesTotal,
		)
	})
}
