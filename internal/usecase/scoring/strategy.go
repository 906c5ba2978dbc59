package scoring

import (
	"github.com/cespare/xxhash/v2"

	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// Entry is what the good-deal record knows about one peer.
type Entry struct {
	Address string
	Hits    int64
}

// Strategy scores forwarding to a peer in [0, 1]. Implementations must be pure:
// same (peer, source, entry) → same score.
type Strategy interface {
	Score(p peer.ID, source string, entry *Entry) float64
}

// History trusts peers that already answered a FOUND and gives unknown peers a
// deterministic exploration score derived from (peer, source).
type History struct{}

// Score implements Strategy.
func (History) Score(p peer.ID, source string, entry *Entry) float64 {
	if entry != nil && entry.Hits > 0 {
		return 1
	}
	return explorationScore(p, source)
}

func explorationScore(p peer.ID, source string) float64 {
	h := xxhash.New()
	_, _ = h.WriteString(string(p))
	_, _ = h.WriteString("|")
	_, _ = h.WriteString(source)
	return float64(h.Sum64()%1000) / 1000
}

// Fixed returns the same score for every peer.
type Fixed float64

// Score implements Strategy.
func (f Fixed) Score(peer.ID, string, *Entry) float64 { return float64(f) }

// Func adapts a function to Strategy.
type Func func(p peer.ID, source string, entry *Entry) float64

// Score implements Strategy.
func (f Func) Score(p peer.ID, source string, entry *Entry) float64 { return f(p, source, entry) }
