package membership

import "github.com/kailas-cloud/synapse/internal/domain/peer"

// DealJudge decides whether accepting a peer invite is worthwhile.
type DealJudge interface {
	IsGoodDeal(p peer.ID, source string) bool
}
