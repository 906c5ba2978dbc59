package membership

import (
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain/peer"
	"github.com/kailas-cloud/synapse/internal/metrics"
)

// Service is the node's mutable view of known peers.
// Reads hand out immutable snapshots; every insertion bumps the version.
type Service struct {
	mu      sync.RWMutex
	peers   []peer.ID
	index   map[peer.ID]struct{}
	version uint64
	judge   DealJudge
	logger  *zap.Logger
}

// New creates a membership seeded with initial peers.
func New(judge DealJudge, logger *zap.Logger, initial ...peer.ID) *Service {
	s := &Service{
		index:  make(map[peer.ID]struct{}),
		judge:  judge,
		logger: logger,
	}
	for _, p := range initial {
		s.Insert(p)
	}
	return s
}

// Insert appends p if it is not known yet. Returns true if p was added.
func (s *Service) Insert(p peer.ID) bool {
	if p == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[p]; ok {
		return false
	}
	s.index[p] = struct{}{}
	s.peers = append(s.peers, p)
	s.version++
	metrics.MembershipSize.Set(float64(len(s.peers)))
	return true
}

// Contains reports whether p is a member.
func (s *Service) Contains(p peer.ID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.index[p]
	return ok
}

// Len returns the number of members.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// Snapshot returns the current ordered view.
func (s *Service) Snapshot() peer.View {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return peer.NewView(s.peers, s.version)
}

// Join accepts an invite for p coming from source if the judge deems it a good
// deal. Returns true when p is a member afterwards because of this call or an
// earlier one.
func (s *Service) Join(p peer.ID, source string) bool {
	if !s.judge.IsGoodDeal(p, source) {
		metrics.InvitesTotal.WithLabelValues("declined").Inc()
		s.logger.Debug("Invite declined",
			zap.String("peer", p.String()),
			zap.String("source", source),
		)
		return false
	}

	if s.Insert(p) {
		metrics.InvitesTotal.WithLabelValues("accepted").Inc()
		s.logger.Info("Peer joined",
			zap.String("peer", p.String()),
			zap.String("source", source),
		)
	} else {
		metrics.InvitesTotal.WithLabelValues("duplicate").Inc()
	}
	return s.Contains(p)
}
