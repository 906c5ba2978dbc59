package scoring

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

const persistTimeout = 2 * time.Second

// RecordStore is the persistence interface for the good-deal record.
type RecordStore interface {
	Save(ctx context.Context, p peer.ID, address string) error
	LoadAll(ctx context.Context) (map[peer.ID]string, error)
}

// Scorer judges whether forwarding to (or accepting) a peer is a good deal, and
// owns the good-deal record: the last address each peer answered from.
// IsGoodDeal only reads the record; RecordOutcome is the only writer.
type Scorer struct {
	mu        sync.RWMutex
	record    map[peer.ID]Entry
	strategy  Strategy
	threshold float64
	store     RecordStore
	logger    *zap.Logger
}

// New creates a scorer. A nil strategy means History.
func New(strategy Strategy, threshold float64, logger *zap.Logger) *Scorer {
	if strategy == nil {
		strategy = History{}
	}
	return &Scorer{
		record:    make(map[peer.ID]Entry),
		strategy:  strategy,
		threshold: threshold,
		logger:    logger,
	}
}

// WithStore attaches a persistence store and loads the saved record.
func (s *Scorer) WithStore(ctx context.Context, store RecordStore) *Scorer {
	s.store = store

	saved, err := store.LoadAll(ctx)
	if err != nil {
		s.logger.Warn("Failed to load good-deal record from store", zap.Error(err))
		return s
	}

	s.mu.Lock()
	for p, addr := range saved {
		if _, ok := s.record[p]; !ok {
			s.record[p] = Entry{Address: addr, Hits: 1}
		}
	}
	n := len(s.record)
	s.mu.Unlock()

	s.logger.Info("Good-deal record loaded from store", zap.Int("peers", n))
	return s
}

// IsGoodDeal reports whether p scores at or above the threshold for source.
func (s *Scorer) IsGoodDeal(p peer.ID, source string) bool {
	return s.Score(p, source) >= s.threshold
}

// Score returns the strategy score of p for source against the current record.
func (s *Scorer) Score(p peer.ID, source string) float64 {
	s.mu.RLock()
	entry, ok := s.record[p]
	s.mu.RUnlock()

	if !ok {
		return s.strategy.Score(p, source, nil)
	}
	return s.strategy.Score(p, source, &entry)
}

// RecordOutcome stores address as the last responder for p (last write wins),
// then persists it write-behind when a store is attached.
func (s *Scorer) RecordOutcome(p peer.ID, address string) {
	s.mu.Lock()
	entry := s.record[p]
	entry.Address = address
	entry.Hits++
	s.record[p] = entry
	store := s.store
	s.mu.Unlock()

	if store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := store.Save(ctx, p, address); err != nil {
		s.logger.Warn("Failed to persist good-deal entry",
			zap.String("peer", p.String()),
			zap.Error(err),
		)
	}
}

// Lookup returns the record entry for p.
func (s *Scorer) Lookup(p peer.ID) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.record[p]
	return e, ok
}

// Record returns a copy of the good-deal record.
func (s *Scorer) Record() map[peer.ID]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[peer.ID]Entry, len(s.record))
	for p, e := range s.record {
		out[p] = e
	}
	return out
}
