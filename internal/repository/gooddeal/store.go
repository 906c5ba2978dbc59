// Package gooddeal persists the good-deal record (peer → last responder address)
// in one hash, so a restarted node keeps the peers it learned to trust.
package gooddeal

import (
	"context"
	"fmt"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// Key is the hash holding the record.
const Key = domain.KeyPrefix + "gooddeal"

// store is the consumer interface for the record (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// Store implements scoring.RecordStore on top of a hash.
type Store struct {
	store store
}

// New creates a good-deal record store.
func New(s store) *Store {
	return &Store{store: s}
}

// Save records address as the last responder for p.
func (s *Store) Save(ctx context.Context, p peer.ID, address string) error {
	if err := s.store.HSet(ctx, Key, map[string]string{string(p): address}); err != nil {
		return fmt.Errorf("gooddeal HSET %s: %w", p, err)
	}
	return nil
}

// LoadAll returns the whole record.
func (s *Store) LoadAll(ctx context.Context) (map[peer.ID]string, error) {
	fields, err := s.store.HGetAll(ctx, Key)
	if err != nil {
		return nil, fmt.Errorf("gooddeal HGETALL: %w", err)
	}
	out := make(map[peer.ID]string, len(fields))
	for p, addr := range fields {
		if p == "" {
			continue
		}
		out[peer.ID(p)] = addr
	}
	return out, nil
}
