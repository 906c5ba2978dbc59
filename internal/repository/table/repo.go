// Package table stores each peer's key/value table in the shared KV store.
package table

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/synapse/internal/db"
	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// store is the consumer interface for tables (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo implements usecase/search.Table.
type Repo struct {
	store store
}

// New creates a table repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Read returns the value stored at key in p's table.
func (r *Repo) Read(ctx context.Context, p peer.ID, key string) ([]byte, error) {
	k := tableKey(p, key)
	data, err := r.store.Get(ctx, k)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", k, err)
	}
	return data, nil
}

// Write stores value at key in p's table, overwriting any previous value.
func (r *Repo) Write(ctx context.Context, p peer.ID, key string, value []byte) error {
	k := tableKey(p, key)
	if err := r.store.Set(ctx, k, value); err != nil {
		return fmt.Errorf("set %s: %w", k, err)
	}
	return nil
}

// tableKey length-prefixes the peer so colons in host:port ids cannot shift
// the boundary between peer and key.
func tableKey(p peer.ID, key string) string {
	return domain.KeyPrefix + "table:" + strconv.Itoa(len(p)) + ":" + string(p) + ":" + key
}
