package tags

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain/tag"
	"github.com/kailas-cloud/synapse/internal/metrics"
)

// Registry remembers which search tags this node already processed.
// MarkAndCheck is a test-and-set under one mutex, so concurrent branches of the
// same search (or colliding searches) never both proceed.
type Registry struct {
	mu        sync.Mutex
	seen      map[tag.Tag]time.Time
	retention time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

// New creates a registry that keeps tags forever.
func New(logger *zap.Logger) *Registry {
	return &Registry{
		seen:   make(map[tag.Tag]time.Time),
		now:    time.Now,
		logger: logger,
	}
}

// WithRetention bounds memory: tags older than d are forgotten on Sweep.
// Zero keeps every tag for the lifetime of the process.
func (r *Registry) WithRetention(d time.Duration) *Registry {
	r.retention = d
	return r
}

// WithClock overrides the time source.
func (r *Registry) WithClock(now func() time.Time) *Registry {
	r.now = now
	return r
}

// MarkAndCheck returns true if t was already processed (the branch must be
// abandoned). Otherwise it marks t and returns false.
func (r *Registry) MarkAndCheck(t tag.Tag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seenAt, ok := r.seen[t]; ok {
		// Unswept entries past retention are treated as new.
		if r.retention <= 0 || r.now().Sub(seenAt) < r.retention {
			return true
		}
	}
	r.seen[t] = r.now()
	metrics.TagsTracked.Set(float64(len(r.seen)))
	return false
}

// Seen reports whether t is currently marked, without marking it.
func (r *Registry) Seen(t tag.Tag) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	seenAt, ok := r.seen[t]
	if !ok {
		return false
	}
	return r.retention <= 0 || r.now().Sub(seenAt) < r.retention
}

// Len returns the number of tracked tags.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

// Sweep removes tags older than the retention window and returns how many were dropped.
func (r *Registry) Sweep() int {
	if r.retention <= 0 {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-r.retention)
	dropped := 0
	for t, seenAt := range r.seen {
		if seenAt.Before(cutoff) || seenAt.Equal(cutoff) {
			delete(r.seen, t)
			dropped++
		}
	}
	metrics.TagsTracked.Set(float64(len(r.seen)))
	return dropped
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.retention <= 0 || interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("Swept expired search tags", zap.Int("dropped", n))
			}
		}
	}
}
