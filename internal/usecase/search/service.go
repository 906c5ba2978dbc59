package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/outcome"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	domsearch "github.com/kailas-cloud/synapse/internal/domain/search"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
	"github.com/kailas-cloud/synapse/internal/metrics"
)

// Service runs the FIND/FOUND state machine: Init → Searching → {Found, Abandoned}.
type Service struct {
	tags     TagRegistry
	members  Membership
	resolver Resolver
	alloc    BudgetAllocator
	scorer   PeerScorer
	table    Table

	forwarder  Forwarder
	hopTimeout time.Duration

	local       string
	ttl         int
	budget      float64
	parallelism int
	logger      *zap.Logger
}

// New creates a search engine for the node reachable at local.
func New(
	tags TagRegistry, members Membership, resolver Resolver,
	alloc BudgetAllocator, scorer PeerScorer, table Table,
	local string, logger *zap.Logger,
) *Service {
	def := domain.DefaultProtocolConfig()
	return &Service{
		tags:        tags,
		members:     members,
		resolver:    resolver,
		alloc:       alloc,
		scorer:      scorer,
		table:       table,
		hopTimeout:  def.HopTimeout,
		local:       local,
		ttl:         def.TTL,
		budget:      def.ReplicationBudget,
		parallelism: def.Parallelism,
		logger:      logger,
	}
}

// WithDefaults sets the ttl and replication budget given to new searches.
func (s *Service) WithDefaults(ttl int, budget float64) *Service {
	if ttl >= 0 {
		s.ttl = ttl
	}
	s.budget = budget
	return s
}

// WithParallelism bounds how many branches of one level run at once.
func (s *Service) WithParallelism(n int) *Service {
	if n > 0 {
		s.parallelism = n
	}
	return s
}

// WithForwarder sends branches addressed to other nodes over the network,
// each under a wall-clock timeout of hopTimeout.
func (s *Service) WithForwarder(f Forwarder, hopTimeout time.Duration) *Service {
	s.forwarder = f
	if hopTimeout > 0 {
		s.hopTimeout = hopTimeout
	}
	return s
}

// Operate starts a GET or PUT on behalf of source.
// Storage errors come back unmodified alongside the partial report.
func (s *Service) Operate(
	ctx context.Context, code op.Code, key string, value []byte, source string,
) (outcome.Report, error) {
	if !code.IsValid() {
		return outcome.Report{}, fmt.Errorf("%w: unknown op code %q", domain.ErrInvalidOperation, code)
	}
	if s.members.Snapshot().IsEmpty() {
		return outcome.Report{}, domain.ErrEmptyMembership
	}

	sc, err := domsearch.New(code, key, value, tag.New(source), s.ttl, s.budget, s.local)
	if err != nil {
		return outcome.Report{}, err
	}

	report := s.Find(ctx, sc)
	metrics.SearchesTotal.WithLabelValues(string(code), string(report.Summary())).Inc()

	s.logger.Debug("Operation finished",
		zap.String("code", string(code)),
		zap.String("key", key),
		zap.String("tag", sc.Tag().String()),
		zap.String("summary", string(report.Summary())),
		zap.Int("branches", len(report.Outcomes())),
	)

	if err := report.StorageErr(); err != nil {
		return report, err
	}
	return report, nil
}

// Find runs a search from sc until every branch is found, abandoned or
// forwarded. Branches are processed level by level from an explicit queue.
// Cancelling ctx stops further levels from being dispatched.
func (s *Service) Find(ctx context.Context, sc domsearch.Context) outcome.Report {
	c := &collector{}
	level := []domsearch.Context{sc}

	for len(level) > 0 && ctx.Err() == nil {
		level = s.runLevel(ctx, level, c)
	}

	return outcome.NewReport(sc.Tag(), sc.Code(), sc.Key(), c.outcomes)
}

// Found handles a responsible peer: records the responder, then reads (GET) or
// writes (PUT) the peer's table. A negative mrr stops replication without a write.
func (s *Service) Found(
	ctx context.Context, code op.Code, p peer.ID, mrr float64,
	key string, value []byte, source string,
) outcome.Outcome {
	s.scorer.RecordOutcome(p, source)

	var out outcome.Outcome
	switch code {
	case op.Get:
		out = s.read(ctx, p, key)
	case op.Put:
		if mrr < 0 {
			s.logger.Debug("Replication stopped",
				zap.String("peer", p.String()),
				zap.String("key", key),
				zap.Float64("mrr", mrr),
			)
			out = outcome.ReplicationExhausted(p)
		} else {
			out = s.write(ctx, p, key, value)
		}
	default:
		out = outcome.Error(p, fmt.Errorf("%w: unknown op code %q", domain.ErrInvalidOperation, code))
	}

	metrics.FoundTotal.WithLabelValues(string(code), string(out.Status())).Inc()
	return out
}

func (s *Service) runLevel(
	ctx context.Context, level []domsearch.Context, c *collector,
) []domsearch.Context {
	if s.parallelism <= 1 || len(level) == 1 {
		var next []domsearch.Context
		for _, sc := range level {
			forks, outs := s.step(ctx, sc)
			c.add(outs...)
			next = append(next, forks...)
		}
		return next
	}

	var (
		mu   sync.Mutex
		next []domsearch.Context
		wg   sync.WaitGroup
	)
	sem := make(chan struct{}, s.parallelism)

	for _, sc := range level {
		wg.Add(1)
		sem <- struct{}{}
		go func(sc domsearch.Context) {
			defer wg.Done()
			defer func() { <-sem }()

			forks, outs := s.step(ctx, sc)
			c.add(outs...)
			mu.Lock()
			next = append(next, forks...)
			mu.Unlock()
		}(sc)
	}
	wg.Wait()
	return next
}

// step evaluates one FIND: abandon checks, then one pass over the membership
// snapshot taken now. Returns the local forks to run next and the outcomes
// produced by this step.
func (s *Service) step(ctx context.Context, sc domsearch.Context) ([]domsearch.Context, []outcome.Outcome) {
	if sc.TTL() <= 0 {
		return nil, []outcome.Outcome{s.abandon(sc, outcome.ReasonTTLExpired)}
	}
	if s.tags.MarkAndCheck(sc.Tag()) {
		return nil, []outcome.Outcome{s.abandon(sc, outcome.ReasonAlreadyProcessed)}
	}
	metrics.SearchStepsTotal.WithLabelValues("processed").Inc()

	view := s.members.Snapshot()
	shares := s.alloc.Allocate(sc.Budget(), view)

	var (
		forks []domsearch.Context
		outs  []outcome.Outcome
	)
	for _, p := range view.Peers() {
		switch {
		case s.resolver.IsResponsible(view, p, sc.Key()):
			outs = append(outs, s.Found(ctx, sc.Code(), p, sc.Budget(), sc.Key(), sc.Value(), sc.Destination()))

		case s.scorer.IsGoodDeal(p, sc.Destination()):
			hop, err := s.resolver.NextHop(view, sc.Key())
			if err != nil {
				continue
			}
			fork := sc.Fork(shares[p], hop.String())
			s.logger.Debug("Dispatching FIND",
				zap.String("tag", sc.Tag().String()),
				zap.String("via", p.String()),
				zap.String("hop", hop.String()),
				zap.Int("ttl", fork.TTL()),
				zap.Float64("share", fork.Budget()),
			)
			if s.isRemote(fork) {
				outs = append(outs, s.forward(ctx, fork))
				continue
			}
			metrics.ForwardsTotal.WithLabelValues("local", "ok").Inc()
			forks = append(forks, fork)
		}
	}
	return forks, outs
}

func (s *Service) abandon(sc domsearch.Context, reason outcome.Reason) outcome.Outcome {
	metrics.SearchStepsTotal.WithLabelValues(string(reason)).Inc()
	s.logger.Debug("Search abandoned",
		zap.String("tag", sc.Tag().String()),
		zap.String("reason", string(reason)),
		zap.Int("ttl", sc.TTL()),
	)
	return outcome.Abandoned(reason, sc.Destination())
}

func (s *Service) isRemote(sc domsearch.Context) bool {
	return s.forwarder != nil && sc.Destination() != s.local
}

func (s *Service) forward(ctx context.Context, sc domsearch.Context) outcome.Outcome {
	ctx, cancel := context.WithTimeout(ctx, s.hopTimeout)
	defer cancel()

	if err := s.forwarder.Forward(ctx, message.FindFromContext(sc)); err != nil {
		metrics.ForwardsTotal.WithLabelValues("remote", "error").Inc()
		s.logger.Warn("Failed to forward FIND",
			zap.String("tag", sc.Tag().String()),
			zap.String("destination", sc.Destination()),
			zap.Error(err),
		)
		return outcome.ForwardFailed(sc.Destination(), &domain.ForwardError{Destination: sc.Destination(), Err: err})
	}
	metrics.ForwardsTotal.WithLabelValues("remote", "ok").Inc()
	return outcome.Forwarded(sc.Destination())
}

func (s *Service) read(ctx context.Context, p peer.ID, key string) outcome.Outcome {
	start := time.Now()
	value, err := s.table.Read(ctx, p, key)
	metrics.StorageDuration.WithLabelValues("read").Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, domain.ErrNotFound):
		return outcome.NotFound(p)
	case err != nil:
		s.logger.Error("Table read failed",
			zap.String("peer", p.String()),
			zap.String("key", key),
			zap.Error(err),
		)
		return outcome.Error(p, err)
	}
	return outcome.Found(p, value)
}

func (s *Service) write(ctx context.Context, p peer.ID, key string, value []byte) outcome.Outcome {
	start := time.Now()
	err := s.table.Write(ctx, p, key, value)
	metrics.StorageDuration.WithLabelValues("write").Observe(time.Since(start).Seconds())

	if err != nil {
		s.logger.Error("Table write failed",
			zap.String("peer", p.String()),
			zap.String("key", key),
			zap.Error(err),
		)
		return outcome.Error(p, err)
	}
	return outcome.Stored(p)
}

// collector gathers branch outcomes from concurrent steps.
type collector struct {
	mu       sync.Mutex
	outcomes []outcome.Outcome
}

func (c *collector) add(outs ...outcome.Outcome) {
	if len(outs) == 0 {
		return
	}
	c.mu.Lock()
	c.outcomes = append(c.outcomes, outs...)
	c.mu.Unlock()
}
