package synapse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/db"
	"github.com/kailas-cloud/synapse/internal/db/memory"
	dbRedis "github.com/kailas-cloud/synapse/internal/db/redis"
	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/outcome"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
	gooddealrepo "github.com/kailas-cloud/synapse/internal/repository/gooddeal"
	tablerepo "github.com/kailas-cloud/synapse/internal/repository/table"
	"github.com/kailas-cloud/synapse/internal/transport/peerhttp"
	"github.com/kailas-cloud/synapse/internal/usecase/membership"
	"github.com/kailas-cloud/synapse/internal/usecase/replication"
	"github.com/kailas-cloud/synapse/internal/usecase/routing"
	"github.com/kailas-cloud/synapse/internal/usecase/scoring"
	searchuc "github.com/kailas-cloud/synapse/internal/usecase/search"
	"github.com/kailas-cloud/synapse/internal/usecase/tags"
)

const (
	defaultAddress          = "local"
	defaultReadinessTimeout = 10 * time.Second
)

// Result summarizes one GET or PUT.
type Result struct {
	Tag      string
	Summary  string // found, stored, not_found, replication_exhausted, abandoned, ...
	Reason   string // abandon reason when Summary is "abandoned"
	Value    []byte
	Stored   int // responsible peers that wrote the value
	Branches int
}

// Node is an embedded overlay node.
type Node struct {
	address string
	store   db.Store
	engine  *searchuc.Service
	members *membership.Service
	scorer  *scoring.Scorer
	tags    *tags.Registry
	peers   *peerhttp.Client
	logger  *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a node. Without WithValkey or WithRedis, tables live in memory.
func New(opts ...Option) (*Node, error) {
	def := domain.DefaultProtocolConfig()
	cfg := &nodeConfig{
		address:     defaultAddress,
		driver:      "memory",
		ttl:         def.TTL,
		parallelism: def.Parallelism,
		partitioner: string(routing.PartitionModulo),
		hopTimeout:  def.HopTimeout,
	}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}

	store, err := createStore(cfg)
	if err != nil {
		return nil, err
	}

	if err := store.WaitForReady(context.Background(), defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("synapse: database not ready: %w", err)
	}

	n, err := wireNode(store, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}
	return n, nil
}

func createStore(cfg *nodeConfig) (db.Store, error) {
	switch cfg.driver {
	case "memory":
		return memory.NewStore(), nil
	case "valkey", "redis":
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.addrs,
			Password: cfg.password,
		})
		if err != nil {
			return nil, fmt.Errorf("synapse: create %s store: %w", cfg.driver, err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("synapse: unknown driver %q", cfg.driver)
	}
}

func wireNode(store db.Store, cfg *nodeConfig) (*Node, error) {
	def := domain.DefaultProtocolConfig()

	resolver, err := routing.New(routing.Partitioner(cfg.partitioner), nil)
	if err != nil {
		return nil, fmt.Errorf("synapse: %w", err)
	}

	threshold := def.GoodDealThreshold
	if cfg.threshold != nil {
		threshold = *cfg.threshold
	}
	var strategy scoring.Strategy = scoring.History{}
	if cfg.score != nil {
		strategy = scoreFuncStrategy(cfg.score)
	}

	ctx, cancel := context.WithCancel(context.Background())

	scorer := scoring.New(strategy, threshold, cfg.logger).
		WithStore(ctx, gooddealrepo.New(store))
	registry := tags.New(cfg.logger).WithRetention(cfg.tagRetention)

	initial := make([]peer.ID, 0, len(cfg.peers))
	for _, p := range cfg.peers {
		initial = append(initial, peer.ID(p))
	}
	members := membership.New(scorer, cfg.logger, initial...)

	budget := def.ReplicationBudget
	if cfg.budget != nil {
		budget = *cfg.budget
	}

	engine := searchuc.New(
		registry, members, resolver, replication.New(), scorer,
		tablerepo.New(store), cfg.address, cfg.logger,
	).WithDefaults(cfg.ttl, budget).WithParallelism(cfg.parallelism)

	client := peerhttp.New(nil)
	if cfg.forwarding {
		engine = engine.WithForwarder(client, cfg.hopTimeout)
	}

	n := &Node{
		address: cfg.address,
		store:   store,
		engine:  engine,
		members: members,
		scorer:  scorer,
		tags:    registry,
		peers:   client,
		logger:  cfg.logger,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(n.done)
		registry.Run(ctx, cfg.sweepEvery)
	}()

	return n, nil
}

// Close stops background work and releases the store.
func (n *Node) Close() {
	n.cancel()
	<-n.done
	if n.store != nil {
		n.store.Close()
	}
}

// Address returns the node's address.
func (n *Node) Address() string { return n.address }

// Get looks key up. Returns ErrNotFound when no branch found it.
func (n *Node) Get(ctx context.Context, key string) ([]byte, error) {
	res, err := n.Operate(ctx, string(op.Get), key, nil)
	if err != nil {
		return nil, err
	}
	if res.Summary != string(outcome.StatusFound) {
		return nil, fmt.Errorf("get %q (%s): %w", key, res.Summary, ErrNotFound)
	}
	return res.Value, nil
}

// Put replicates value under key. A replication stop is reported in the
// Result, not as an error.
func (n *Node) Put(ctx context.Context, key string, value []byte) (Result, error) {
	if value == nil {
		value = []byte{}
	}
	return n.Operate(ctx, string(op.Put), key, value)
}

// Operate runs a GET or PUT originating at this node.
func (n *Node) Operate(ctx context.Context, code, key string, value []byte) (Result, error) {
	c, ok := op.Parse(code)
	if !ok {
		return Result{}, fmt.Errorf("%w: unknown op code %q", ErrInvalidOperation, code)
	}

	report, err := n.engine.Operate(ctx, c, key, value, n.address)
	if err != nil && report.Tag().IsZero() {
		return Result{}, err
	}
	return toResult(report), err
}

// Join inserts p into the membership without judging it.
func (n *Node) Join(p string) bool {
	return n.members.Insert(peer.ID(p))
}

// AcceptInvite inserts p when it is a good deal for source. Reports whether p is a member.
func (n *Node) AcceptInvite(p, source string) bool {
	return n.members.Join(peer.ID(p), source)
}

// Invite asks the node at address to accept p. On acceptance p is also
// inserted locally.
func (n *Node) Invite(ctx context.Context, address, p string) (bool, error) {
	if p == "" {
		return false, fmt.Errorf("%w: peer is required", domain.ErrInvalidMessage)
	}
	accepted, err := n.peers.Invite(ctx, address, message.Invite{Peer: peer.ID(p), Source: n.address})
	if err != nil {
		return false, fmt.Errorf("invite %s: %w", address, err)
	}
	if accepted {
		n.members.Insert(peer.ID(p))
	}
	return accepted, nil
}

// Announce tells the node at address that this node joined its network. The
// receiver inserts this node without judging it.
func (n *Node) Announce(ctx context.Context, address string) error {
	m := message.Join{Peer: peer.ID(n.address), Source: n.address}
	if err := n.peers.Join(ctx, address, m); err != nil {
		return fmt.Errorf("announce to %s: %w", address, err)
	}
	return nil
}

// Peers returns the current membership.
func (n *Node) Peers() []string {
	view := n.members.Snapshot()
	out := make([]string, view.Len())
	for i, p := range view.Peers() {
		out[i] = p.String()
	}
	return out
}

// IsGoodDeal reports whether the node would forward to (or accept) p for source.
func (n *Node) IsGoodDeal(p, source string) bool {
	return n.scorer.IsGoodDeal(peer.ID(p), source)
}

// Processed reports whether a search tag was already handled by this node.
func (n *Node) Processed(t string) bool {
	return n.tags.Seen(tag.Tag(t))
}

func toResult(r outcome.Report) Result {
	res := Result{
		Tag:      r.Tag().String(),
		Summary:  string(r.Summary()),
		Reason:   string(r.AbandonReason()),
		Stored:   r.Count(outcome.StatusStored),
		Branches: len(r.Outcomes()),
	}
	if v, ok := r.Value(); ok {
		res.Value = v
	}
	return res
}

func scoreFuncStrategy(fn ScoreFunc) scoring.Strategy {
	return scoring.Func(func(p peer.ID, source string, e *scoring.Entry) float64 {
		if e == nil {
			return fn(p.String(), source, 0, "")
		}
		return fn(p.String(), source, e.Hits, e.Address)
	})
}

// IsNotFound reports whether err means the key was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
