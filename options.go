package synapse

import (
	"time"

	"go.uber.org/zap"
)

// Option configures a Node.
type Option func(*nodeConfig)

// ScoreFunc scores a peer for a source address. hits is how many times the
// peer answered as responsible; lastAddress is the address it last answered from.
type ScoreFunc func(peer, source string, hits int64, lastAddress string) float64

type nodeConfig struct {
	address string
	peers   []string

	driver   string // "memory", "valkey" or "redis"
	addrs    []string
	password string

	ttl          int
	budget       *float64
	parallelism  int
	partitioner  string
	threshold    *float64
	score        ScoreFunc
	tagRetention time.Duration
	sweepEvery   time.Duration

	forwarding bool
	hopTimeout time.Duration

	logger *zap.Logger
}

// WithAddress sets the address other nodes reach this node at. It is also the
// origin of every search tag this node creates.
func WithAddress(addr string) Option {
	return func(c *nodeConfig) { c.address = addr }
}

// WithPeers sets the initial membership.
func WithPeers(peers ...string) Option {
	return func(c *nodeConfig) { c.peers = append(c.peers, peers...) }
}

// WithValkey keeps tables and the good-deal record in Valkey.
func WithValkey(addr, password string) Option {
	return func(c *nodeConfig) {
		c.driver = "valkey"
		c.addrs = nonEmpty(addr)
		c.password = password
	}
}

// WithRedis keeps tables and the good-deal record in Redis.
func WithRedis(addr, password string) Option {
	return func(c *nodeConfig) {
		c.driver = "redis"
		c.addrs = nonEmpty(addr)
		c.password = password
	}
}

// WithTTL sets the hop budget of new searches.
func WithTTL(ttl int) Option {
	return func(c *nodeConfig) { c.ttl = ttl }
}

// WithReplicationBudget sets the replication budget of new PUTs.
// A negative budget stores nothing.
func WithReplicationBudget(budget float64) Option {
	return func(c *nodeConfig) { c.budget = &budget }
}

// WithParallelism bounds how many branches of one search level run at once.
func WithParallelism(n int) Option {
	return func(c *nodeConfig) { c.parallelism = n }
}

// WithRing assigns keys on a consistent-hash ring instead of hash mod |view|.
func WithRing() Option {
	return func(c *nodeConfig) { c.partitioner = "ring" }
}

// WithGoodDealThreshold sets the score at or above which a peer is worth asking.
func WithGoodDealThreshold(th float64) Option {
	return func(c *nodeConfig) { c.threshold = &th }
}

// WithScoreFunc replaces the default history-based scoring.
func WithScoreFunc(fn ScoreFunc) Option {
	return func(c *nodeConfig) { c.score = fn }
}

// WithTagRetention forgets processed search tags after d, sweeping every interval.
func WithTagRetention(d, interval time.Duration) Option {
	return func(c *nodeConfig) {
		c.tagRetention = d
		c.sweepEvery = interval
	}
}

// WithForwarding sends branches addressed to other nodes over HTTP, each
// under hopTimeout.
func WithForwarding(hopTimeout time.Duration) Option {
	return func(c *nodeConfig) {
		c.forwarding = true
		c.hopTimeout = hopTimeout
	}
}

// WithLogger sets the logger. Defaults to a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *nodeConfig) { c.logger = l }
}

func nonEmpty(addr string) []string {
	if addr == "" {
		return nil
	}
	return []string{addr}
}
