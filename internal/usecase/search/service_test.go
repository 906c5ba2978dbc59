package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/outcome"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	domsearch "github.com/kailas-cloud/synapse/internal/domain/search"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
	"github.com/kailas-cloud/synapse/internal/usecase/replication"
	"github.com/kailas-cloud/synapse/internal/usecase/routing"
	"github.com/kailas-cloud/synapse/internal/usecase/tags"
)

// --- Mocks ---

// mapHasher hashes known keys to fixed values.
type mapHasher map[string]uint64

func (h mapHasher) Sum64(data []byte) uint64 { return h[string(data)] }

type staticMembers struct {
	view peer.View
}

func (m *staticMembers) Snapshot() peer.View { return m.view }

func members(ids ...peer.ID) *staticMembers {
	return &staticMembers{view: peer.NewView(ids, 1)}
}

type mockScorer struct {
	mu       sync.Mutex
	good     bool
	recorded map[peer.ID]string
	sources  []string
}

func (m *mockScorer) IsGoodDeal(_ peer.ID, source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, source)
	return m.good
}

func (m *mockScorer) RecordOutcome(p peer.ID, address string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recorded == nil {
		m.recorded = make(map[peer.ID]string)
	}
	m.recorded[p] = address
}

type tableCall struct {
	peer  peer.ID
	key   string
	value string
}

type mockTable struct {
	mu       sync.Mutex
	data     map[string][]byte
	reads    []tableCall
	writes   []tableCall
	readErr  error
	writeErr error
}

func (m *mockTable) Read(_ context.Context, p peer.ID, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads = append(m.reads, tableCall{peer: p, key: key})
	if m.readErr != nil {
		return nil, m.readErr
	}
	v, ok := m.data[string(p)+"/"+key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return v, nil
}

func (m *mockTable) Write(_ context.Context, p peer.ID, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = append(m.writes, tableCall{peer: p, key: key, value: string(value)})
	if m.writeErr != nil {
		return m.writeErr
	}
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[string(p)+"/"+key] = value
	return nil
}

// neverSeen is a registry that lets every branch through.
type neverSeen struct{}

func (neverSeen) MarkAndCheck(tag.Tag) bool { return false }

type mockForwarder struct {
	mu    sync.Mutex
	sent  []message.Find
	err   error
	block bool
}

func (m *mockForwarder) Forward(ctx context.Context, msg message.Find) error {
	if m.block {
		<-ctx.Done()
		return ctx.Err()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

type fixture struct {
	svc      *Service
	registry *tags.Registry
	scorer   *mockScorer
	table    *mockTable
}

// newFixture builds an engine over [P1,P2,P3] where "k1" hashes to index 1 (P2).
func newFixture(good bool, m Membership) *fixture {
	if m == nil {
		m = members("P1", "P2", "P3")
	}
	registry := tags.New(zap.NewNop())
	scorer := &mockScorer{good: good}
	table := &mockTable{}
	resolver := routing.NewModulo(mapHasher{"k1": 1, "k2": 1})
	svc := New(registry, m, resolver, replication.New(), scorer, table, "self", zap.NewNop())
	return &fixture{svc: svc, registry: registry, scorer: scorer, table: table}
}

func mustContext(t *testing.T, code op.Code, key string, value []byte, tg tag.Tag, ttl int, budget float64) domsearch.Context {
	t.Helper()
	sc, err := domsearch.New(code, key, value, tg, ttl, budget, "self")
	if err != nil {
		t.Fatalf("search.New: %v", err)
	}
	return sc
}

// --- Tests ---

func TestOperate_GetReadsResponsiblePeerOnce(t *testing.T) {
	for _, parallelism := range []int{1, 4} {
		f := newFixture(true, nil)
		f.svc.WithParallelism(parallelism)
		f.table.data = map[string][]byte{"P2/k1": []byte("v1")}

		report, err := f.svc.Operate(context.Background(), op.Get, "k1", nil, "10.0.0.100")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(f.table.reads) != 1 {
			t.Fatalf("parallelism=%d: expected exactly 1 read, got %d", parallelism, len(f.table.reads))
		}
		if f.table.reads[0].peer != "P2" || f.table.reads[0].key != "k1" {
			t.Errorf("unexpected read: %+v", f.table.reads[0])
		}
		v, ok := report.Value()
		if !ok || string(v) != "v1" {
			t.Errorf("Value() = (%q, %v)", v, ok)
		}
		if report.Summary() != outcome.StatusFound {
			t.Errorf("Summary() = %q", report.Summary())
		}
		// P1 and P3 were good deals: two forks, both abandoned by dedup.
		if n := report.Count(outcome.StatusAbandoned); n != 2 {
			t.Errorf("expected 2 abandoned forks, got %d", n)
		}
		if report.AbandonReason() != outcome.ReasonAlreadyProcessed {
			t.Errorf("AbandonReason() = %q", report.AbandonReason())
		}
	}
}

func TestOperate_GetMissing(t *testing.T) {
	f := newFixture(false, nil)

	report, err := f.svc.Operate(context.Background(), op.Get, "k1", nil, "src")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Summary() != outcome.StatusNotFound {
		t.Errorf("Summary() = %q, want not_found", report.Summary())
	}
}

func TestOperate_PutWritesAndRecordsOutcome(t *testing.T) {
	f := newFixture(false, nil)

	report, err := f.svc.Operate(context.Background(), op.Put, "k2", []byte("v2"), "10.0.0.101")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Summary() != outcome.StatusStored {
		t.Errorf("Summary() = %q", report.Summary())
	}
	if len(f.table.writes) != 1 || f.table.writes[0].peer != "P2" || f.table.writes[0].value != "v2" {
		t.Errorf("unexpected writes: %+v", f.table.writes)
	}
	if f.scorer.recorded["P2"] != "self" {
		t.Errorf("expected good-deal record P2 -> self, got %v", f.scorer.recorded)
	}
	if !f.registry.Seen(report.Tag()) {
		t.Error("operation tag must be marked")
	}
	if report.Tag().Origin() != "10.0.0.101" {
		t.Errorf("tag origin = %q", report.Tag().Origin())
	}
}

func TestFind_TTLZeroNeverDispatches(t *testing.T) {
	f := newFixture(true, nil)
	sc := mustContext(t, op.Get, "k1", nil, "t-zero", 0, 10)

	report := f.svc.Find(context.Background(), sc)

	if len(report.Outcomes()) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(report.Outcomes()))
	}
	o := report.Outcomes()[0]
	if o.Status() != outcome.StatusAbandoned || o.Reason() != outcome.ReasonTTLExpired {
		t.Errorf("unexpected outcome: %s/%s", o.Status(), o.Reason())
	}
	if len(f.table.reads)+len(f.table.writes) != 0 {
		t.Error("ttl=0 must not touch storage")
	}
	if len(f.scorer.sources) != 0 || len(f.scorer.recorded) != 0 {
		t.Error("ttl=0 must not evaluate peers")
	}
	if f.registry.Seen("t-zero") {
		t.Error("ttl=0 must not mark the tag")
	}
}

func TestFind_NegativeBudgetStopsReplication(t *testing.T) {
	f := newFixture(true, nil)
	sc := mustContext(t, op.Put, "k1", []byte("v"), "t-neg", 3, -1)

	report := f.svc.Find(context.Background(), sc)

	if len(f.table.writes) != 0 {
		t.Fatalf("expected no writes, got %d", len(f.table.writes))
	}
	if report.Summary() != outcome.StatusReplicationExhausted {
		t.Errorf("Summary() = %q", report.Summary())
	}
	if report.Count(outcome.StatusReplicationExhausted) != 1 {
		t.Errorf("expected 1 exhausted branch, got %d", report.Count(outcome.StatusReplicationExhausted))
	}
}

func TestOperate_NegativeDefaultBudget(t *testing.T) {
	f := newFixture(false, nil)
	f.svc.WithDefaults(10, -0.5)

	report, err := f.svc.Operate(context.Background(), op.Put, "k1", []byte("v"), "src")
	if err != nil {
		t.Fatalf("replication stop is not an error: %v", err)
	}
	if report.Summary() != outcome.StatusReplicationExhausted {
		t.Errorf("Summary() = %q", report.Summary())
	}
}

func TestOperate_EmptyMembership(t *testing.T) {
	for _, code := range []op.Code{op.Get, op.Put} {
		f := newFixture(true, members())

		_, err := f.svc.Operate(context.Background(), code, "k1", []byte("v"), "src")
		if !errors.Is(err, domain.ErrEmptyMembership) {
			t.Fatalf("%s: expected ErrEmptyMembership, got %v", code, err)
		}
		if f.registry.Len() != 0 {
			t.Errorf("%s: no search may start", code)
		}
		if len(f.table.reads)+len(f.table.writes) != 0 {
			t.Errorf("%s: storage touched", code)
		}
	}
}

func TestOperate_InvalidOperation(t *testing.T) {
	f := newFixture(true, nil)

	if _, err := f.svc.Operate(context.Background(), op.Code("DEL"), "k", nil, "src"); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for unknown code, got %v", err)
	}
	if _, err := f.svc.Operate(context.Background(), op.Put, "k", nil, "src"); !errors.Is(err, domain.ErrInvalidOperation) {
		t.Errorf("expected ErrInvalidOperation for PUT without value, got %v", err)
	}
}

func TestFind_SameTagConcurrentlyOnlyOneProceeds(t *testing.T) {
	f := newFixture(false, nil)
	sc := mustContext(t, op.Get, "k1", nil, "shared-tag", 5, 10)

	reports := make([]outcome.Report, 2)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			reports[i] = f.svc.Find(context.Background(), sc)
		}(i)
	}
	close(start)
	wg.Wait()

	proceeded, abandoned := 0, 0
	for _, r := range reports {
		if r.AbandonReason() == outcome.ReasonAlreadyProcessed {
			abandoned++
		} else {
			proceeded++
		}
	}
	if proceeded != 1 || abandoned != 1 {
		t.Fatalf("expected 1 proceeding and 1 abandoned search, got %d/%d", proceeded, abandoned)
	}
	if len(f.table.reads) != 1 {
		t.Errorf("expected 1 read, got %d", len(f.table.reads))
	}
}

func TestFind_TTLBoundsDepthWithoutDedup(t *testing.T) {
	table := &mockTable{}
	scorer := &mockScorer{good: true}
	svc := New(neverSeen{}, members("P1", "P2", "P3"), routing.NewModulo(mapHasher{"k1": 1}),
		replication.New(), scorer, table, "self", zap.NewNop())

	sc := mustContext(t, op.Get, "k1", nil, "t", 3, 8)
	report := svc.Find(context.Background(), sc)

	// Two forks per step: 1 + 2 + 4 steps reach P2, 8 branches run out of ttl.
	if len(table.reads) != 7 {
		t.Errorf("expected 7 reads, got %d", len(table.reads))
	}
	if n := report.Count(outcome.StatusAbandoned); n != 8 {
		t.Errorf("expected 8 ttl-expired branches, got %d", n)
	}
	if report.AbandonReason() != outcome.ReasonTTLExpired {
		t.Errorf("AbandonReason() = %q", report.AbandonReason())
	}
}

func TestFind_SourceIsDestination(t *testing.T) {
	f := newFixture(true, nil)
	sc := mustContext(t, op.Get, "k1", nil, "t", 2, 3)

	f.svc.Find(context.Background(), sc)

	for _, src := range f.scorer.sources {
		if src != "self" {
			t.Fatalf("first step must score against its destination, got %q", src)
		}
	}
}

func TestOperate_StorageErrorPassesThrough(t *testing.T) {
	errBoom := errors.New("boom")
	f := newFixture(false, nil)
	f.table.writeErr = errBoom

	report, err := f.svc.Operate(context.Background(), op.Put, "k1", []byte("v"), "src")
	if err != errBoom { //nolint:errorlint // must be the unmodified storage error
		t.Fatalf("expected unmodified storage error, got %v", err)
	}
	if report.Summary() != outcome.StatusError {
		t.Errorf("Summary() = %q", report.Summary())
	}
}

func TestOperate_ForwardsRemoteBranches(t *testing.T) {
	f := newFixture(true, nil)
	fwd := &mockForwarder{}
	f.svc.WithForwarder(fwd, time.Second).WithDefaults(4, 9)

	report, err := f.svc.Operate(context.Background(), op.Put, "k1", []byte("v"), "src")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(fwd.sent) != 2 {
		t.Fatalf("expected 2 forwarded FINDs, got %d", len(fwd.sent))
	}
	for _, m := range fwd.sent {
		if m.Destination != "P2" || m.TTL != 3 || m.ReplicationShare != 3 || m.Tag != report.Tag() {
			t.Errorf("unexpected FIND: %+v", m)
		}
		if string(m.Value) != "v" {
			t.Errorf("FIND must carry the PUT value")
		}
	}
	if report.Count(outcome.StatusForwarded) != 2 || report.Count(outcome.StatusStored) != 1 {
		t.Errorf("unexpected outcomes: forwarded=%d stored=%d",
			report.Count(outcome.StatusForwarded), report.Count(outcome.StatusStored))
	}
}

func TestOperate_ForwardFailureIsBranchLocal(t *testing.T) {
	f := newFixture(true, nil)
	f.svc.WithForwarder(&mockForwarder{err: errors.New("refused")}, time.Second)

	report, err := f.svc.Operate(context.Background(), op.Get, "k1", nil, "src")
	if err != nil {
		t.Fatalf("forward failures must not fail the operation: %v", err)
	}
	if report.Count(outcome.StatusForwardFailed) != 2 {
		t.Errorf("expected 2 failed forwards, got %d", report.Count(outcome.StatusForwardFailed))
	}
	for _, o := range report.Outcomes() {
		if o.Status() != outcome.StatusForwardFailed {
			continue
		}
		var fe *domain.ForwardError
		if !errors.As(o.Err(), &fe) || fe.Destination != "P2" {
			t.Errorf("expected ForwardError for P2, got %v", o.Err())
		}
	}
}

func TestOperate_ForwardHopTimeout(t *testing.T) {
	f := newFixture(true, nil)
	f.svc.WithForwarder(&mockForwarder{block: true}, 10*time.Millisecond)

	start := time.Now()
	report, _ := f.svc.Operate(context.Background(), op.Get, "k1", nil, "src")

	if time.Since(start) > 2*time.Second {
		t.Fatal("hop timeout was not applied")
	}
	for _, o := range report.Outcomes() {
		if o.Status() == outcome.StatusForwardFailed && !errors.Is(o.Err(), context.DeadlineExceeded) {
			t.Errorf("expected deadline exceeded, got %v", o.Err())
		}
	}
}

func TestFind_CancelledContextStopsDispatch(t *testing.T) {
	f := newFixture(true, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := f.svc.Find(ctx, mustContext(t, op.Get, "k1", nil, "t", 3, 1))

	if len(report.Outcomes()) != 0 || len(f.table.reads) != 0 {
		t.Error("cancelled search must not dispatch")
	}
}

func TestFound_Direct(t *testing.T) {
	f := newFixture(false, nil)

	out := f.svc.Found(context.Background(), op.Put, "P3", 0, "k", []byte("x"), "10.0.0.9")
	if out.Status() != outcome.StatusStored || out.Peer() != "P3" {
		t.Errorf("unexpected outcome: %s %s", out.Status(), out.Peer())
	}
	if f.scorer.recorded["P3"] != "10.0.0.9" {
		t.Errorf("record not updated: %v", f.scorer.recorded)
	}

	out = f.svc.Found(context.Background(), op.Get, "P3", 0, "k", nil, "10.0.0.9")
	if out.Status() != outcome.StatusFound || string(out.Value()) != "x" {
		t.Errorf("unexpected read outcome: %s %q", out.Status(), out.Value())
	}
}
