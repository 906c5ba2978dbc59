package table

import (
	"context"
	"errors"
	"testing"

	"github.com/kailas-cloud/synapse/internal/db"
	"github.com/kailas-cloud/synapse/internal/db/memory"
	"github.com/kailas-cloud/synapse/internal/domain"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	getFn func(ctx context.Context, key string) ([]byte, error)
	setFn func(ctx context.Context, key string, value []byte) error
}

func (m *mockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getFn != nil {
		return m.getFn(ctx, key)
	}
	return nil, db.ErrKeyNotFound
}

func (m *mockStore) Set(ctx context.Context, key string, value []byte) error {
	if m.setFn != nil {
		return m.setFn(ctx, key, value)
	}
	return nil
}

func TestRead_Key(t *testing.T) {
	ms := &mockStore{}
	ms.getFn = func(_ context.Context, key string) ([]byte, error) {
		if key != "synapse:table:2:P2:k1" {
			t.Errorf("unexpected key: %s", key)
		}
		return []byte("v1"), nil
	}

	v, err := New(ms).Read(context.Background(), "P2", "k1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(v) != "v1" {
		t.Errorf("expected v1, got %q", v)
	}
}

func TestRead_NotFound(t *testing.T) {
	_, err := New(&mockStore{}).Read(context.Background(), "P2", "missing")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRead_StoreError(t *testing.T) {
	errBoom := errors.New("boom")
	ms := &mockStore{getFn: func(context.Context, string) ([]byte, error) { return nil, errBoom }}

	_, err := New(ms).Read(context.Background(), "P2", "k")
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
	if errors.Is(err, domain.ErrNotFound) {
		t.Error("store failure must not look like a missing key")
	}
}

func TestWrite_StoreError(t *testing.T) {
	errBoom := errors.New("boom")
	ms := &mockStore{setFn: func(context.Context, string, []byte) error { return errBoom }}

	if err := New(ms).Write(context.Background(), "P2", "k", []byte("v")); !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestTablesAreIsolatedPerPeer(t *testing.T) {
	repo := New(memory.NewStore())
	ctx := context.Background()

	if err := repo.Write(ctx, "P1", "k", []byte("from-p1")); err != nil {
		t.Fatal(err)
	}
	if err := repo.Write(ctx, "P2", "k", []byte("from-p2")); err != nil {
		t.Fatal(err)
	}
	if err := repo.Write(ctx, "P2", "k", []byte("p2-again")); err != nil {
		t.Fatal(err)
	}

	v1, _ := repo.Read(ctx, "P1", "k")
	v2, _ := repo.Read(ctx, "P2", "k")
	if string(v1) != "from-p1" || string(v2) != "p2-again" {
		t.Errorf("unexpected values: %q %q", v1, v2)
	}
	if _, err := repo.Read(ctx, "P3", "k"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("P3 table must be empty, got %v", err)
	}
}

func TestTableKey_ColonsInPeerDoNotCollide(t *testing.T) {
	if tableKey("a", "b:c") == tableKey("a:b", "c") {
		t.Fatal("distinct (peer, key) pairs share a storage key")
	}

	repo := New(memory.NewStore())
	ctx := context.Background()
	if err := repo.Write(ctx, "10.0.0.1", "7946:k", []byte("short-peer")); err != nil {
		t.Fatal(err)
	}
	if err := repo.Write(ctx, "10.0.0.1:7946", "k", []byte("full-peer")); err != nil {
		t.Fatal(err)
	}

	v, err := repo.Read(ctx, "10.0.0.1", "7946:k")
	if err != nil || string(v) != "short-peer" {
		t.Errorf("expected short-peer, got %q %v", v, err)
	}
	v, err = repo.Read(ctx, "10.0.0.1:7946", "k")
	if err != nil || string(v) != "full-peer" {
		t.Errorf("expected full-peer, got %q %v", v, err)
	}
}
