package search

import (
	"fmt"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
)

// Context is the state one search branch carries from hop to hop.
type Context struct {
	code        op.Code
	key         string
	value       []byte
	tag         tag.Tag
	ttl         int
	budget      float64
	destination string
}

// New validates and creates a search context. value must be set iff code is PUT.
func New(
	code op.Code, key string, value []byte,
	t tag.Tag, ttl int, budget float64, destination string,
) (Context, error) {
	if !code.IsValid() {
		return Context{}, fmt.Errorf("%w: unknown op code %q", domain.ErrInvalidOperation, code)
	}
	if key == "" {
		return Context{}, fmt.Errorf("%w: key is required", domain.ErrInvalidOperation)
	}
	switch code {
	case op.Put:
		if value == nil {
			return Context{}, fmt.Errorf("%w: PUT requires a value", domain.ErrInvalidOperation)
		}
	case op.Get:
		value = nil
	}
	if t.IsZero() {
		return Context{}, fmt.Errorf("%w: tag is required", domain.ErrInvalidOperation)
	}
	if ttl < 0 {
		return Context{}, fmt.Errorf("%w: ttl must be non-negative, got %d", domain.ErrInvalidOperation, ttl)
	}
	return Context{
		code: code, key: key, value: value,
		tag: t, ttl: ttl, budget: budget, destination: destination,
	}, nil
}

// Fork derives the context of a forwarded branch: one hop less, the peer's
// budget share, same tag, new destination.
func (c Context) Fork(share float64, destination string) Context {
	f := c
	f.ttl = c.ttl - 1
	f.budget = share
	f.destination = destination
	return f
}

// Code returns the operation code.
func (c Context) Code() op.Code { return c.code }

// Key returns the looked-up key.
func (c Context) Key() string { return c.key }

// Value returns the PUT payload (nil for GET).
func (c Context) Value() []byte { return c.value }

// Tag returns the search tag.
func (c Context) Tag() tag.Tag { return c.tag }

// TTL returns the remaining hop budget.
func (c Context) TTL() int { return c.ttl }

// Budget returns the replication budget of this branch.
func (c Context) Budget() float64 { return c.budget }

// Destination returns the address this branch is addressed to.
func (c Context) Destination() string { return c.destination }
