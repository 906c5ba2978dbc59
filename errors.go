package synapse

import "github.com/kailas-cloud/synapse/internal/domain"

// Errors returned by Node operations. Compare with errors.Is.
var (
	// ErrEmptyMembership means the node knows no peers to route through.
	ErrEmptyMembership = domain.ErrEmptyMembership
	// ErrInvalidOperation means an unknown op code, an empty key or a PUT without a value.
	ErrInvalidOperation = domain.ErrInvalidOperation
	// ErrNotFound means no responsible peer holds the key.
	ErrNotFound = domain.ErrNotFound
)
