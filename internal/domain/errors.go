package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyMembership signals that there are no peers to route through.
	ErrEmptyMembership = errors.New("empty membership")
	// ErrInvalidOperation signals an unknown op code or a malformed GET/PUT.
	ErrInvalidOperation = errors.New("invalid operation")
	// ErrNotFound signals a key missing from a peer's table.
	ErrNotFound = errors.New("not found")
	// ErrInvalidMessage signals a protocol message that fails validation.
	ErrInvalidMessage = errors.New("invalid message")
	// ErrUnknownPeer signals a peer that is not part of the membership view.
	ErrUnknownPeer = errors.New("unknown peer")
)

// ForwardError wraps a failed FIND forward with the hop it was sent to.
type ForwardError struct {
	Destination string
	Err         error
}

func (e *ForwardError) Error() string {
	return fmt.Sprintf("forward to %s: %v", e.Destination, e.Err)
}

func (e *ForwardError) Unwrap() error { return e.Err }
