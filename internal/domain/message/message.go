// Package message defines the protocol messages exchanged between peers.
package message

import (
	"fmt"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	"github.com/kailas-cloud/synapse/internal/domain/search"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
)

// Type names a protocol message.
type Type string

// Message types.
const (
	TypeFind   Type = "FIND"
	TypeFound  Type = "FOUND"
	TypeInvite Type = "INVITE"
	TypeJoin   Type = "JOIN"
)

// Find forwards one search branch to the next hop. Values travel as base64 so
// arbitrary bytes survive the hop; null means absent.
type Find struct {
	Code             op.Code `json:"code"`
	TTL              int     `json:"ttl"`
	ReplicationShare float64 `json:"replication_share"`
	Tag              tag.Tag `json:"tag"`
	Key              string  `json:"key"`
	Value            []byte  `json:"value"`
	Destination      string  `json:"destination"`
}

// FindFromContext encodes a search context as a FIND message.
func FindFromContext(c search.Context) Find {
	return Find{
		Code:             c.Code(),
		TTL:              c.TTL(),
		ReplicationShare: c.Budget(),
		Tag:              c.Tag(),
		Key:              c.Key(),
		Value:            c.Value(),
		Destination:      c.Destination(),
	}
}

// Context decodes the message into a validated search context.
func (m Find) Context() (search.Context, error) {
	c, err := search.New(m.Code, m.Key, m.Value, m.Tag, m.TTL, m.ReplicationShare, m.Destination)
	if err != nil {
		return search.Context{}, fmt.Errorf("%w: %w", domain.ErrInvalidMessage, err)
	}
	return c, nil
}

// Found reports a responsible peer to the node holding its table.
type Found struct {
	Code             op.Code `json:"code"`
	Peer             peer.ID `json:"peer"`
	ReplicationShare float64 `json:"replication_share"`
	Key              string  `json:"key"`
	Value            []byte  `json:"value"`
	Source           string  `json:"source"`
}

// Validate checks the message fields.
func (m Found) Validate() error {
	if !m.Code.IsValid() {
		return fmt.Errorf("%w: unknown op code %q", domain.ErrInvalidMessage, m.Code)
	}
	if m.Peer == "" || m.Key == "" {
		return fmt.Errorf("%w: peer and key are required", domain.ErrInvalidMessage)
	}
	if m.Code == op.Put && m.Value == nil {
		return fmt.Errorf("%w: PUT requires a value", domain.ErrInvalidMessage)
	}
	return nil
}

// Invite asks the receiver to accept peer into its membership.
type Invite struct {
	Peer   peer.ID `json:"peer"`
	Source string  `json:"source"`
}

// Validate checks the message fields.
func (m Invite) Validate() error { return validateMembership(m.Peer) }

// Join announces that peer joined the receiver's network.
type Join struct {
	Peer   peer.ID `json:"peer"`
	Source string  `json:"source"`
}

// Validate checks the message fields.
func (m Join) Validate() error { return validateMembership(m.Peer) }

func validateMembership(p peer.ID) error {
	if p == "" {
		return fmt.Errorf("%w: peer is required", domain.ErrInvalidMessage)
	}
	return nil
}
