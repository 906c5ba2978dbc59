package outcome

import "github.com/kailas-cloud/synapse/internal/domain/peer"

// Status is the terminal state of one search branch.
type Status string

// Branch status values.
const (
	StatusFound                Status = "found"
	StatusNotFound             Status = "not_found"
	StatusStored               Status = "stored"
	StatusReplicationExhausted Status = "replication_exhausted"
	StatusAbandoned            Status = "abandoned"
	StatusForwarded            Status = "forwarded"
	// StatusForwardFailed marks a branch whose FIND could not be delivered to the next hop.
	StatusForwardFailed Status = "forward_failed"
	// StatusError marks a storage failure at a responsible peer.
	StatusError Status = "error"
)

// Reason explains why a branch was abandoned.
type Reason string

// Abandon reasons.
const (
	ReasonNone             Reason = ""
	ReasonTTLExpired       Reason = "ttl_expired"
	ReasonAlreadyProcessed Reason = "already_processed"
)

// Outcome is the result of one search branch.
type Outcome struct {
	status      Status
	peer        peer.ID
	reason      Reason
	value       []byte
	destination string
	err         error
}

// Found creates a GET hit at peer p.
func Found(p peer.ID, value []byte) Outcome {
	return Outcome{status: StatusFound, peer: p, value: value}
}

// NotFound creates a GET miss at peer p.
func NotFound(p peer.ID) Outcome { return Outcome{status: StatusNotFound, peer: p} }

// Stored creates a PUT acknowledgement from peer p.
func Stored(p peer.ID) Outcome { return Outcome{status: StatusStored, peer: p} }

// ReplicationExhausted creates a PUT policy stop at peer p.
func ReplicationExhausted(p peer.ID) Outcome {
	return Outcome{status: StatusReplicationExhausted, peer: p}
}

// Abandoned creates a terminated branch addressed to destination.
func Abandoned(reason Reason, destination string) Outcome {
	return Outcome{status: StatusAbandoned, reason: reason, destination: destination}
}

// Forwarded creates a branch handed over to a remote hop.
func Forwarded(destination string) Outcome {
	return Outcome{status: StatusForwarded, destination: destination}
}

// ForwardFailed creates a branch whose forward to destination failed.
func ForwardFailed(destination string, err error) Outcome {
	return Outcome{status: StatusForwardFailed, destination: destination, err: err}
}

// Error creates a storage failure at peer p.
func Error(p peer.ID, err error) Outcome {
	return Outcome{status: StatusError, peer: p, err: err}
}

// Status returns the branch status.
func (o Outcome) Status() Status { return o.status }

// Peer returns the responsible peer, if the branch reached one.
func (o Outcome) Peer() peer.ID { return o.peer }

// Reason returns the abandon reason.
func (o Outcome) Reason() Reason { return o.reason }

// Value returns the value read by a GET hit.
func (o Outcome) Value() []byte { return o.value }

// Destination returns the address of an abandoned or forwarded branch.
func (o Outcome) Destination() string { return o.destination }

// Err returns the storage or forwarding error, if any.
func (o Outcome) Err() error { return o.err }
