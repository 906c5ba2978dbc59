package health

import "context"

// DBPinger checks database availability.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// MembershipCounter reports the size of the node's membership.
type MembershipCounter interface {
	Len() int
}
