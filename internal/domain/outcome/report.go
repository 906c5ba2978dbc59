package outcome

import (
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/tag"
)

// summaryOrder ranks statuses when folding a report into one answer.
var summaryOrder = []Status{
	StatusFound,
	StatusStored,
	StatusNotFound,
	StatusReplicationExhausted,
	StatusError,
	StatusForwarded,
	StatusForwardFailed,
}

// Report aggregates every branch outcome of one search.
type Report struct {
	tag      tag.Tag
	code     op.Code
	key      string
	outcomes []Outcome
}

// NewReport creates a report.
func NewReport(t tag.Tag, code op.Code, key string, outcomes []Outcome) Report {
	return Report{tag: t, code: code, key: key, outcomes: outcomes}
}

// Tag returns the search tag.
func (r Report) Tag() tag.Tag { return r.tag }

// Code returns the operation code.
func (r Report) Code() op.Code { return r.code }

// Key returns the searched key.
func (r Report) Key() string { return r.key }

// Outcomes returns the branch outcomes in completion order.
func (r Report) Outcomes() []Outcome { return r.outcomes }

// Count returns how many branches ended with status s.
func (r Report) Count(s Status) int {
	n := 0
	for _, o := range r.outcomes {
		if o.status == s {
			n++
		}
	}
	return n
}

// Value returns the first value found by a GET.
func (r Report) Value() ([]byte, bool) {
	for _, o := range r.outcomes {
		if o.status == StatusFound {
			return o.value, true
		}
	}
	return nil, false
}

// Summary folds the branches into the caller-facing answer. A report with no
// dispatching branch is abandoned.
func (r Report) Summary() Status {
	for _, s := range summaryOrder {
		if r.Count(s) > 0 {
			return s
		}
	}
	return StatusAbandoned
}

// AbandonReason returns the reason of the first abandoned branch.
func (r Report) AbandonReason() Reason {
	for _, o := range r.outcomes {
		if o.status == StatusAbandoned {
			return o.reason
		}
	}
	return ReasonNone
}

// StorageErr returns the first storage error reported by a responsible peer.
func (r Report) StorageErr() error {
	for _, o := range r.outcomes {
		if o.status == StatusError {
			return o.err
		}
	}
	return nil
}
