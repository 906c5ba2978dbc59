package chi

import (
	"github.com/kailas-cloud/synapse/internal/domain/outcome"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
)

// ErrorCode is the machine-readable error code of an ErrorResponse.
type ErrorCode string

// Error codes.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeInvalidOperation ErrorCode = "invalid_operation"
	ErrorCodeInvalidMessage   ErrorCode = "invalid_message"
	ErrorCodeEmptyMembership  ErrorCode = "empty_membership"
	ErrorCodeUnknownPeer      ErrorCode = "unknown_peer"
	ErrorCodeStorageError     ErrorCode = "storage_error"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// OperateRequest is the body of POST /v1/ope. Value is base64; null or
// absent means no value.
type OperateRequest struct {
	Code   string `json:"code"`
	Key    string `json:"key"`
	Value  []byte `json:"value"`
	Source string `json:"source,omitempty"`
}

// OperateResponse is the folded result of one GET or PUT.
type OperateResponse struct {
	Tag      string            `json:"tag"`
	Code     string            `json:"code"`
	Key      string            `json:"key"`
	Summary  string            `json:"summary"`
	Value    []byte            `json:"value"`
	Reason   string            `json:"reason,omitempty"`
	Outcomes []OutcomeResponse `json:"outcomes"`
}

// OutcomeResponse is one branch of a search.
type OutcomeResponse struct {
	Status      string  `json:"status"`
	Peer        string  `json:"peer,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	Destination string  `json:"destination,omitempty"`
	Value       []byte  `json:"value,omitempty"`
	Error       string  `json:"error,omitempty"`
}

// AcceptedResponse acknowledges an asynchronous FIND.
type AcceptedResponse struct {
	Tag    string `json:"tag"`
	Status string `json:"status"`
}

// InviteResponse answers an INVITE.
type InviteResponse struct {
	Peer     string `json:"peer"`
	Accepted bool   `json:"accepted"`
}

// JoinResponse answers a JOIN.
type JoinResponse struct {
	Peer     string `json:"peer"`
	Inserted bool   `json:"inserted"`
	Members  int    `json:"members"`
}

// PeersResponse lists the current membership view.
type PeersResponse struct {
	Version uint64   `json:"version"`
	Peers   []string `json:"peers"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Members int               `json:"members"`
}

func reportToResponse(r outcome.Report) OperateResponse {
	resp := OperateResponse{
		Tag:      r.Tag().String(),
		Code:     string(r.Code()),
		Key:      r.Key(),
		Summary:  string(r.Summary()),
		Reason:   string(r.AbandonReason()),
		Outcomes: make([]OutcomeResponse, len(r.Outcomes())),
	}
	if v, ok := r.Value(); ok {
		resp.Value = v
	}
	for i, o := range r.Outcomes() {
		resp.Outcomes[i] = outcomeToResponse(o)
	}
	return resp
}

func outcomeToResponse(o outcome.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Status:      string(o.Status()),
		Peer:        o.Peer().String(),
		Reason:      string(o.Reason()),
		Destination: o.Destination(),
	}
	if o.Status() == outcome.StatusFound {
		resp.Value = o.Value()
	}
	if err := o.Err(); err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func viewToResponse(v peer.View) PeersResponse {
	peers := make([]string, v.Len())
	for i, p := range v.Peers() {
		peers[i] = p.String()
	}
	return PeersResponse{Version: v.Version(), Peers: peers}
}
