package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/synapse/internal/domain"
	"github.com/kailas-cloud/synapse/internal/domain/message"
	"github.com/kailas-cloud/synapse/internal/domain/op"
	"github.com/kailas-cloud/synapse/internal/domain/outcome"
	"github.com/kailas-cloud/synapse/internal/domain/peer"
	domsearch "github.com/kailas-cloud/synapse/internal/domain/search"
	healthuc "github.com/kailas-cloud/synapse/internal/usecase/health"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// Engine is the search engine surface the server drives.
type Engine interface {
	Operate(ctx context.Context, code op.Code, key string, value []byte, source string) (outcome.Report, error)
	Find(ctx context.Context, sc domsearch.Context) outcome.Report
	Found(ctx context.Context, code op.Code, p peer.ID, mrr float64, key string, value []byte, source string) outcome.Outcome
}

// Members is the membership surface the server drives.
type Members interface {
	Snapshot() peer.View
	Contains(p peer.ID) bool
	Insert(p peer.ID) bool
	Join(p peer.ID, source string) bool
	Len() int
}

// Checker runs health checks.
type Checker interface {
	Check(ctx context.Context) healthuc.Report
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server serves the client API and the peer protocol over HTTP.
type Server struct {
	engine  Engine
	members Members
	health  Checker
	apiKeys []string
	logger  *zap.Logger

	// FINDs are processed after the 202 is written; baseCtx bounds them.
	baseCtx context.Context
	pending sync.WaitGroup

	errorHandlers []errorHandler
}

// NewServer creates an HTTP server.
func NewServer(engine Engine, members Members, health Checker, logger *zap.Logger) *Server {
	s := &Server{
		engine:  engine,
		members: members,
		health:  health,
		logger:  logger,
		baseCtx: context.Background(),
	}
	// Malformed messages also wrap ErrInvalidOperation, so the message handler goes first.
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidMessage, http.StatusBadRequest, ErrorCodeInvalidMessage),
		sentinelHandler(domain.ErrInvalidOperation, http.StatusBadRequest, ErrorCodeInvalidOperation),
		sentinelHandler(domain.ErrEmptyMembership, http.StatusServiceUnavailable, ErrorCodeEmptyMembership),
		sentinelHandler(domain.ErrUnknownPeer, http.StatusNotFound, ErrorCodeUnknownPeer),
	}
	return s
}

// WithAPIKeys protects the client routes with bearer tokens.
func (s *Server) WithAPIKeys(keys []string) *Server {
	s.apiKeys = keys
	return s
}

// WithBaseContext sets the context asynchronous FINDs run under.
func (s *Server) WithBaseContext(ctx context.Context) *Server {
	s.baseCtx = ctx
	return s
}

// Wait blocks until every accepted FIND has finished.
func (s *Server) Wait() {
	s.pending.Wait()
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(BearerAuthMiddleware(s.apiKeys))
			r.Post("/ope", s.Operate)
			r.Get("/peers", s.ListPeers)
		})

		r.Post("/find", s.Find)
		r.Post("/found", s.Found)
		r.Post("/invite", s.Invite)
		r.Post("/join", s.Join)
	})
}

// Operate handles POST /v1/ope.
func (s *Server) Operate(w http.ResponseWriter, r *http.Request) {
	var req OperateRequest
	if !decode(w, r, &req) {
		return
	}

	code, ok := op.Parse(req.Code)
	if !ok {
		writeError(w, http.StatusBadRequest, ErrorCodeInvalidOperation, "code must be GET or PUT")
		return
	}

	source := req.Source
	if source == "" {
		source = remoteHost(r)
	}
	report, err := s.engine.Operate(r.Context(), code, req.Key, req.Value, source)
	if err != nil {
		if report.Tag().IsZero() {
			s.handleDomainError(w, err)
			return
		}
		s.logger.Error("Storage error during operation",
			zap.String("tag", report.Tag().String()),
			zap.Error(err),
		)
		writeError(w, http.StatusBadGateway, ErrorCodeStorageError, "storage error")
		return
	}

	writeJSON(w, http.StatusOK, reportToResponse(report))
}

// Find handles POST /v1/find. The search runs after the 202 is written.
func (s *Server) Find(w http.ResponseWriter, r *http.Request) {
	var msg message.Find
	if !decode(w, r, &msg) {
		return
	}

	sc, err := msg.Context()
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		report := s.engine.Find(s.baseCtx, sc)
		s.logger.Debug("Remote FIND finished",
			zap.String("tag", sc.Tag().String()),
			zap.String("summary", string(report.Summary())),
		)
	}()

	writeJSON(w, http.StatusAccepted, AcceptedResponse{Tag: sc.Tag().String(), Status: "accepted"})
}

// Found handles POST /v1/found.
func (s *Server) Found(w http.ResponseWriter, r *http.Request) {
	var msg message.Found
	if !decode(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		s.handleDomainError(w, err)
		return
	}
	if !s.members.Contains(msg.Peer) {
		s.handleDomainError(w, domain.ErrUnknownPeer)
		return
	}

	out := s.engine.Found(r.Context(), msg.Code, msg.Peer, msg.ReplicationShare, msg.Key, msg.Value, msg.Source)
	status := http.StatusOK
	if out.Status() == outcome.StatusError {
		status = http.StatusBadGateway
	}
	writeJSON(w, status, outcomeToResponse(out))
}

// Invite handles POST /v1/invite.
func (s *Server) Invite(w http.ResponseWriter, r *http.Request) {
	var msg message.Invite
	if !decode(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		s.handleDomainError(w, err)
		return
	}

	accepted := s.members.Join(msg.Peer, msg.Source)
	writeJSON(w, http.StatusOK, InviteResponse{Peer: msg.Peer.String(), Accepted: accepted})
}

// Join handles POST /v1/join.
func (s *Server) Join(w http.ResponseWriter, r *http.Request) {
	var msg message.Join
	if !decode(w, r, &msg) {
		return
	}
	if err := msg.Validate(); err != nil {
		s.handleDomainError(w, err)
		return
	}

	inserted := s.members.Insert(msg.Peer)
	writeJSON(w, http.StatusOK, JoinResponse{
		Peer:     msg.Peer.String(),
		Inserted: inserted,
		Members:  s.members.Len(),
	})
}

// ListPeers handles GET /v1/peers.
func (s *Server) ListPeers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, viewToResponse(s.members.Snapshot()))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{
		Status:  string(report.Status),
		Checks:  checks,
		Members: report.Members,
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrInvalidOperation,
		domain.ErrInvalidMessage,
		domain.ErrEmptyMembership,
		domain.ErrUnknownPeer,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return err.Error()
		}
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, safeDomainMessage(err))
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, ErrorCodeInternalError, "internal error")
}
