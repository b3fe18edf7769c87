package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// Treasury is the service surface the HTTP layer drives.
type Treasury interface {
	Create(ctx context.Context, proposer contracts.Identity, payees []contracts.Identity, amounts []int64) (uint32, error)
	Approve(ctx context.Context, approver contracts.Identity, id uint32) (*contracts.Proposal, error)
	Execute(ctx context.Context, executor contracts.Identity, id uint32, asset contracts.Asset) (*contracts.ExecutionReceipt, error)
	GetProposal(ctx context.Context, id uint32) (*contracts.Proposal, error)
	ListProposals(ctx context.Context) ([]*contracts.Proposal, error)
	Count(ctx context.Context) (uint32, error)
	RequiredApprovals() uint32
}

// Server exposes a Treasury over HTTP.
type Server struct {
	svc        Treasury
	schemas    *schemas
	logger     *slog.Logger
	validator  *auth.JWTValidator
	signatures bool
	replay     auth.ReplayGuard
	limiter    *RateLimiter
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the access and error logger.
func WithLogger(l *slog.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithJWT authenticates bearer tokens with v.
func WithJWT(v *auth.JWTValidator) ServerOption {
	return func(s *Server) { s.validator = v }
}

// WithSignatures attaches X-Signature proofs to requests.
func WithSignatures() ServerOption {
	return func(s *Server) { s.signatures = true }
}

// WithReplayGuard sets where accepted signed requests are remembered. With
// signatures on and no guard, an in-memory guard is used.
func WithReplayGuard(g auth.ReplayGuard) ServerOption {
	return func(s *Server) { s.replay = g }
}

// WithRateLimiter applies a per-IP limit to every route.
func WithRateLimiter(rl *RateLimiter) ServerOption {
	return func(s *Server) { s.limiter = rl }
}

// NewServer builds a Server. Request schemas compile here so a bad schema
// fails at startup.
func NewServer(svc Treasury, opts ...ServerOption) (*Server, error) {
	if svc == nil {
		return nil, errors.New("api: treasury is required")
	}
	sc, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s := &Server{svc: svc, schemas: sc, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	if s.signatures && s.replay == nil {
		s.replay = auth.NewMemoryReplayGuard(auth.DefaultReplayTTL)
	}
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/proposals", s.handleCreate)
	mux.HandleFunc("GET /api/v1/proposals", s.handleList)
	mux.HandleFunc("GET /api/v1/proposals/{id}", s.handleGet)
	mux.HandleFunc("POST /api/v1/proposals/{id}/approve", s.handleApprove)
	mux.HandleFunc("POST /api/v1/proposals/{id}/execute", s.handleExecute)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, http.StatusNotFound, CodeRouteNotFound, "no route for "+r.Method+" "+r.URL.Path)
	})

	var h http.Handler = mux
	if s.signatures {
		h = SignatureMiddleware(h)
	}
	h = JWTMiddleware(s.validator)(h)
	if s.limiter != nil {
		h = s.limiter.Middleware(h)
	}
	h = LoggingMiddleware(s.logger)(h)
	return RequestIDMiddleware(h)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !s.decode(w, r, s.schemas.create, &req) || !s.claimSigned(w, r, req.Nonce, false, 0) {
		return
	}
	payees := make([]contracts.Identity, len(req.Payees))
	for i, p := range req.Payees {
		payees[i] = contracts.Identity(p)
	}

	id, err := s.svc.Create(r.Context(), contracts.Identity(req.Proposer), payees, req.Amounts)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/api/v1/proposals/%d", id))
	writeJSON(w, http.StatusCreated, CreateResponse{ProposalID: id})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ApproveRequest
	if !s.decode(w, r, s.schemas.approve, &req) || !matchesPath(w, r, req.ProposalID, id) ||
		!s.claimSigned(w, r, req.Nonce, true, req.ProposalID) {
		return
	}

	p, err := s.svc.Approve(r.Context(), contracts.Identity(req.Approver), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req ExecuteRequest
	if !s.decode(w, r, s.schemas.execute, &req) || !matchesPath(w, r, req.ProposalID, id) ||
		!s.claimSigned(w, r, req.Nonce, true, req.ProposalID) {
		return
	}

	receipt, err := s.svc.Execute(r.Context(), contracts.Identity(req.Executor), id, contracts.Asset(req.Asset))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	p, err := s.svc.GetProposal(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ps, err := s.svc.ListProposals(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if ps == nil {
		ps = []*contracts.Proposal{}
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.Count(r.Context())
	if err != nil {
		WriteInternal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:            "ok",
		ProposalCount:     n,
		RequiredApprovals: s.svc.RequiredApprovals(),
	})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, schema *jsonschema.Schema, dst any) bool {
	err := decodeValidated(http.MaxBytesReader(w, r.Body, MaxBodyBytes), schema, dst)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		WriteError(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
		return false
	}
	WriteBadRequest(w, r, err.Error())
	return false
}

func pathID(w http.ResponseWriter, r *http.Request) (uint32, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		WriteBadRequest(w, r, fmt.Sprintf("invalid proposal id %q", raw))
		return 0, false
	}
	return uint32(id), true
}

func matchesPath(w http.ResponseWriter, r *http.Request, bodyID, pathID uint32) bool {
	if bodyID != 0 && bodyID != pathID {
		WriteBadRequest(w, r, fmt.Sprintf("body proposal_id %d does not match path id %d", bodyID, pathID))
		return false
	}
	return true
}

// claimSigned lets a signed request through once. Signed requests must carry
// a nonce, and those scoped to a proposal must name it in the body so the
// signature covers it. Unsigned requests pass untouched.
func (s *Server) claimSigned(w http.ResponseWriter, r *http.Request, nonce string, scoped bool, bodyID uint32) bool {
	proof, ok := auth.GetProof(r.Context())
	if !ok {
		return true
	}
	if nonce == "" {
		WriteBadRequest(w, r, "signed request has no nonce")
		return false
	}
	if scoped && bodyID == 0 {
		WriteBadRequest(w, r, "signed request has no proposal_id")
		return false
	}
	if s.replay == nil {
		return true
	}
	fresh, err := s.replay.Claim(r.Context(), auth.ReplayKey(proof))
	if err != nil {
		WriteInternal(w, r, err)
		return false
	}
	if !fresh {
		WriteError(w, r, http.StatusConflict, CodeReplayed, auth.ErrReplayed.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
