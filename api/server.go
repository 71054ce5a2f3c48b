// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/rights"
)

// DefaultMaxImportSize caps snapshot import bodies at 1 GiB. A full
// snapshot carries the whole graph and every object's content, so it
// is sized independently of the per-object content cap.
const DefaultMaxImportSize = 1 << 30

// commandOverhead is headroom over the content cap for the CBOR
// envelope around a forwarded content write: kind, request ID, actor,
// object, and framing. A write at exactly the content cap must still
// fit through the internal propose route.
const commandOverhead = 4 << 10

// Config assembles a Server.
type Config struct {
	// Gate is the enforcement surface every data route goes through.
	Gate *gate.Gate

	// Node supplies consensus plumbing: membership, snapshots, the
	// internal propose landing point, and staleness signals.
	Node *cluster.Node

	// Journal resolves command outcomes by request ID. Optional;
	// without it /v1/commands returns 404 for everything.
	Journal *history.Journal

	// MaxBodySize bounds JSON and content request bodies. Zero means
	// gate.DefaultMaxContentSize. The internal propose route allows
	// commandOverhead beyond it for the command envelope.
	MaxBodySize int64

	// MaxImportSize bounds snapshot import bodies. Zero means
	// DefaultMaxImportSize.
	MaxImportSize int64

	// Logger receives request-layer diagnostics. Defaults to discard.
	Logger *slog.Logger
}

// Server routes HTTP requests into the gate and the node. Build one
// with NewServer and mount Handler on an HTTP server.
type Server struct {
	gate          *gate.Gate
	node          *cluster.Node
	journal       *history.Journal
	maxBodySize   int64
	maxImportSize int64
	logger        *slog.Logger
}

// NewServer builds the request layer over a gate and its node.
func NewServer(cfg Config) *Server {
	s := &Server{
		gate:          cfg.Gate,
		node:          cfg.Node,
		journal:       cfg.Journal,
		maxBodySize:   cfg.MaxBodySize,
		maxImportSize: cfg.MaxImportSize,
		logger:        cfg.Logger,
	}
	if s.maxBodySize <= 0 {
		s.maxBodySize = gate.DefaultMaxContentSize
	}
	if s.maxImportSize <= 0 {
		s.maxImportSize = DefaultMaxImportSize
	}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	return s
}

// Handler returns the routed /v1 surface with the replication headers
// applied to every response.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/subjects", s.handleCreateSubject)
	mux.HandleFunc("DELETE /v1/subjects/{id}", s.handleDeleteSubject)
	mux.HandleFunc("POST /v1/objects", s.handleCreateObject)
	mux.HandleFunc("DELETE /v1/objects/{id}", s.handleDeleteObject)

	mux.HandleFunc("POST /v1/rights/assign", s.handleAssign)
	mux.HandleFunc("POST /v1/rights/grant", s.handleGrant)
	mux.HandleFunc("POST /v1/rights/take", s.handleTake)
	mux.HandleFunc("POST /v1/rights/revoke", s.handleRevoke)
	mux.HandleFunc("GET /v1/rights/check", s.handleCheck)
	mux.HandleFunc("GET /v1/rights/reachable", s.handleReachable)
	mux.HandleFunc("GET /v1/graph", s.handleGraph)

	mux.HandleFunc("GET /v1/objects/{id}/content", s.handleReadContent)
	mux.HandleFunc("PUT /v1/objects/{id}/content", s.handleWriteContent)

	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("POST /v1/snapshots", s.handleTriggerSnapshot)
	mux.HandleFunc("GET /v1/snapshots/latest", s.handleLatestSnapshot)
	mux.HandleFunc("POST /v1/snapshots/import", s.handleImportSnapshot)

	mux.HandleFunc("GET /v1/commands/{id}", s.handleCommandLookup)

	mux.HandleFunc("POST /v1/cluster/join", s.handleJoin)
	mux.HandleFunc("POST /v1/cluster/leave", s.handleLeave)
	mux.HandleFunc("GET /v1/cluster/members", s.handleMembers)

	mux.HandleFunc("POST /v1/internal/propose", s.handleInternalPropose)

	return s.replicationHeaders(mux)
}

// replicationHeaders stamps every response with the applied index the
// handler read against, and marks responses from a catching-up node
// as stale so clients know queries may lag.
func (s *Server) replicationHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Warden-Applied-Index",
			strconv.FormatUint(s.node.FSM().AppliedIndex(), 10))
		if s.node.RecoveryState() != cluster.Synced {
			w.Header().Set("X-Warden-Stale", "true")
		}
		next.ServeHTTP(w, r)
	})
}

// --- Node routes ---

type idRequest struct {
	ID string `json:"id"`
}

func (s *Server) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	out, err := s.gate.CreateSubject(r.Context(), req.ID)
	s.outcome(w, out, err)
}

func (s *Server) handleDeleteSubject(w http.ResponseWriter, r *http.Request) {
	out, err := s.gate.DeleteSubject(r.Context(), r.PathValue("id"))
	s.outcome(w, out, err)
}

func (s *Server) handleCreateObject(w http.ResponseWriter, r *http.Request) {
	var req idRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	out, err := s.gate.CreateObject(r.Context(), req.ID)
	s.outcome(w, out, err)
}

func (s *Server) handleDeleteObject(w http.ResponseWriter, r *http.Request) {
	out, err := s.gate.DeleteObject(r.Context(), r.PathValue("id"))
	s.outcome(w, out, err)
}

// --- Rights routes ---

type assignRequest struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Right  string `json:"right"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	right, ok := s.parseRight(w, req.Right)
	if !ok {
		return
	}
	out, err := s.gate.Assign(r.Context(), req.Source, req.Target, right)
	s.outcome(w, out, err)
}

type grantRequest struct {
	Granter string `json:"granter"`
	Grantee string `json:"grantee"`
	Object  string `json:"object"`
	Right   string `json:"right"`
}

func (s *Server) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	right, ok := s.parseRight(w, req.Right)
	if !ok {
		return
	}
	out, err := s.gate.Grant(r.Context(), req.Granter, req.Grantee, req.Object, right)
	s.outcome(w, out, err)
}

type takeRequest struct {
	Taker  string `json:"taker"`
	Source string `json:"source"`
	Object string `json:"object"`
	Right  string `json:"right"`
}

func (s *Server) handleTake(w http.ResponseWriter, r *http.Request) {
	var req takeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	right, ok := s.parseRight(w, req.Right)
	if !ok {
		return
	}
	out, err := s.gate.Take(r.Context(), req.Taker, req.Source, req.Object, right)
	s.outcome(w, out, err)
}

type revokeRequest struct {
	Revoker string `json:"revoker"`
	Holder  string `json:"holder"`
	Object  string `json:"object"`
	Right   string `json:"right"`
}

func (s *Server) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	right, ok := s.parseRight(w, req.Right)
	if !ok {
		return
	}
	out, err := s.gate.Revoke(r.Context(), req.Revoker, req.Holder, req.Object, right)
	s.outcome(w, out, err)
}

// CheckResponse answers a has-right query.
type CheckResponse struct {
	Subject  string `json:"subject"`
	Object   string `json:"object"`
	Right    string `json:"right"`
	HasRight bool   `json:"has_right"`
}

// handleCheck serves point right queries against local state. With
// linearized=true the read barriers first; on a follower that is a
// redirect to the leader, since only the leader can barrier.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	subject, object := query.Get("subject"), query.Get("object")
	right, ok := s.parseRight(w, query.Get("right"))
	if !ok {
		return
	}
	if subject == "" || object == "" {
		writeError(w, s.logger, &cluster.InvalidCommandError{Reason: "subject and object query parameters are required"})
		return
	}

	if query.Get("linearized") == "true" {
		if !s.node.IsLeader() {
			s.redirectToLeader(w, r)
			return
		}
		if err := s.gate.Linearize(r.Context()); err != nil {
			writeError(w, s.logger, err)
			return
		}
	}

	s.writeJSON(w, http.StatusOK, CheckResponse{
		Subject:  subject,
		Object:   object,
		Right:    right.String(),
		HasRight: s.gate.HasRight(subject, object, right),
	})
}

// ReachableResponse answers a reachable-rights query.
type ReachableResponse struct {
	Subject   string   `json:"subject"`
	Object    string   `json:"object"`
	Reachable []string `json:"reachable"`
}

func (s *Server) handleReachable(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	subject, object := query.Get("subject"), query.Get("object")
	reachable, err := s.gate.ReachableRights(subject, object)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ReachableResponse{
		Subject:   subject,
		Object:    object,
		Reachable: reachable.Strings(),
	})
}

func (s *Server) handleGraph(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.gate.DumpGraph())
}

// --- Content routes ---

func (s *Server) handleReadContent(w http.ResponseWriter, r *http.Request) {
	contents, err := s.gate.ReadContent(r.URL.Query().Get("subject"), r.PathValue("id"))
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Write(contents)
}

func (s *Server) handleWriteContent(w http.ResponseWriter, r *http.Request) {
	contents, ok := s.readBody(w, r, s.maxBodySize)
	if !ok {
		return
	}
	out, err := s.gate.WriteContent(r.Context(), r.URL.Query().Get("subject"), r.PathValue("id"), contents)
	s.outcome(w, out, err)
}

// --- Status and snapshots ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.gate.Status()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleTriggerSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.node.TriggerSnapshot(); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleLatestSnapshot(w http.ResponseWriter, r *http.Request) {
	reader, err := s.node.OpenLatestSnapshot()
	if err != nil {
		if errors.Is(err, cluster.ErrNoSnapshot) {
			s.writeJSON(w, http.StatusNotFound, ErrorBody{Error: err.Error(), Code: "no_snapshot"})
			return
		}
		writeError(w, s.logger, err)
		return
	}
	defer reader.Close()
	w.Header().Set("Content-Type", "application/octet-stream")
	if _, err := io.Copy(w, reader); err != nil {
		s.logger.Warn("snapshot stream interrupted", "error", err)
	}
}

func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	payload, ok := s.readBody(w, r, s.maxImportSize)
	if !ok {
		return
	}
	out, err := s.gate.ImportState(r.Context(), payload)
	s.outcome(w, out, err)
}

// --- History ---

func (s *Server) handleCommandLookup(w http.ResponseWriter, r *http.Request) {
	requestID := r.PathValue("id")
	if s.journal == nil {
		http.NotFound(w, r)
		return
	}
	entry, found, err := s.journal.Lookup(r.Context(), requestID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	if !found {
		s.writeJSON(w, http.StatusNotFound, ErrorBody{
			Error: fmt.Sprintf("no recorded outcome for request %q", requestID),
			Code:  "command_not_found",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

// --- Membership ---

type joinRequest struct {
	NodeID      string `json:"node_id"`
	RaftAddress string `json:"raft_address"`
	APIAddress  string `json:"api_address"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.NodeID == "" || req.RaftAddress == "" || req.APIAddress == "" {
		writeError(w, s.logger, &cluster.InvalidCommandError{
			Reason: "node_id, raft_address, and api_address are all required",
		})
		return
	}
	if err := s.node.Join(r.Context(), req.NodeID, req.RaftAddress, req.APIAddress); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type leaveRequest struct {
	NodeID string `json:"node_id"`
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	var req leaveRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if req.NodeID == "" {
		writeError(w, s.logger, &cluster.InvalidCommandError{Reason: "node_id is required"})
		return
	}
	if err := s.node.Leave(r.Context(), req.NodeID); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.node.Members()
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

// --- Forwarding ---

// handleInternalPropose is the landing point for follower-forwarded
// commands: the raw CBOR command bytes are applied on this node, which
// must be the leader. The outcome rides back as JSON; transport-level
// failures use the same error taxonomy as every other route, so the
// forwarding client can tell a moved leader from a domain denial.
func (s *Server) handleInternalPropose(w http.ResponseWriter, r *http.Request) {
	encoded, ok := s.readBody(w, r, s.maxBodySize+commandOverhead)
	if !ok {
		return
	}
	outcome, err := s.node.ProposeEncoded(r.Context(), encoded)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// --- Helpers ---

// outcome writes a committed command's result. A nil outcome means
// the command never reached the log and err explains why; a non-nil
// outcome with an error is a committed domain failure, which still
// maps to its error status but carries the full outcome body so the
// caller sees the log index and request ID.
func (s *Server) outcome(w http.ResponseWriter, outcome *cluster.Outcome, err error) {
	if err != nil {
		if outcome == nil {
			writeError(w, s.logger, err)
			return
		}
		status, _, _ := classify(err)
		s.writeJSON(w, status, outcome)
		return
	}
	s.writeJSON(w, http.StatusOK, outcome)
}

// redirectToLeader issues a temporary redirect to the leader's API
// when the member book knows it, and a not_leader error otherwise.
func (s *Server) redirectToLeader(w http.ResponseWriter, r *http.Request) {
	_, _, apiAddress := s.node.Leader()
	if apiAddress == "" {
		writeError(w, s.logger, &cluster.NotLeaderError{})
		return
	}
	target := *r.URL
	target.Scheme = "http"
	target.Host = apiAddress
	http.Redirect(w, r, target.String(), http.StatusTemporaryRedirect)
}

// decodeJSON reads a bounded JSON body into dst. On failure it writes
// a shape error and reports false.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBodySize)
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(w, s.logger, &cluster.InvalidCommandError{
			Reason: fmt.Sprintf("decoding request body: %v", err),
		})
		return false
	}
	return true
}

// readBody reads a raw body bounded by limit. On failure it writes a
// shape error and reports false.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, limit int64) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, limit))
	if err != nil {
		writeError(w, s.logger, &cluster.InvalidCommandError{
			Reason: fmt.Sprintf("reading request body: %v", err),
		})
		return nil, false
	}
	return body, true
}

// parseRight converts a wire right name, writing a shape error for
// unknown names.
func (s *Server) parseRight(w http.ResponseWriter, name string) (rights.Right, bool) {
	right, err := rights.ParseRight(name)
	if err != nil {
		writeError(w, s.logger, &cluster.InvalidCommandError{Reason: err.Error()})
		return 0, false
	}
	return right, true
}

// writeJSON writes a JSON response body.
func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Warn("writing response", "error", err)
	}
}
