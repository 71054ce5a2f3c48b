// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/lib/rights"
)

// ErrorBody is the JSON shape of every non-2xx response. Code is one
// of the stable codes from lib/rights, cluster, and gate; clients
// reconstruct typed errors from it.
type ErrorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`

	// LeaderAPIAddress accompanies not_leader responses when this
	// node knows where the leader's API lives.
	LeaderAPIAddress string `json:"leader_api_address,omitempty"`

	// RequestID accompanies propose_timeout responses: the handle
	// for resolving the unknown outcome against /v1/commands.
	RequestID string `json:"request_id,omitempty"`
}

// classify maps err onto the HTTP status taxonomy: shape and
// duplicate problems are 400, denials 403, missing things 404,
// leadership and sync problems 503 (with a retry hint), unknown
// outcomes 504. Anything unrecognized is a 500.
func classify(err error) (int, ErrorBody, bool) {
	body := ErrorBody{Error: err.Error()}

	var (
		unknown    *rights.UnknownIdentifierError
		duplicate  *rights.DuplicateIdentifierError
		denied     *rights.PermissionDeniedError
		access     *cluster.AccessDeniedError
		invalid    *cluster.InvalidCommandError
		notLeader  *cluster.NotLeaderError
		notFound   *gate.ContentNotFoundError
		unresolved *gate.UnresolvedError
	)
	switch {
	case errors.As(err, &invalid):
		body.Code = cluster.CodeInvalidCommand
		return http.StatusBadRequest, body, false
	case errors.As(err, &duplicate):
		body.Code = rights.CodeDuplicateIdentifier
		return http.StatusBadRequest, body, false
	case errors.As(err, &denied):
		body.Code = rights.CodePermissionDenied
		return http.StatusForbidden, body, false
	case errors.As(err, &access):
		body.Code = cluster.CodeAccessDenied
		return http.StatusForbidden, body, false
	case errors.As(err, &unknown):
		body.Code = rights.CodeUnknownIdentifier
		return http.StatusNotFound, body, false
	case errors.As(err, &notFound):
		body.Code = gate.CodeContentNotFound
		return http.StatusNotFound, body, false
	case errors.As(err, &notLeader):
		body.Code = cluster.CodeNotLeader
		body.LeaderAPIAddress = notLeader.LeaderAPIAddress
		return http.StatusServiceUnavailable, body, true
	case errors.Is(err, cluster.ErrNotSynced):
		body.Code = cluster.CodeNotSynced
		return http.StatusServiceUnavailable, body, true
	case errors.As(err, &unresolved):
		body.Code = cluster.CodeProposeTimeout
		body.RequestID = unresolved.RequestID
		return http.StatusGatewayTimeout, body, false
	case errors.Is(err, cluster.ErrProposeTimeout):
		body.Code = cluster.CodeProposeTimeout
		return http.StatusGatewayTimeout, body, false
	default:
		body.Code = "internal"
		return http.StatusInternalServerError, body, false
	}
}

// writeError classifies err and writes its JSON error body.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	status, body, retry := classify(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	}
	if retry {
		w.Header().Set("Retry-After", "1")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
