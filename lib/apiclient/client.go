// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/warden-foundation/warden/api"
	"github.com/warden-foundation/warden/cluster"
	"github.com/warden-foundation/warden/gate"
	"github.com/warden-foundation/warden/history"
	"github.com/warden-foundation/warden/lib/clock"
	"github.com/warden-foundation/warden/lib/rights"
)

// Config assembles a Client.
type Config struct {
	// Server is the node's API address: "host:port" or a full
	// http(s) URL. Required.
	Server string

	// FollowLeader makes the client retry not_leader responses
	// against the leader address the node reported, up to MaxHops
	// times with a short backoff.
	FollowLeader bool

	// MaxHops bounds leader chasing. Zero means 3.
	MaxHops int

	// HTTPClient overrides the default HTTP client (10s timeout).
	HTTPClient *http.Client

	// Clock paces the retry backoff. Defaults to the real clock.
	Clock clock.Clock
}

// Client is a typed client for one node's /v1 API.
type Client struct {
	base         string
	http         *http.Client
	followLeader bool
	maxHops      int
	clk          clock.Clock
}

// New builds a client for the configured server.
func New(cfg Config) (*Client, error) {
	base, err := normalizeServer(cfg.Server)
	if err != nil {
		return nil, err
	}
	client := &Client{
		base:         base,
		http:         cfg.HTTPClient,
		followLeader: cfg.FollowLeader,
		maxHops:      cfg.MaxHops,
		clk:          cfg.Clock,
	}
	if client.http == nil {
		client.http = &http.Client{Timeout: 10 * time.Second}
	}
	if client.maxHops <= 0 {
		client.maxHops = 3
	}
	if client.clk == nil {
		client.clk = clock.Real()
	}
	return client, nil
}

// normalizeServer turns "host:port" into "http://host:port" and
// strips any path.
func normalizeServer(server string) (string, error) {
	if server == "" {
		return "", errors.New("server address is required")
	}
	if !strings.HasPrefix(server, "http://") && !strings.HasPrefix(server, "https://") {
		server = "http://" + server
	}
	parsed, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parsing server address %q: %w", server, err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("server address %q has no host", server)
	}
	return parsed.Scheme + "://" + parsed.Host, nil
}

// --- Graph mutations ---

// CreateSubject adds a subject node.
func (c *Client) CreateSubject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/subjects", map[string]string{"id": id})
}

// DeleteSubject removes a subject and its edges.
func (c *Client) DeleteSubject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return c.doOutcome(ctx, http.MethodDelete, "/v1/subjects/"+url.PathEscape(id), nil, "")
}

// CreateObject adds an object node.
func (c *Client) CreateObject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/objects", map[string]string{"id": id})
}

// DeleteObject removes an object, its edges, and its content.
func (c *Client) DeleteObject(ctx context.Context, id string) (*cluster.Outcome, error) {
	return c.doOutcome(ctx, http.MethodDelete, "/v1/objects/"+url.PathEscape(id), nil, "")
}

// Assign seeds a right on the source→target edge unconditionally.
func (c *Client) Assign(ctx context.Context, source, target string, right rights.Right) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/rights/assign", map[string]string{
		"source": source, "target": target, "right": right.String(),
	})
}

// Grant extends one of granter's rights over object to grantee.
func (c *Client) Grant(ctx context.Context, granter, grantee, object string, right rights.Right) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/rights/grant", map[string]string{
		"granter": granter, "grantee": grantee, "object": object, "right": right.String(),
	})
}

// Take pulls one of source's rights over object to taker.
func (c *Client) Take(ctx context.Context, taker, source, object string, right rights.Right) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/rights/take", map[string]string{
		"taker": taker, "source": source, "object": object, "right": right.String(),
	})
}

// Revoke removes a right from the holder→object edge on revoker's
// ownership authority.
func (c *Client) Revoke(ctx context.Context, revoker, holder, object string, right rights.Right) (*cluster.Outcome, error) {
	return c.postOutcome(ctx, "/v1/rights/revoke", map[string]string{
		"revoker": revoker, "holder": holder, "object": object, "right": right.String(),
	})
}

// --- Queries ---

// Check reports whether subject holds right over object. Linearized
// checks are answered by the leader after a barrier; the redirect on
// a follower is followed transparently.
func (c *Client) Check(ctx context.Context, subject, object string, right rights.Right, linearized bool) (bool, error) {
	query := url.Values{
		"subject": {subject},
		"object":  {object},
		"right":   {right.String()},
	}
	if linearized {
		query.Set("linearized", "true")
	}
	var check api.CheckResponse
	if err := c.getJSON(ctx, "/v1/rights/check?"+query.Encode(), &check); err != nil {
		return false, err
	}
	return check.HasRight, nil
}

// Reachable lists every right subject could obtain over object
// through legal delegation chains.
func (c *Client) Reachable(ctx context.Context, subject, object string) ([]string, error) {
	query := url.Values{"subject": {subject}, "object": {object}}
	var reachable api.ReachableResponse
	if err := c.getJSON(ctx, "/v1/rights/reachable?"+query.Encode(), &reachable); err != nil {
		return nil, err
	}
	return reachable.Reachable, nil
}

// Graph fetches the canonical graph listing.
func (c *Client) Graph(ctx context.Context) (rights.Dump, error) {
	var dump rights.Dump
	err := c.getJSON(ctx, "/v1/graph", &dump)
	return dump, err
}

// Status fetches the node's status report.
func (c *Client) Status(ctx context.Context) (gate.Status, error) {
	var status gate.Status
	err := c.getJSON(ctx, "/v1/status", &status)
	return status, err
}

// CommandOutcome resolves a request ID against the node's history
// journal. found is false when the node has no record of the request,
// which for a recent timeout means the command has not applied there
// yet.
func (c *Client) CommandOutcome(ctx context.Context, requestID string) (history.Entry, bool, error) {
	var entry history.Entry
	err := c.getJSON(ctx, "/v1/commands/"+url.PathEscape(requestID), &entry)
	if err != nil {
		var apiErr *RemoteError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return history.Entry{}, false, nil
		}
		return history.Entry{}, false, err
	}
	return entry, true, nil
}

// --- Content ---

// ReadContent fetches object's stored content as subject.
func (c *Client) ReadContent(ctx context.Context, subject, object string) ([]byte, error) {
	path := "/v1/objects/" + url.PathEscape(object) + "/content?subject=" + url.QueryEscape(subject)
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}
	return io.ReadAll(resp.Body)
}

// WriteContent replaces object's stored content as subject.
func (c *Client) WriteContent(ctx context.Context, subject, object string, contents []byte) (*cluster.Outcome, error) {
	path := "/v1/objects/" + url.PathEscape(object) + "/content?subject=" + url.QueryEscape(subject)
	return c.doOutcome(ctx, http.MethodPut, path, contents, "application/octet-stream")
}

// --- Snapshots ---

// TriggerSnapshot forces the node to capture a snapshot now.
func (c *Client) TriggerSnapshot(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodPost, "/v1/snapshots", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		return decodeError(resp)
	}
	return nil
}

// DownloadSnapshot streams the node's newest local snapshot into w.
func (c *Client) DownloadSnapshot(ctx context.Context, w io.Writer) error {
	resp, err := c.do(ctx, http.MethodGet, "/v1/snapshots/latest", nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("streaming snapshot: %w", err)
	}
	return nil
}

// ImportSnapshot proposes a wholesale state restore from encoded
// snapshot bytes. The replacement travels the log, so it linearizes
// with concurrent writes.
func (c *Client) ImportSnapshot(ctx context.Context, payload []byte) (*cluster.Outcome, error) {
	return c.doOutcome(ctx, http.MethodPost, "/v1/snapshots/import", payload, "application/octet-stream")
}

// --- Membership ---

// Join asks the node (which must lead) to admit a new member.
func (c *Client) Join(ctx context.Context, nodeID, raftAddress, apiAddress string) error {
	return c.postNoContent(ctx, "/v1/cluster/join", map[string]string{
		"node_id": nodeID, "raft_address": raftAddress, "api_address": apiAddress,
	})
}

// Leave asks the node (which must lead) to remove a member.
func (c *Client) Leave(ctx context.Context, nodeID string) error {
	return c.postNoContent(ctx, "/v1/cluster/leave", map[string]string{"node_id": nodeID})
}

// Members lists the raft configuration joined with the member book.
func (c *Client) Members(ctx context.Context) ([]cluster.MemberInfo, error) {
	var members []cluster.MemberInfo
	err := c.getJSON(ctx, "/v1/cluster/members", &members)
	return members, err
}

// --- Forwarding ---

// ForwardPropose relays encoded command bytes to leaderAPIAddress's
// internal propose endpoint. Implements cluster.Forwarder for the
// node daemon.
func (c *Client) ForwardPropose(ctx context.Context, leaderAPIAddress string, encoded []byte) (*cluster.Outcome, error) {
	base, err := normalizeServer(leaderAPIAddress)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, base+"/v1/internal/propose", bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/cbor")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reaching leader %s: %w", leaderAPIAddress, err)
	}
	defer resp.Body.Close()

	var outcome cluster.Outcome
	if err := decodeOutcome(resp, &outcome); err != nil {
		return nil, err
	}
	return &outcome, nil
}

// --- Transport plumbing ---

// postOutcome POSTs a JSON body and decodes the outcome response.
func (c *Client) postOutcome(ctx context.Context, path string, body map[string]string) (*cluster.Outcome, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.doOutcome(ctx, http.MethodPost, path, encoded, "application/json")
}

// postNoContent POSTs a JSON body expecting an empty success.
func (c *Client) postNoContent(ctx context.Context, path string, body map[string]string) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := c.do(ctx, http.MethodPost, path, encoded, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// doOutcome performs a request whose response body is a command
// outcome on both success and committed domain failure.
func (c *Client) doOutcome(ctx context.Context, method, path string, body []byte, contentType string) (*cluster.Outcome, error) {
	resp, err := c.do(ctx, method, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var outcome cluster.Outcome
	if err := decodeOutcome(resp, &outcome); err != nil {
		return nil, err
	}
	if !outcome.OK() {
		return &outcome, outcome.Err()
	}
	return &outcome, nil
}

// getJSON performs a GET and decodes the JSON response into dst.
func (c *Client) getJSON(ctx context.Context, path string, dst any) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do performs one request against the client's server, chasing leader
// hints when FollowLeader is enabled: a not_leader response naming a
// leader address is retried there after a short backoff, up to
// MaxHops attempts. Responses that are not leadership failures return
// immediately; the caller decodes them.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string) (*http.Response, error) {
	base := c.base
	var lastErr error
	for hop := 0; hop < c.maxHops; hop++ {
		if hop > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-c.clk.After(time.Duration(hop) * 250 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, method, base+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		if contentType != "" {
			req.Header.Set("Content-Type", contentType)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusServiceUnavailable || !c.followLeader {
			return resp, nil
		}

		// Leadership failure: decode the hint and hop to the leader
		// (or retry here after backoff when none is known yet).
		remoteErr := decodeError(resp)
		resp.Body.Close()
		lastErr = remoteErr
		var remote *RemoteError
		if errors.As(remoteErr, &remote) && remote.LeaderAPIAddress != "" {
			if next, err := normalizeServer(remote.LeaderAPIAddress); err == nil {
				base = next
			}
		}
	}
	return nil, fmt.Errorf("no stable leader after %d attempts: %w", c.maxHops, lastErr)
}

// decodeOutcome decodes a response body that should be an outcome,
// falling back to error decoding when the body is an error envelope
// instead (pre-flight failures never reach the log and have no
// outcome). The two shapes are distinguished by the envelope's
// "error" field, which outcomes never carry.
func decodeOutcome(resp *http.Response, outcome *cluster.Outcome) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	var probe struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.Error != "" {
		return decodeErrorBody(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, outcome); err != nil {
		return decodeErrorBody(resp.StatusCode, body)
	}
	return nil
}

// decodeError reads an error envelope from the response.
func decodeError(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading error response: %w", err)
	}
	return decodeErrorBody(resp.StatusCode, body)
}

// decodeErrorBody reconstructs the typed error a response describes,
// so callers handle remote failures exactly like local ones. Codes
// the client does not recognize surface as RemoteError.
func decodeErrorBody(statusCode int, body []byte) error {
	var envelope api.ErrorBody
	if err := json.Unmarshal(body, &envelope); err != nil || envelope.Code == "" {
		return &RemoteError{
			StatusCode: statusCode,
			Message:    string(bytes.TrimSpace(body)),
		}
	}

	switch envelope.Code {
	case rights.CodeUnknownIdentifier:
		return &rights.UnknownIdentifierError{ID: detailFrom(envelope.Error)}
	case rights.CodeDuplicateIdentifier:
		return &rights.DuplicateIdentifierError{ID: detailFrom(envelope.Error)}
	case rights.CodePermissionDenied:
		return &rights.PermissionDeniedError{Reason: envelope.Error}
	case cluster.CodeAccessDenied:
		return &cluster.AccessDeniedError{Reason: envelope.Error}
	case cluster.CodeInvalidCommand:
		return &cluster.InvalidCommandError{Reason: envelope.Error}
	case cluster.CodeNotLeader:
		return &RemoteError{
			StatusCode:       statusCode,
			Code:             envelope.Code,
			Message:          envelope.Error,
			LeaderAPIAddress: envelope.LeaderAPIAddress,
		}
	case cluster.CodeProposeTimeout:
		return &RemoteError{
			StatusCode: statusCode,
			Code:       envelope.Code,
			Message:    envelope.Error,
			RequestID:  envelope.RequestID,
		}
	default:
		return &RemoteError{
			StatusCode: statusCode,
			Code:       envelope.Code,
			Message:    envelope.Error,
		}
	}
}

// detailFrom extracts the quoted identifier from an error message
// like `unknown identifier "ghost"`. Falls back to the whole message
// when no quoted segment exists.
func detailFrom(message string) string {
	first := strings.IndexByte(message, '"')
	last := strings.LastIndexByte(message, '"')
	if first >= 0 && last > first {
		return message[first+1 : last]
	}
	return message
}

// RemoteError is an API failure that does not map onto a local typed
// error: leadership and timeout conditions, unrecognized codes, and
// non-JSON responses.
type RemoteError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int

	// Code is the stable error code, empty for non-envelope bodies.
	Code string

	// Message is the server's error text.
	Message string

	// LeaderAPIAddress accompanies not_leader failures when known.
	LeaderAPIAddress string

	// RequestID accompanies propose_timeout failures: the handle for
	// a later CommandOutcome lookup.
	RequestID string
}

func (e *RemoteError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// IsNotLeader reports whether err is a remote not_leader failure.
func IsNotLeader(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == cluster.CodeNotLeader
}

// IsProposeTimeout reports whether err is a remote propose_timeout
// failure.
func IsProposeTimeout(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.Code == cluster.CodeProposeTimeout
}
