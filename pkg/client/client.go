// Package client provides a typed Go client for the stellar-pay HTTP API.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yashannadate/stellar-pay/pkg/api"
	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/contracts"
)

// APIError is returned when the API responds with a non-2xx status.
type APIError struct {
	Status  int
	Problem api.ProblemDetail
}

func (e *APIError) Error() string {
	if e.Problem.Code == "" {
		return fmt.Sprintf("stellar-pay api %d", e.Status)
	}
	return fmt.Sprintf("stellar-pay api %d: %s (%s)", e.Status, e.Problem.Detail, e.Problem.Code)
}

// IsCode reports whether err is an APIError carrying the given problem code
// (e.g. "QuorumNotMet").
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Problem.Code == code
}

// Client is a typed client for the stellar-pay API.
type Client struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client

	signingKey ed25519.PrivateKey
}

// Option configures the client.
type Option func(*Client)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

// WithSigningKey signs every request body with key (X-Signature).
func WithSigningKey(key ed25519.PrivateKey) Option {
	return func(c *Client) { c.signingKey = key }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.HTTPClient = hc
		}
	}
}

// New creates a new Client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		payload = b
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.signingKey != nil && payload != nil {
		sig, err := auth.SignPayload(c.signingKey, payload)
		if err != nil {
			return err
		}
		req.Header.Set(auth.SignatureHeader, sig)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, api.MaxBodyBytes))
		if err := json.Unmarshal(raw, &apiErr.Problem); err != nil {
			apiErr.Problem.Detail = strings.TrimSpace(string(raw))
		}
		return apiErr
	}

	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

// signed reports whether bodies are signed; signed approve and execute
// requests bind the proposal id and a fresh nonce into the payload.
func (c *Client) signed() bool { return c.signingKey != nil }

// CreateProposal calls POST /api/v1/proposals.
func (c *Client) CreateProposal(ctx context.Context, proposer contracts.Identity, payees []contracts.Identity, amounts []int64) (uint32, error) {
	req := api.CreateRequest{
		Proposer: string(proposer),
		Payees:   make([]string, len(payees)),
		Amounts:  amounts,
	}
	for i, p := range payees {
		req.Payees[i] = string(p)
	}
	if c.signed() {
		req.Nonce = uuid.NewString()
	}
	var out api.CreateResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/proposals", req, &out); err != nil {
		return 0, err
	}
	return out.ProposalID, nil
}

// ApproveProposal calls POST /api/v1/proposals/{id}/approve.
func (c *Client) ApproveProposal(ctx context.Context, approver contracts.Identity, id uint32) (*contracts.Proposal, error) {
	req := api.ApproveRequest{Approver: string(approver)}
	if c.signed() {
		req.ProposalID = id
		req.Nonce = uuid.NewString()
	}
	var out contracts.Proposal
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/proposals/%d/approve", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExecuteProposal calls POST /api/v1/proposals/{id}/execute.
func (c *Client) ExecuteProposal(ctx context.Context, executor contracts.Identity, id uint32, asset contracts.Asset) (*contracts.ExecutionReceipt, error) {
	req := api.ExecuteRequest{Executor: string(executor), Asset: string(asset)}
	if c.signed() {
		req.ProposalID = id
		req.Nonce = uuid.NewString()
	}
	var out contracts.ExecutionReceipt
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/proposals/%d/execute", id), req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProposal calls GET /api/v1/proposals/{id}.
func (c *Client) GetProposal(ctx context.Context, id uint32) (*contracts.Proposal, error) {
	var out contracts.Proposal
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("/api/v1/proposals/%d", id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListProposals calls GET /api/v1/proposals.
func (c *Client) ListProposals(ctx context.Context) ([]*contracts.Proposal, error) {
	var out []*contracts.Proposal
	err := c.do(ctx, http.MethodGet, "/api/v1/proposals", nil, &out)
	return out, err
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
