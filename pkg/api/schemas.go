package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const createSchema = `{
  "type": "object",
  "required": ["proposer", "payees", "amounts"],
  "additionalProperties": false,
  "properties": {
    "proposer": {"type": "string"},
    "payees":   {"type": "array", "items": {"type": "string"}},
    "amounts":  {"type": "array", "items": {"type": "integer"}},
    "nonce":    {"type": "string"}
  }
}`

const approveSchema = `{
  "type": "object",
  "required": ["approver"],
  "additionalProperties": false,
  "properties": {
    "approver":    {"type": "string"},
    "proposal_id": {"type": "integer", "minimum": 1},
    "nonce":       {"type": "string"}
  }
}`

const executeSchema = `{
  "type": "object",
  "required": ["executor", "asset"],
  "additionalProperties": false,
  "properties": {
    "executor":    {"type": "string"},
    "asset":       {"type": "string"},
    "proposal_id": {"type": "integer", "minimum": 1},
    "nonce":       {"type": "string"}
  }
}`

// CreateRequest is the body of POST /api/v1/proposals.
type CreateRequest struct {
	Proposer string   `json:"proposer"`
	Payees   []string `json:"payees"`
	Amounts  []int64  `json:"amounts"`
	Nonce    string   `json:"nonce,omitempty"`
}

// ApproveRequest is the body of POST /api/v1/proposals/{id}/approve.
// ProposalID, when set, must match the path. Signed requests must set it and
// a Nonce, and each signed body is accepted once.
type ApproveRequest struct {
	Approver   string `json:"approver"`
	ProposalID uint32 `json:"proposal_id,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
}

// ExecuteRequest is the body of POST /api/v1/proposals/{id}/execute. It
// follows the ApproveRequest rules for ProposalID and Nonce.
type ExecuteRequest struct {
	Executor   string `json:"executor"`
	Asset      string `json:"asset"`
	ProposalID uint32 `json:"proposal_id,omitempty"`
	Nonce      string `json:"nonce,omitempty"`
}

// CreateResponse is returned by a successful create.
type CreateResponse struct {
	ProposalID uint32 `json:"proposal_id"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string `json:"status"`
	ProposalCount     uint32 `json:"proposal_count"`
	RequiredApprovals uint32 `json:"required_approvals"`
}

// schemas holds the compiled request schemas.
type schemas struct {
	create  *jsonschema.Schema
	approve *jsonschema.Schema
	execute *jsonschema.Schema
}

func compileSchemas() (*schemas, error) {
	create, err := compileSchema("create", createSchema)
	if err != nil {
		return nil, err
	}
	approve, err := compileSchema("approve", approveSchema)
	if err != nil {
		return nil, err
	}
	execute, err := compileSchema("execute", executeSchema)
	if err != nil {
		return nil, err
	}
	return &schemas{create: create, approve: approve, execute: execute}, nil
}

func compileSchema(name, schema string) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	schemaURL := "urn:stellar-pay:request:" + name
	if err := c.AddResource(schemaURL, strings.NewReader(schema)); err != nil {
		return nil, fmt.Errorf("failed to add %s schema: %w", name, err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
	}
	return compiled, nil
}

// decodeValidated reads a JSON body, validates it against schema and
// decodes it into dst.
func decodeValidated(r io.Reader, schema *jsonschema.Schema, dst any) error {
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	return nil
}
