// Package api serves the treasury over HTTP. Errors are RFC 7807 problem
// details carrying a stable machine-readable code.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/yashannadate/stellar-pay/pkg/auth"
	"github.com/yashannadate/stellar-pay/pkg/treasury"
)

// Generic problem codes for failures that are not treasury errors.
const (
	CodeInvalidRequest  = "InvalidRequest"
	CodeUnauthorized    = "Unauthorized"
	CodeForbidden       = "Forbidden"
	CodeRateLimited     = "RateLimited"
	CodeInternal        = "Internal"
	CodeRouteNotFound   = "RouteNotFound"
	CodePayloadTooLarge = "PayloadTooLarge"
	CodeReplayed        = "Replayed"
)

// ProblemDetail implements RFC 7807 (Problem Details for HTTP APIs).
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`
	// Code is stable across releases; clients branch on it, not on Detail.
	Code string `json:"code"`
	// ErrorCode is the numeric treasury code, when the problem is a treasury error.
	ErrorCode uint32 `json:"error_code,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

func (p *ProblemDetail) Error() string {
	return fmt.Sprintf("%s (%s): %s", p.Title, p.Code, p.Detail)
}

func problemType(code string) string {
	return "urn:stellar-pay:problem:" + code
}

// WriteProblem writes p as application/problem+json.
func WriteProblem(w http.ResponseWriter, r *http.Request, p *ProblemDetail) {
	if p.Type == "" {
		p.Type = problemType(p.Code)
	}
	if p.Title == "" {
		p.Title = http.StatusText(p.Status)
	}
	if r != nil {
		p.Instance = r.URL.Path
	}
	p.TraceID = w.Header().Get(RequestIDHeader)

	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// WriteError writes a problem with the given status, code and detail.
func WriteError(w http.ResponseWriter, r *http.Request, status int, code, detail string) {
	WriteProblem(w, r, &ProblemDetail{Status: status, Code: code, Detail: detail})
}

// WriteBadRequest writes a 400 error response.
func WriteBadRequest(w http.ResponseWriter, r *http.Request, detail string) {
	WriteError(w, r, http.StatusBadRequest, CodeInvalidRequest, detail)
}

// WriteTooManyRequests writes a 429 error response with Retry-After header.
func WriteTooManyRequests(w http.ResponseWriter, r *http.Request, retryAfterSecs int) {
	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
	WriteError(w, r, http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Retry after the specified interval.")
}

// WriteInternal writes a 500 error response.
// The err parameter is logged but never exposed to the client.
func WriteInternal(w http.ResponseWriter, r *http.Request, err error) {
	slog.ErrorContext(r.Context(), "internal server error", "error", err, "path", r.URL.Path)
	WriteError(w, r, http.StatusInternalServerError, CodeInternal, "An unexpected error occurred. Please try again later.")
}

// statusFor maps a treasury code to an HTTP status.
func statusFor(code treasury.Code) int {
	switch code {
	case treasury.CodeNotFound:
		return http.StatusNotFound
	case treasury.CodeEmptyBatch, treasury.CodeLengthMismatch, treasury.CodeInvalidAmount,
		treasury.CodeInvalidIdentity, treasury.CodeBatchTooLarge, treasury.CodeInvalidAsset:
		return http.StatusBadRequest
	case treasury.CodeAlreadyExecuted, treasury.CodeDuplicateApproval,
		treasury.CodeQuorumNotMet, treasury.CodeAssetMismatch:
		return http.StatusConflict
	case treasury.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case treasury.CodeTransferFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError renders an error returned by the treasury.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, auth.ErrUnauthorized) {
		// A caller that presented credentials but cannot act as the claimed
		// identity is forbidden; one that presented none is unauthenticated.
		_, perr := auth.GetPrincipal(r.Context())
		_, hasProof := auth.GetProof(r.Context())
		if perr == nil || hasProof {
			WriteError(w, r, http.StatusForbidden, CodeForbidden, err.Error())
			return
		}
		WriteError(w, r, http.StatusUnauthorized, CodeUnauthorized, err.Error())
		return
	}

	te, ok := treasury.CodeOf(err)
	if !ok {
		WriteInternal(w, r, err)
		return
	}
	status := statusFor(te.Code)
	if status == http.StatusInternalServerError {
		WriteInternal(w, r, err)
		return
	}
	WriteProblem(w, r, &ProblemDetail{
		Status:    status,
		Code:      te.Name,
		ErrorCode: uint32(te.Code),
		Detail:    err.Error(),
	})
}
