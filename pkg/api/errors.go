// Package api is the boundary layer: it maps domain errors onto wire codes,
// authenticates callers into an authz.Principal, and serves the admin
// surface. Everything below this package stays wire-agnostic.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"connectrpc.com/connect"

	"github.com/plaenen/iamcore/pkg/domain"
)

// ErrorToConnectCode maps a domain error kind onto its connect RPC code.
func ErrorToConnectCode(err error) connect.Code {
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		return connect.CodeInvalidArgument
	case domain.KindNotFound:
		return connect.CodeNotFound
	case domain.KindAlreadyExists:
		return connect.CodeAlreadyExists
	case domain.KindFailedPrecondition:
		return connect.CodeFailedPrecondition
	case domain.KindPermissionDenied:
		return connect.CodePermissionDenied
	case domain.KindUnavailable:
		return connect.CodeUnavailable
	default:
		return connect.CodeInternal
	}
}

// ErrorToConnectError wraps a domain error for a connect handler.
func ErrorToConnectError(err error) *connect.Error {
	return connect.NewError(ErrorToConnectCode(err), err)
}

// ErrorToHTTPStatus maps a domain error kind onto an HTTP status.
func ErrorToHTTPStatus(err error) int {
	switch domain.KindOf(err) {
	case domain.KindInvalidArgument:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindAlreadyExists:
		return http.StatusConflict
	case domain.KindFailedPrecondition:
		return http.StatusPreconditionFailed
	case domain.KindPermissionDenied:
		return http.StatusForbidden
	case domain.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody is the JSON error surface of the admin API. StableCode lets
// clients and alerts key off an ID that survives message rewording.
type errorBody struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StableCode string `json:"stable_code,omitempty"`
}

// writeError renders a domain error as JSON.
func writeError(w http.ResponseWriter, err error) {
	body := errorBody{
		Code:       domain.KindOf(err).String(),
		Message:    err.Error(),
		StableCode: domain.StableID(err),
	}
	var domainErr *domain.Error
	if errors.As(err, &domainErr) {
		body.Message = domainErr.Message
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(ErrorToHTTPStatus(err))
	json.NewEncoder(w).Encode(body)
}
