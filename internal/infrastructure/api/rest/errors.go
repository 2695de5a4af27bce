package rest

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/smilemakc/ais-go/internal/application/auth"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/resolver"
)

// APIError is the uniform error envelope every handler responds with
// on failure.
type APIError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	HTTPStatus int                    `json:"-"`
}

func (e *APIError) Error() string { return e.Message }

// NewAPIError builds an APIError carrying no extra details.
func NewAPIError(code, message string, httpStatus int) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus}
}

// NewAPIErrorWithDetails builds an APIError carrying structured detail
// fields, e.g. the node id a compile error was raised against.
func NewAPIErrorWithDetails(code, message string, httpStatus int, details map[string]interface{}) *APIError {
	return &APIError{Code: code, Message: message, HTTPStatus: httpStatus, Details: details}
}

var (
	ErrBadRequest       = NewAPIError("BAD_REQUEST", "invalid request", http.StatusBadRequest)
	ErrUnauthorized     = NewAPIError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized)
	ErrNotFound         = NewAPIError("NOT_FOUND", "resource not found", http.StatusNotFound)
	ErrInvalidJSON      = NewAPIError("INVALID_JSON", "invalid JSON in request body", http.StatusBadRequest)
	ErrMissingParameter = NewAPIError("MISSING_PARAMETER", "required parameter is missing", http.StatusBadRequest)
	ErrInvalidID        = NewAPIError("INVALID_ID", "invalid id format", http.StatusBadRequest)
	ErrInternalServer   = NewAPIError("INTERNAL_ERROR", "internal server error", http.StatusInternalServerError)
)

// TranslateError maps a domain/package error into the APIError shape,
// falling back to a generic 500 for anything it doesn't recognize.
func TranslateError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var compileErr *planner.CompileError
	if errors.As(err, &compileErr) {
		return NewAPIErrorWithDetails("COMPILE_ERROR", compileErr.Error(), http.StatusBadRequest, map[string]interface{}{
			"node_id": compileErr.NodeID,
		})
	}

	var missingRef *resolver.MissingRefError
	if errors.As(err, &missingRef) {
		return NewAPIErrorWithDetails("MISSING_REF", missingRef.Error(), http.StatusBadRequest, map[string]interface{}{
			"path": missingRef.Path,
		})
	}

	var celErr *resolver.CelEvaluationError
	if errors.As(err, &celErr) {
		return NewAPIErrorWithDetails("CEL_EVALUATION_FAILED", celErr.Error(), http.StatusBadRequest, map[string]interface{}{
			"expression": celErr.Expression,
		})
	}

	switch {
	case errors.Is(err, auth.ErrNoToken), errors.Is(err, auth.ErrInvalidToken):
		return NewAPIError("UNAUTHORIZED", err.Error(), http.StatusUnauthorized)
	case errors.Is(err, sql.ErrNoRows):
		return NewAPIError("NOT_FOUND", "resource not found", http.StatusNotFound)
	}

	return NewAPIError("INTERNAL_ERROR", err.Error(), http.StatusInternalServerError)
}
