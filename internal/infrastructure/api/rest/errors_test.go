package rest

import (
	"database/sql"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/ais-go/internal/application/auth"
	"github.com/smilemakc/ais-go/pkg/planner"
	"github.com/smilemakc/ais-go/pkg/resolver"
)

func TestTranslateError_ShouldPassThroughAPIError(t *testing.T) {
	in := NewAPIError("CUSTOM", "custom failure", http.StatusTeapot)
	out := TranslateError(in)
	assert.Same(t, in, out)
}

func TestTranslateError_ShouldMapCompileError_ToBadRequestWithNodeID(t *testing.T) {
	err := &planner.CompileError{NodeID: "node-a", Reason: planner.ErrProtocolNotFound}
	out := TranslateError(err)
	assert.Equal(t, "COMPILE_ERROR", out.Code)
	assert.Equal(t, http.StatusBadRequest, out.HTTPStatus)
	assert.Equal(t, "node-a", out.Details["node_id"])
}

func TestTranslateError_ShouldMapMissingRefError_ToBadRequestWithPath(t *testing.T) {
	err := &resolver.MissingRefError{Path: "nodes.a.outputs.x", Source: resolver.ErrNeedDetect}
	out := TranslateError(err)
	assert.Equal(t, "MISSING_REF", out.Code)
	assert.Equal(t, "nodes.a.outputs.x", out.Details["path"])
}

func TestTranslateError_ShouldMapCelEvaluationError(t *testing.T) {
	err := &resolver.CelEvaluationError{Expression: "1 == 2", Reason: "type mismatch"}
	out := TranslateError(err)
	assert.Equal(t, "CEL_EVALUATION_FAILED", out.Code)
	assert.Equal(t, "1 == 2", out.Details["expression"])
}

func TestTranslateError_ShouldMapAuthErrors_ToUnauthorized(t *testing.T) {
	out := TranslateError(auth.ErrNoToken)
	assert.Equal(t, http.StatusUnauthorized, out.HTTPStatus)

	out = TranslateError(auth.ErrInvalidToken)
	assert.Equal(t, http.StatusUnauthorized, out.HTTPStatus)
}

func TestTranslateError_ShouldMapSQLNoRows_ToNotFound(t *testing.T) {
	out := TranslateError(sql.ErrNoRows)
	assert.Equal(t, "NOT_FOUND", out.Code)
	assert.Equal(t, http.StatusNotFound, out.HTTPStatus)
}

func TestTranslateError_ShouldFallBackToInternalError_WhenUnrecognized(t *testing.T) {
	out := TranslateError(assertAnError{})
	assert.Equal(t, "INTERNAL_ERROR", out.Code)
	assert.Equal(t, http.StatusInternalServerError, out.HTTPStatus)
}

type assertAnError struct{}

func (assertAnError) Error() string { return "boom" }
