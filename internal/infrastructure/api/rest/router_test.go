package rest

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/smilemakc/ais-go/internal/application/auth"
	"github.com/smilemakc/ais-go/internal/config"
	"github.com/smilemakc/ais-go/internal/infrastructure/logger"
)

func testDeps() Dependencies {
	return Dependencies{
		Gate:   auth.NewGate(nil),
		Logger: logger.New(config.LoggingConfig{Level: "error", Format: "text"}),
	}
}

func TestNewRouter_Health_ShouldReportHealthy_WhenNoDBOrCacheConfigured(t *testing.T) {
	router := NewRouter(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Ready_ShouldAlwaysReport200(t *testing.T) {
	router := NewRouter(testDeps())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNewRouter_Plans_ShouldReject_WhenGateEnabledAndNoToken(t *testing.T) {
	deps := testDeps()
	deps.Gate = auth.NewGate([]string{"secret"})
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/plans/"+"00000000-0000-0000-0000-000000000000", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
