package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, origins ...string) http.Handler {
	t.Helper()
	config := testConfig
	config.AllowedOrigins = origins
	return NewRouter(newTestState(t), config)
}

func TestRequestIdIsGenerated(t *testing.T) {
	router := newTestRouter(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, rec.Header().Get(RequestIdHeader), 36)
}

func TestRequestIdIsPropagated(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIdHeader, "abc-123")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, "abc-123", rec.Header().Get(RequestIdHeader))
}

func TestCorsPreflightAllowedOrigin(t *testing.T) {
	router := newTestRouter(t, "https://forms.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/verification-link", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "https://forms.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
}

func TestCorsPreflightUnknownOrigin(t *testing.T) {
	router := newTestRouter(t, "https://forms.example.com")

	req := httptest.NewRequest(http.MethodOptions, "/api/verification-link", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsWildcard(t *testing.T) {
	router := newTestRouter(t, "*")

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://anything.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "https://anything.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCorsDisabledWithoutOrigins(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "https://forms.example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestDebugRouteDisabledByDefault(t *testing.T) {
	config := testConfig
	config.EnableDebugRoute = false
	router := NewRouter(newTestState(t), config)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jotform-debug", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
}
