package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestHealthz verifies the liveness endpoint.
func TestHealthz(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	var body map[string]string
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/healthz", nil, &body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "webrun", body["service"])
}

// TestCORSPreflight verifies browsers on other origins can reach the API.
func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/workflows", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	rec := serve(srv, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

// TestStartShutdown verifies the listener comes up and drains cleanly.
func TestStartShutdown(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	// Give the listener a beat to bind before tearing it down.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start never returned after Shutdown")
	}
}

// TestUnknownRoute verifies unmatched paths 404 instead of panicking the
// router.
func TestUnknownRoute(t *testing.T) {
	srv, _, _ := newTestServer(t, nil, nil)
	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/nope", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
