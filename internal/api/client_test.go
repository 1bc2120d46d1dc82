package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient_AddsScheme(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8420", NewClient("127.0.0.1:8420", nil).baseURL)
	assert.Equal(t, "https://conductor.example", NewClient("https://conductor.example/", nil).baseURL)
}

func TestClient_StatusAndHealth(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	c := NewClient(ts.URL, ts.Client())
	require.NoError(t, c.Health(context.Background()))

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Summary.Running)
	assert.Len(t, status.Workers, 2)
}

func TestClient_ErrorResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"coordinator stopped"}`))
	}))
	defer ts.Close()

	_, err := NewClient(ts.URL, nil).Status(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "coordinator stopped", apiErr.Message)
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	addr := ts.URL
	ts.Close()

	err := NewClient(addr, nil).Health(context.Background())
	assert.Error(t, err)
}
