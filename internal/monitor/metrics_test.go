package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/stats"
)

func TestNewStatsClient(t *testing.T) {
	client := NewStatsClient("http://localhost:8085/")
	assert.Equal(t, "http://localhost:8085", client.baseURL)
	assert.Equal(t, 2*time.Second, client.client.Timeout)
}

func TestStatsClient_Fetch(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := stats.Stats{
		At:             at,
		Turns:          7,
		TurnsByKind:    map[string]float64{"pass-through": 5, "bypass-to-resource": 2},
		SessionsActive: 3,
		TurnLatency: stats.Histogram{
			Count: 7, Sum: 0.7,
			Buckets: []stats.Bucket{{UpperBound: 0.1, Count: 4}, {UpperBound: 0.5, Count: 7}},
		},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/stats", r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(want))
	}))
	defer server.Close()

	got, err := NewStatsClient(server.URL).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, want.At.Equal(got.At))
	assert.Equal(t, want.Turns, got.Turns)
	assert.Equal(t, want.TurnsByKind, got.TurnsByKind)
	assert.Equal(t, want.SessionsActive, got.SessionsActive)
	assert.Equal(t, want.TurnLatency, got.TurnLatency)
}

func TestStatsClient_Fetch_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	_, err := NewStatsClient(server.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestStatsClient_Fetch_MalformedJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := NewStatsClient(server.URL).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestStatsClient_Fetch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := NewStatsClient(server.URL).Fetch(ctx)
	require.Error(t, err)
}

func TestStatsClient_Health(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"degraded"}`))
	}))
	defer server.Close()

	status, err := NewStatsClient(server.URL).Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "degraded", status)
}
