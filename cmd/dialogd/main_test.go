package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/dialogd/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// freshRegistry points the daemon at a private metrics registry.
func freshRegistry(t *testing.T) {
	t.Helper()
	reg := prometheus.NewRegistry()
	oldReg, oldGather := registerer, gatherer
	registerer, gatherer = reg, reg
	t.Cleanup(func() { registerer, gatherer = oldReg, oldGather })
}

func TestRunIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	freshRegistry(t)

	cfg := config.Default()
	cfg.Server.Port = freePort(t)
	cfg.Logging.Sampling = false
	base := fmt.Sprintf("http://127.0.0.1:%d", cfg.Server.Port)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- run(ctx, cfg)
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get(base + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 3*time.Second, 50*time.Millisecond)

	resp, err := http.Post(base+"/api/v1/sessions", "application/json", nil)
	require.NoError(t, err)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body, _ := json.Marshal(map[string]string{"input": "can we slow down a little"})
	resp, err = http.Post(base+"/api/v1/sessions/"+created.SessionID+"/turns", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shutdown in time")
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	err := run(context.Background(), cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunMCP(t *testing.T) {
	freshRegistry(t)
	cfg := config.Default()
	cfg.Logging.Sampling = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientT, serverT := mcp.NewInMemoryTransports()
	errCh := make(chan error, 1)
	go func() {
		errCh <- runMCP(ctx, cfg, serverT)
	}()

	client := mcp.NewClient(&mcp.Implementation{Name: "test-client", Version: "v0"}, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	require.NoError(t, err)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{Name: "session_create", Arguments: map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	raw, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal(raw, &created))
	require.NotEmpty(t, created.SessionID)

	res, err = cs.CallTool(ctx, &mcp.CallToolParams{Name: "session_turn", Arguments: map[string]any{
		"session_id": created.SessionID,
		"input":      "I can't go on",
	}})
	require.NoError(t, err)
	require.False(t, res.IsError)
	raw, err = json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	var turn struct {
		Kind      string `json:"kind"`
		Resources []struct {
			Name string `json:"name"`
		} `json:"resources"`
	}
	require.NoError(t, json.Unmarshal(raw, &turn))
	assert.Equal(t, "bypass-to-resource", turn.Kind)
	assert.NotEmpty(t, turn.Resources)

	require.NoError(t, cs.Close())
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("mcp server did not stop after the client disconnected")
	}
}
