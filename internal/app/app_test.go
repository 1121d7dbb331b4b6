package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/fyrsmithlabs/dialogd/internal/arbitration"
	"github.com/fyrsmithlabs/dialogd/internal/config"
	"github.com/fyrsmithlabs/dialogd/internal/crisis"
	"github.com/fyrsmithlabs/dialogd/internal/events"
	"github.com/fyrsmithlabs/dialogd/internal/logging"
	"github.com/fyrsmithlabs/dialogd/internal/orchestrator"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const catalogYAML = `
regions:
  US:
    suicidal:
      - name: 988 Suicide & Crisis Lifeline
        contact: "988"
  default:
    general:
      - name: Find a Helpline
        url: https://findahelpline.com
`

func build(t *testing.T, cfg *config.Config) (*App, *events.Recording) {
	t.Helper()
	rec := &events.Recording{}
	a, err := Build(context.Background(), cfg, logging.Nop(), Options{
		Registerer: prometheus.NewRegistry(),
		Reporter:   rec,
	})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })
	return a, rec
}

func TestBuildInMemory(t *testing.T) {
	a, _ := build(t, config.Default())
	assert.Nil(t, a.Responder)

	id := a.Orchestrator.CreateSession()
	plan, err := a.Orchestrator.ProcessTurn(context.Background(), id, "I can't go on", nil, orchestrator.TurnOptions{})
	require.NoError(t, err)
	require.Equal(t, arbitration.KindBypass, plan.Directive.Kind)
	require.Len(t, plan.Directive.Payload.Resources, 1)
	assert.Equal(t, crisis.DefaultFallback.Name, plan.Directive.Payload.Resources[0].Name)
}

func TestBuildPersistentStores(t *testing.T) {
	dir := t.TempDir()
	catalog := filepath.Join(dir, "crisis.yaml")
	require.NoError(t, os.WriteFile(catalog, []byte(catalogYAML), 0o600))

	cfg := config.Default()
	cfg.Memory.SQLitePath = filepath.Join(dir, "memory.db")
	cfg.Memory.ChromemPath = filepath.Join(dir, "vectors")
	cfg.Crisis.CatalogPath = catalog
	cfg.Crisis.DefaultRegion = "US"

	a, rec := build(t, cfg)
	id := a.Orchestrator.CreateSession()
	plan, err := a.Orchestrator.ProcessTurn(context.Background(), id, "I can't go on", nil, orchestrator.TurnOptions{})
	require.NoError(t, err)

	require.Equal(t, arbitration.KindBypass, plan.Directive.Kind)
	require.NotEmpty(t, plan.Directive.Payload.Resources)
	assert.Equal(t, "988", plan.Directive.Payload.Resources[0].Contact)
	assert.Empty(t, rec.OfType(events.TypeCrisisRouterFallback))

	plan, err = a.Orchestrator.ProcessTurn(context.Background(), id, "tell me about the river", nil, orchestrator.TurnOptions{})
	require.NoError(t, err)
	assert.False(t, plan.Degraded)
}

func TestBuildRejectsInvalid(t *testing.T) {
	t.Run("missing catalog", func(t *testing.T) {
		cfg := config.Default()
		cfg.Crisis.CatalogPath = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry()})
		require.Error(t, err)
	})

	t.Run("responder without key", func(t *testing.T) {
		cfg := config.Default()
		cfg.Responder.Enabled = true
		_, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry()})
		require.ErrorIs(t, err, config.ErrInvalidConfig)
	})
}

func TestBuildWithResponder(t *testing.T) {
	cfg := config.Default()
	cfg.Responder.Enabled = true
	cfg.Responder.APIKey = config.Secret("sk-test")
	cfg.Responder.RedactAllowList = []string{`example\.org`}

	a, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry(), Reporter: events.Nop{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	assert.NotNil(t, a.Responder)
}

func TestBuildQdrantUnreachable(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.VectorBackend = "qdrant"
	cfg.Memory.Qdrant.Host = "127.0.0.1"
	cfg.Memory.Qdrant.Port = 1

	_, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry(), Reporter: events.Nop{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to qdrant")
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := config.Default()
	cfg.Memory.SQLitePath = filepath.Join(t.TempDir(), "memory.db")
	a, err := Build(context.Background(), cfg, nil, Options{Registerer: prometheus.NewRegistry(), Reporter: events.Nop{}})
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())

	var nilApp *App
	assert.NoError(t, nilApp.Close())
}
