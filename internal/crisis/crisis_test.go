package crisis

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/fyrsmithlabs/dialogd/internal/detector"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const catalogYAML = `
regions:
  us:
    suicidal:
      - name: 988 Suicide & Crisis Lifeline
        contact: "988"
    general:
      - name: Emergency services
        contact: "911"
  default:
    general:
      - name: Find a Helpline
        url: https://findahelpline.com
`

func TestCatalogLookup(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)

	tests := []struct {
		name     string
		region   string
		category detector.CrisisCategory
		want     string
	}{
		{"exact", "US", detector.CategorySuicidal, "988 Suicide & Crisis Lifeline"},
		{"lowercase region", "us", detector.CategorySuicidal, "988 Suicide & Crisis Lifeline"},
		{"general in region", "US", detector.CategorySelfHarm, "Emergency services"},
		{"default region", "FR", detector.CategorySuicidal, "Find a Helpline"},
		{"empty region", "", detector.CategoryAcuteDanger, "Find a Helpline"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Lookup(tt.region, tt.category)
			require.NotEmpty(t, got)
			assert.Equal(t, tt.want, got[0].Name)
		})
	}
}

func TestParseCatalogRejectsIncomplete(t *testing.T) {
	_, err := ParseCatalog([]byte("regions:\n  US:\n    general:\n      - name: Nothing\n"))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte("regions:\n  US:\n    general:\n      - contact: \"911\"\n"))
	assert.Error(t, err)
	_, err = ParseCatalog([]byte("regions: [oops"))
	assert.Error(t, err)
	_, err = ParseCatalog(nil)
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestStaticRouterEmpty(t *testing.T) {
	_, err := StaticRouter{Catalog: &Catalog{}}.ResourcesFor(context.Background(), "US", detector.CategorySuicidal)
	assert.ErrorIs(t, err, ErrNoResources)
}

func TestResolveFallback(t *testing.T) {
	ctx := context.Background()
	fb := Fallback("Call your local emergency number.")

	failing := RouterFunc(func(context.Context, string, detector.CrisisCategory) ([]Resource, error) {
		return nil, errors.New("catalog offline")
	})
	empty := RouterFunc(func(context.Context, string, detector.CrisisCategory) ([]Resource, error) {
		return nil, nil
	})
	panicking := RouterFunc(func(context.Context, string, detector.CrisisCategory) ([]Resource, error) {
		panic("boom")
	})

	for name, r := range map[string]Router{"failing": failing, "empty": empty, "panicking": panicking, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			got, err := Resolve(ctx, r, "US", detector.CategorySuicidal, fb)
			assert.Error(t, err)
			assert.Equal(t, []Resource{fb}, got)
		})
	}

	got, err := Resolve(ctx, empty, "", detector.CategoryAmbiguous, Resource{})
	assert.ErrorIs(t, err, ErrNoResources)
	assert.Equal(t, []Resource{DefaultFallback}, got)
}

func TestResolveAbandonsSlowRouter(t *testing.T) {
	release := make(chan struct{})
	deaf := RouterFunc(func(context.Context, string, detector.CrisisCategory) ([]Resource, error) {
		<-release
		return []Resource{{Name: "late"}}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	got, err := Resolve(ctx, deaf, "US", detector.CategorySuicidal, DefaultFallback)
	close(release)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []Resource{DefaultFallback}, got)
	assert.Less(t, time.Since(start), time.Second)
}

func TestResolveRouterSuccess(t *testing.T) {
	c, err := ParseCatalog([]byte(catalogYAML))
	require.NoError(t, err)
	got, err := Resolve(context.Background(), StaticRouter{Catalog: c}, "US", detector.CategorySuicidal, DefaultFallback)
	require.NoError(t, err)
	assert.Equal(t, "988", got[0].Contact)
}

func TestFallbackText(t *testing.T) {
	assert.Equal(t, DefaultFallback, Fallback("   "))
	assert.Equal(t, "custom", Fallback(" custom ").Note)
}

func writeCatalog(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestFileRouterReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.yaml")
	writeCatalog(t, path, catalogYAML)

	r, err := NewFileRouter(path, zaptest.NewLogger(t))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, r.Watch(ctx))
	defer r.Close()

	got, err := r.ResourcesFor(ctx, "US", detector.CategorySuicidal)
	require.NoError(t, err)
	assert.Equal(t, "988", got[0].Contact)

	writeCatalog(t, path, `
regions:
  US:
    suicidal:
      - name: Updated Lifeline
        contact: "988"
`)
	require.Eventually(t, func() bool {
		got, err := r.ResourcesFor(ctx, "US", detector.CategorySuicidal)
		return err == nil && got[0].Name == "Updated Lifeline"
	}, 2*time.Second, 10*time.Millisecond)

	// A broken write keeps the last good catalog.
	writeCatalog(t, path, "regions: [oops")
	time.Sleep(50 * time.Millisecond)
	got, err = r.ResourcesFor(ctx, "US", detector.CategorySuicidal)
	require.NoError(t, err)
	assert.Equal(t, "Updated Lifeline", got[0].Name)
}

func TestFileRouterMissingFile(t *testing.T) {
	_, err := NewFileRouter(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.Error(t, err)
}

func TestFileRouterCloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crisis.yaml")
	writeCatalog(t, path, catalogYAML)
	r, err := NewFileRouter(path, nil)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	require.NoError(t, r.Watch(context.Background()))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
}
