package planner

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keikotool/keiko/cache"
	"github.com/keikotool/keiko/manifest"
	"github.com/keikotool/keiko/registry"
)

// fakePackage describes one package served by the fake registry.
type fakePackage struct {
	latest   string
	requires []string
}

// newFakeRegistry serves PyPI-style JSON for the given packages, keyed by
// normalized name. Unknown packages get a 404.
func newFakeRegistry(t *testing.T, packages map[string]fakePackage) *registry.Client {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/json")
		pkg, ok := packages[name]
		if !ok {
			http.NotFound(w, r)
			return
		}

		payload := map[string]any{
			"info": map[string]any{
				"name":          name,
				"version":       pkg.latest,
				"requires_dist": pkg.requires,
			},
			"releases": map[string]any{
				pkg.latest: []map[string]any{{"filename": name + ".whl"}},
			},
		}
		_ = json.NewEncoder(w).Encode(payload)
	}))
	t.Cleanup(server.Close)

	return registry.NewClient(&registry.Config{
		BaseURL: server.URL,
		Cache:   cache.NewMemoryCache(256, 1<<20),
	})
}

func TestPlanRewritesToFloorConstraint(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"requests": {latest: "2.31.0"},
	})
	p := New(reg, nil)

	entries, records := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("requests>=2.19.0"),
	})

	require.Len(t, entries, 1)
	assert.Equal(t, "requests>=2.31.0", entries[0].Raw)

	require.Len(t, records, 1)
	assert.Equal(t, "requests: 2.19.0 -> 2.31.0", records[0].String())
}

func TestPlanPreservesUnresolvable(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"requests": {latest: "2.31.0"},
	})
	p := New(reg, nil)

	original := "no-such-package[extra]>=1.0  # odd spacing preserved"
	entries, records := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("requests>=2.19.0"),
		manifest.Literal(original),
	})

	require.Len(t, entries, 2)
	assert.Equal(t, "requests>=2.31.0", entries[0].Raw)
	// Byte-for-byte preservation of the unresolvable declaration.
	assert.Equal(t, original, entries[1].Raw)

	require.Len(t, records, 1)
}

func TestPlanNoRecordWhenRegistryIsBehind(t *testing.T) {
	// Stale registry or already-ahead pin: the floor still reflects the
	// registry latest, but no update record is emitted.
	reg := newFakeRegistry(t, map[string]fakePackage{
		"requests": {latest: "1.9.0"},
	})
	p := New(reg, nil)

	entries, records := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("requests>=2.0.0"),
	})

	require.Len(t, entries, 1)
	assert.Equal(t, "requests>=1.9.0", entries[0].Raw)
	assert.Empty(t, records)
}

func TestPlanRecordsAbsentBaseline(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"requests": {latest: "2.31.0"},
	})
	p := New(reg, nil)

	_, records := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("requests"),
	})

	require.Len(t, records, 1)
	assert.Equal(t, "requests: none -> 2.31.0", records[0].String())
}

func TestPlanKeepsExtrasAndCasing(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"uvicorn": {latest: "0.30.1"},
		"flask":   {latest: "3.0.3"},
	})
	p := New(reg, nil)

	entries, _ := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("uvicorn[standard]>=0.29"),
		manifest.Literal("Flask>=2.0"),
	})

	require.Len(t, entries, 2)
	assert.Equal(t, "uvicorn[standard]>=0.30.1", entries[0].Raw)
	assert.Equal(t, "Flask>=3.0.3", entries[1].Raw)
}

func TestPlanAppendsIncludesAfterResolvedEntries(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"pytest": {latest: "8.2.0"},
		"ruff":   {latest: "0.4.4"},
	})
	p := New(reg, nil)

	entries, _ := p.Plan(context.Background(), []manifest.Entry{
		manifest.Include("lint"),
		manifest.Literal("pytest>=8.0"),
		manifest.Include("typing"),
		manifest.Literal("ruff>=0.4"),
	})

	require.Len(t, entries, 4)
	assert.Equal(t, "pytest>=8.2.0", entries[0].Raw)
	assert.Equal(t, "ruff>=0.4.4", entries[1].Raw)
	// Include-markers keep their relative order, appended at the end.
	assert.Equal(t, "lint", entries[2].IncludeGroup)
	assert.Equal(t, "typing", entries[3].IncludeGroup)
}

func TestPlanTransitiveSeedsFromClosure(t *testing.T) {
	reg := newFakeRegistry(t, map[string]fakePackage{
		"fastapi":   {latest: "0.111.0", requires: []string{"starlette<0.38.0,>=0.37.2", "pydantic>=1.7.4"}},
		"starlette": {latest: "0.37.2"},
		"pydantic":  {latest: "2.7.1"},
	})
	p := New(reg, nil)
	p.Transitive = true

	entries, _ := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("fastapi>=0.100"),
	})

	// Only declared entries are rewritten; the closure just seeds versions.
	require.Len(t, entries, 1)
	assert.Equal(t, "fastapi>=0.111.0", entries[0].Raw)
}

func TestPlanPrereleaseLatestStillRewrites(t *testing.T) {
	// Some packages publish only prereleases; the floor still follows the
	// registry's latest.
	reg := newFakeRegistry(t, map[string]fakePackage{
		"pydantic": {latest: "2.0.0rc1"},
	})
	p := New(reg, nil)

	entries, records := p.Plan(context.Background(), []manifest.Entry{
		manifest.Literal("pydantic>=1.10.0"),
	})

	require.Len(t, entries, 1)
	assert.Equal(t, "pydantic>=2.0.0rc1", entries[0].Raw)

	require.Len(t, records, 1)
	assert.Equal(t, "pydantic: 1.10.0 -> 2.0.0rc1", records[0].String())
}
