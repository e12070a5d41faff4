package registry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/keikotool/keiko/cache"
	keikohttp "github.com/keikotool/keiko/http"
)

const requestsPayload = `{
	"info": {
		"name": "requests",
		"version": "2.31.0",
		"requires_dist": [
			"charset-normalizer (<4,>=2)",
			"idna (<4,>=2.5)",
			"urllib3 (<3,>=1.21.1)",
			"PySocks (!=1.5.7,>=1.5.6) ; extra == 'socks'"
		]
	},
	"releases": {
		"2.31.0": [{"filename": "requests-2.31.0-py3-none-any.whl"}],
		"2.30.0": [{"filename": "requests-2.30.0-py3-none-any.whl"}],
		"0.0.1": [],
		"not a version": [{"filename": "junk"}]
	}
}`

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(&Config{
		BaseURL: server.URL,
		Cache:   cache.NewMemoryCache(64, 1<<20),
	})
}

func TestGetLatestVersion(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/requests/json" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, requestsPayload)
	}))

	latest, ok := client.GetLatestVersion(context.Background(), "requests")
	if !ok {
		t.Fatal("expected lookup to succeed")
	}
	if latest != "2.31.0" {
		t.Errorf("latest = %q, want %q", latest, "2.31.0")
	}
}

func TestAliasLookupsHitCache(t *testing.T) {
	var fetches atomic.Int32
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches.Add(1)
		fmt.Fprint(w, requestsPayload)
	}))

	ctx := context.Background()
	for _, alias := range []string{"Requests", "requests", "REQUESTS"} {
		if _, ok := client.GetPackageInfo(ctx, alias); !ok {
			t.Fatalf("lookup for %q failed", alias)
		}
	}

	if fetches.Load() != 1 {
		t.Errorf("fetches = %d, want 1 (aliases must hit cache)", fetches.Load())
	}
}

func TestLookupFailuresDegradeToAbsent(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.NotFound(w, r)
		}},
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"malformed payload", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "{not json")
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, tt.handler)
			if _, ok := client.GetLatestVersion(context.Background(), "whatever"); ok {
				t.Error("expected absent result")
			}
		})
	}
}

func TestUnreachableRegistryDegradesToAbsent(t *testing.T) {
	client := NewClient(&Config{
		BaseURL: "http://127.0.0.1:1", // nothing listens here
		Cache:   cache.NewMemoryCache(8, 1<<10),
		HTTPClient: keikohttp.NewClient(&keikohttp.Config{
			RetryConfig: &keikohttp.RetryConfig{MaxRetries: 0, BackoffFactor: 1},
		}),
	})

	if _, ok := client.GetLatestVersion(context.Background(), "requests"); ok {
		t.Error("expected absent result from unreachable registry")
	}
}

func TestRequirements(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, requestsPayload)
	}))

	reqs := client.Requirements(context.Background(), "requests")
	if len(reqs) != 4 {
		t.Fatalf("requirements = %d entries, want 4", len(reqs))
	}
}

func TestSortedVersions(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, requestsPayload)
	}))

	versions := client.SortedVersions(context.Background(), "requests")

	// "0.0.1" has no files and "not a version" does not parse; both are skipped.
	want := []string{"2.31.0", "2.30.0"}
	if len(versions) != len(want) {
		t.Fatalf("versions = %v, want %v", versions, want)
	}
	for i := range want {
		if versions[i] != want[i] {
			t.Errorf("versions = %v, want %v", versions, want)
		}
	}
}
