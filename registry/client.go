// Package registry provides the PyPI JSON API client.
//
// Lookups are memoized per run in an explicitly owned cache keyed by the
// package's normalized name, so differently spelled aliases of one package
// never fetch twice. Every failure mode (network error, non-2xx status,
// malformed payload) degrades to "not found": callers treat absence as
// "could not determine, leave the declaration unchanged".
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/keikotool/keiko/cache"
	keikohttp "github.com/keikotool/keiko/http"
	"github.com/keikotool/keiko/observability"
	"github.com/keikotool/keiko/requirement"
	"github.com/keikotool/keiko/version"
)

// DefaultBaseURL is the PyPI JSON API endpoint.
const DefaultBaseURL = "https://pypi.org/pypi"

// cacheTTL is effectively "for the rest of the run"; the cache itself is
// discarded at process exit.
const cacheTTL = time.Hour

// ReleaseFile is one uploaded file of a release.
type ReleaseFile struct {
	Filename string `json:"filename"`
	Yanked   bool   `json:"yanked"`
}

// PackageInfo is the registry's record for a package.
type PackageInfo struct {
	Info struct {
		Name         string   `json:"name"`
		Version      string   `json:"version"`
		RequiresDist []string `json:"requires_dist"`
	} `json:"info"`

	// Releases maps each published version to its uploaded files.
	Releases map[string][]ReleaseFile `json:"releases"`
}

// Config holds registry client configuration.
type Config struct {
	BaseURL    string
	HTTPClient *keikohttp.Client
	Cache      *cache.MemoryCache // owned by the engine run, required
	Logger     observability.Logger
}

// Client fetches package metadata from a PyPI-compatible registry.
type Client struct {
	baseURL    string
	httpClient *keikohttp.Client
	cache      *cache.MemoryCache
	logger     observability.Logger
}

// NewClient creates a registry client. The cache is passed in explicitly and
// scoped to one engine run; there is no process-wide singleton.
func NewClient(cfg *Config) *Client {
	c := &Client{
		baseURL:    cfg.BaseURL,
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		logger:     cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.httpClient == nil {
		c.httpClient = keikohttp.NewClient(nil)
	}
	if c.cache == nil {
		c.cache = cache.NewMemoryCache(4096, 64<<20)
	}
	if c.logger == nil {
		c.logger = observability.NewNullLogger()
	}
	return c
}

// GetPackageInfo returns the registry record for a package, or (nil, false)
// when it cannot be determined. The lookup is cached under the normalized
// package name.
func (c *Client) GetPackageInfo(ctx context.Context, name string) (*PackageInfo, bool) {
	normalized := requirement.NormalizeName(name)
	cacheKey := "pkg:" + normalized

	if data, ok := c.cache.Get(cacheKey); ok {
		observability.RegistryRequestsTotal.WithLabelValues("cache_hit").Inc()
		var info PackageInfo
		if err := json.Unmarshal(data, &info); err == nil {
			return &info, true
		}
		// A corrupt cache entry falls through to a refetch.
		c.cache.Delete(cacheKey)
	}

	url := fmt.Sprintf("%s/%s/json", c.baseURL, normalized)

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		observability.RegistryRequestsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	resp, err := c.httpClient.DoWithRetry(ctx, req)
	if err != nil {
		c.logger.WarnContext(ctx, "Could not fetch package info for {Package}: {Error}", normalized, err)
		observability.RegistryRequestsTotal.WithLabelValues("error").Inc()
		return nil, false
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		c.logger.WarnContext(ctx, "Registry returned {StatusCode} for {Package}", resp.StatusCode, normalized)
		if resp.StatusCode == http.StatusNotFound {
			observability.RegistryRequestsTotal.WithLabelValues("not_found").Inc()
		} else {
			observability.RegistryRequestsTotal.WithLabelValues("error").Inc()
		}
		return nil, false
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		observability.RegistryRequestsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	var info PackageInfo
	if err := json.Unmarshal(data, &info); err != nil {
		c.logger.WarnContext(ctx, "Malformed registry payload for {Package}: {Error}", normalized, err)
		observability.RegistryRequestsTotal.WithLabelValues("error").Inc()
		return nil, false
	}

	c.cache.Set(cacheKey, data, cacheTTL)
	observability.RegistryRequestsTotal.WithLabelValues("fetched").Inc()

	return &info, true
}

// GetLatestVersion returns the registry's latest version tag for a package,
// or ("", false) when it cannot be determined.
func (c *Client) GetLatestVersion(ctx context.Context, name string) (string, bool) {
	info, ok := c.GetPackageInfo(ctx, name)
	if !ok || info.Info.Version == "" {
		return "", false
	}
	return info.Info.Version, true
}

// Requirements returns the latest version's declared requirement strings.
// Absence of the metadata yields an empty slice, not an error.
func (c *Client) Requirements(ctx context.Context, name string) []string {
	info, ok := c.GetPackageInfo(ctx, name)
	if !ok {
		return nil
	}
	return info.Info.RequiresDist
}

// SortedVersions returns the package's published versions that parse and
// have at least one uploaded file, newest first.
func (c *Client) SortedVersions(ctx context.Context, name string) []string {
	info, ok := c.GetPackageInfo(ctx, name)
	if !ok {
		return nil
	}

	type parsed struct {
		raw string
		v   *version.Version
	}
	versions := make([]parsed, 0, len(info.Releases))
	for raw, files := range info.Releases {
		if len(files) == 0 {
			continue
		}
		v, err := version.Parse(raw)
		if err != nil {
			continue
		}
		versions = append(versions, parsed{raw: raw, v: v})
	}

	sort.Slice(versions, func(i, j int) bool {
		return versions[i].v.Compare(versions[j].v) > 0
	})

	out := make([]string, len(versions))
	for i, p := range versions {
		out[i] = p.raw
	}
	return out
}
