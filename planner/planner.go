// Package planner computes the rewritten declarations for a dependency group.
//
// Each group is planned in isolation: the direct dependencies, every optional
// group, and every named dependency group get their own pass, with no
// cross-group version sharing. Registry lookups for a group run with bounded
// concurrency; the rewrite itself is sequential so entry ordering stays
// deterministic.
package planner

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/keikotool/keiko/manifest"
	"github.com/keikotool/keiko/observability"
	"github.com/keikotool/keiko/registry"
	"github.com/keikotool/keiko/requirement"
	"github.com/keikotool/keiko/version"
)

// defaultConcurrency bounds parallel registry lookups during planning.
const defaultConcurrency = 8

// UpdateRecord reports one applied version change. Records are purely
// observational; resolution logic never consults them.
type UpdateRecord struct {
	Name       string
	OldVersion string // empty when no prior version was declared
	NewVersion string
}

// String renders the record as "<name>: <old-or-'none'> -> <new>".
func (r UpdateRecord) String() string {
	old := r.OldVersion
	if old == "" {
		old = "none"
	}
	return fmt.Sprintf("%s: %s -> %s", r.Name, old, r.NewVersion)
}

// Planner rewrites dependency groups to floor constraints on the latest
// registry versions.
type Planner struct {
	registry    *registry.Client
	logger      observability.Logger
	concurrency int

	// Transitive enables the walker enrichment pass: the resolved set is
	// seeded from a bounded recursive walk of declared transitive
	// requirements instead of per-declaration lookups.
	Transitive bool
}

// New creates a planner backed by the given registry client.
func New(reg *registry.Client, logger observability.Logger) *Planner {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Planner{
		registry:    reg,
		logger:      logger,
		concurrency: defaultConcurrency,
	}
}

// Plan computes the rewritten entries for one group along with the records
// of entries that actually changed version.
//
// Literal declarations resolve to "name[extras]>=latest"; declarations whose
// latest version cannot be determined are preserved byte-for-byte.
// Include-markers pass through untouched and are appended after all resolved
// entries.
func (p *Planner) Plan(ctx context.Context, entries []manifest.Entry) ([]manifest.Entry, []UpdateRecord) {
	literals, includes := splitEntries(entries)

	resolved := p.resolveGroup(ctx, literals)

	newEntries := make([]manifest.Entry, 0, len(entries))
	var records []UpdateRecord

	for _, entry := range literals {
		req, perr := requirement.Parse(entry.Raw)
		if perr != nil {
			p.logger.WarnContext(ctx, "Could not parse declaration {Declaration}: {Error}", entry.Raw, perr)
		}

		latest, ok := resolved[req.NormalizedName]
		if !ok {
			// Could not determine a version: leave the declaration unchanged.
			newEntries = append(newEntries, entry)
			observability.UpdatesPlannedTotal.WithLabelValues("unresolved").Inc()
			p.logger.DebugContext(ctx, "No version information for {Package}, keeping original", req.NormalizedName)
			continue
		}

		newEntries = append(newEntries, manifest.Literal(req.RenderFloor(latest)))

		if v, verr := version.Parse(latest); verr == nil && v.IsPrerelease() {
			p.logger.WarnContext(ctx, "Latest version {Version} of {Package} is a prerelease", latest, req.NormalizedName)
		}

		oldVersion := version.ExtractFromConstraint(req.Constraint)
		if version.IsNewer(latest, oldVersion) {
			records = append(records, UpdateRecord{
				Name:       req.OriginalName,
				OldVersion: oldVersion,
				NewVersion: latest,
			})
			observability.UpdatesPlannedTotal.WithLabelValues("updated").Inc()
		} else {
			observability.UpdatesPlannedTotal.WithLabelValues("current").Inc()
		}
	}

	// Resolved entries first, then includes, regardless of input position.
	newEntries = append(newEntries, includes...)

	return newEntries, records
}

// resolveGroup builds the name -> latest version map for a group's literal
// declarations, either per declaration or via the transitive walker.
func (p *Planner) resolveGroup(ctx context.Context, literals []manifest.Entry) map[string]string {
	if p.Transitive {
		seeds := make([]string, len(literals))
		for i, e := range literals {
			seeds[i] = e.Raw
		}
		walker := NewWalker(p.registry, p.logger)
		return walker.ResolveClosure(ctx, seeds)
	}

	// Bounded-parallel prefetch. Ordering across packages does not matter;
	// the sequential rewrite pass above preserves entry order.
	resolved := make(map[string]string)
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	seen := make(map[string]bool)
	for _, entry := range literals {
		req, _ := requirement.Parse(entry.Raw)
		name := req.NormalizedName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		g.Go(func() error {
			if latest, ok := p.registry.GetLatestVersion(gctx, name); ok {
				mu.Lock()
				resolved[name] = latest
				mu.Unlock()
			}
			return nil
		})
	}

	// Lookups never return errors; absence is recorded by omission.
	_ = g.Wait()

	return resolved
}

func splitEntries(entries []manifest.Entry) (literals, includes []manifest.Entry) {
	for _, e := range entries {
		if e.IsInclude() {
			includes = append(includes, e)
		} else {
			literals = append(literals, e)
		}
	}
	return literals, includes
}
