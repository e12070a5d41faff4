package verify

import (
	"context"
	"strings"

	"github.com/keikotool/keiko/manifest"
	"github.com/keikotool/keiko/observability"
	"github.com/keikotool/keiko/registry"
	"github.com/keikotool/keiko/requirement"
)

// Rule is one recognizable conflict signature with its remediation.
//
// Signatures are substring tests over the external tool's lowercased error
// text. That is honest about what they are: heuristics for known-bad
// combinations, not a solver. The ordered table keeps them testable in
// isolation by injecting synthetic error text.
type Rule struct {
	// Name identifies the rule in records and metrics.
	Name string

	// Matches tests the lowercased error text for this rule's signature.
	Matches func(errText string) bool

	// Apply mutates the manifest to remediate the conflict, returning
	// whether anything changed and a human-readable note.
	Apply func(ctx context.Context, m *manifest.Manifest, reg *registry.Client) (changed bool, note string)

	// Suggestions are manual fix hints surfaced when the automatic fix is
	// not kept.
	Suggestions []string
}

// ConflictResolver applies heuristic fixes for recognizable dependency
// conflicts.
type ConflictResolver struct {
	rules    []Rule
	registry *registry.Client
	logger   observability.Logger
}

// NewConflictResolver creates a resolver with the default rule table.
func NewConflictResolver(reg *registry.Client, logger observability.Logger) *ConflictResolver {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &ConflictResolver{
		rules:    defaultRules(),
		registry: reg,
		logger:   logger,
	}
}

// Resolve matches the error text against the rule table and applies the
// first matching fix to a clone of the manifest.
//
// Returns the fixed manifest, the matched rule, and a note describing the
// fix. When no rule matches, or the matching fix changes nothing, the
// original manifest is returned unchanged with a nil rule: the caller then
// falls back to manual suggestions.
func (cr *ConflictResolver) Resolve(ctx context.Context, m *manifest.Manifest, errText string) (*manifest.Manifest, *Rule, string) {
	lower := strings.ToLower(errText)

	for i := range cr.rules {
		rule := &cr.rules[i]
		if !rule.Matches(lower) {
			continue
		}

		cr.logger.InfoContext(ctx, "Detected {Rule} conflict, attempting automatic fix", rule.Name)

		fixed := m.Clone()
		changed, note := rule.Apply(ctx, fixed, cr.registry)
		if !changed {
			cr.logger.DebugContext(ctx, "{Rule} fix changed nothing", rule.Name)
			return m, nil, ""
		}
		return fixed, rule, note
	}

	return m, nil, ""
}

// Suggestions returns manual fix hints for the error text, keyed by the
// same signatures as the fix table, with a generic fallback.
func (cr *ConflictResolver) Suggestions(errText string) []string {
	lower := strings.ToLower(errText)

	for i := range cr.rules {
		if cr.rules[i].Matches(lower) {
			return cr.rules[i].Suggestions
		}
	}

	return []string{
		"Check the package manager error output above for the specific conflicting requirements",
		"Consider adding explicit version pins for the packages named in the error",
		"Use 'uv lock' locally to inspect the full resolution failure",
	}
}

// defaultRules is the fixed, ordered conflict table.
func defaultRules() []Rule {
	return []Rule{
		{
			// opencv-python and opencv-python-headless ship the same modules
			// and cannot coexist; the headless build is the lower-priority one.
			Name: "opencv-duplicate",
			Matches: func(s string) bool {
				return strings.Contains(s, "opencv-python") && strings.Contains(s, "opencv-python-headless")
			},
			Apply: func(ctx context.Context, m *manifest.Manifest, reg *registry.Client) (bool, string) {
				removed := removePackage(m, "opencv-python-headless")
				return removed > 0, "removed opencv-python-headless (ships the same modules as opencv-python)"
			},
			Suggestions: []string{
				"Keep either opencv-python or opencv-python-headless, not both",
				"If a transitive dependency pulls in the other variant, exclude it there",
			},
		},
		{
			// boto3 requires a narrow botocore window; re-pinning both to
			// their registry latest realigns the family.
			Name: "boto-family",
			Matches: func(s string) bool {
				return strings.Contains(s, "boto3") && strings.Contains(s, "botocore")
			},
			Apply: func(ctx context.Context, m *manifest.Manifest, reg *registry.Client) (bool, string) {
				changed := repinLatest(ctx, m, reg, "boto3")
				changed = repinLatest(ctx, m, reg, "botocore") || changed
				return changed, "aligned boto3 and botocore to their latest versions"
			},
			Suggestions: []string{
				"Align boto3 and botocore: each boto3 release requires a narrow botocore range",
				"Pin only boto3 and let the resolver choose the matching botocore",
			},
		},
		{
			// A numpy ABI window conflict from a compiled consumer; realign
			// numpy to latest and drop any stale upper bound.
			Name: "numpy-abi",
			Matches: func(s string) bool {
				return strings.Contains(s, "numpy") &&
					(strings.Contains(s, "pandas") || strings.Contains(s, "scipy") || strings.Contains(s, "incompatible"))
			},
			Apply: func(ctx context.Context, m *manifest.Manifest, reg *registry.Client) (bool, string) {
				return repinLatest(ctx, m, reg, "numpy"), "re-pinned numpy to its latest version"
			},
			Suggestions: []string{
				"Compiled packages (pandas, scipy) each support a window of numpy versions",
				"Update the compiled consumers together with numpy, or pin numpy below the breaking release",
			},
		},
	}
}

// removePackage removes every literal declaration of the package from every
// group. Returns the number of removed declarations.
func removePackage(m *manifest.Manifest, normalized string) int {
	removed := 0
	m.MapGroups(func(name string, entries []manifest.Entry) []manifest.Entry {
		kept := entries[:0]
		for _, e := range entries {
			if !e.IsInclude() {
				req, _ := requirement.Parse(e.Raw)
				if req.NormalizedName == normalized {
					removed++
					continue
				}
			}
			kept = append(kept, e)
		}
		return kept
	})
	return removed
}

// repinLatest rewrites every declaration of the package, across all groups,
// to a floor constraint on the registry's latest version.
func repinLatest(ctx context.Context, m *manifest.Manifest, reg *registry.Client, normalized string) bool {
	latest, ok := reg.GetLatestVersion(ctx, normalized)
	if !ok {
		return false
	}

	changed := false
	m.MapGroups(func(name string, entries []manifest.Entry) []manifest.Entry {
		for i, e := range entries {
			if e.IsInclude() {
				continue
			}
			req, _ := requirement.Parse(e.Raw)
			if req.NormalizedName != normalized {
				continue
			}
			rendered := req.RenderFloor(latest)
			if rendered != e.Raw {
				entries[i] = manifest.Literal(rendered)
				changed = true
			}
		}
		return entries
	})
	return changed
}
