// Package requirement parses Python dependency declarations.
//
// A declaration is a PEP 508-style requirement string such as
// "requests[socks]>=2.31,<3" or "uvicorn[standard]==0.30.1; sys_platform != 'win32'".
// Parsing is deliberately forgiving: a malformed declaration degrades to a
// best-effort name match instead of failing, so a broken entry in a manifest
// never aborts an update run.
package requirement

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Requirement is one parsed dependency declaration.
type Requirement struct {
	// OriginalName is the package name exactly as written in the manifest.
	OriginalName string

	// NormalizedName is the PEP 503 canonical form used for registry
	// lookups and cache keys: lowercased, runs of ".", "_", "-" collapsed
	// to a single "-".
	NormalizedName string

	// Extras holds the bracketed qualifiers, unique and sorted.
	Extras []string

	// Constraint is the raw version constraint text, possibly empty and
	// possibly multi-clause (">=1.2,<2.0").
	Constraint string

	// Marker is the environment marker after ";", without the delimiter.
	Marker string
}

var (
	nameRe      = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9._-]*[A-Za-z0-9])?`)
	fallbackRe  = regexp.MustCompile(`^([A-Za-z0-9_-]+)(\[[^\]]*\])?`)
	normalizeRe = regexp.MustCompile(`[-_.]+`)
)

// NormalizeName returns the PEP 503 canonical form of a package name.
// Normalization is idempotent and matches the registry's own rule.
func NormalizeName(name string) string {
	return strings.ToLower(normalizeRe.ReplaceAllString(strings.TrimSpace(name), "-"))
}

// Parse parses a raw declaration string.
//
// The returned Requirement is always non-nil and usable. A non-nil error
// means strict parsing failed and the result was recovered by a permissive
// fallback; callers should surface it as a warning, not abort.
func Parse(raw string) (*Requirement, error) {
	req, err := parseStrict(raw)
	if err == nil {
		return req, nil
	}

	return parseFallback(raw), fmt.Errorf("parse requirement %q: %w", raw, err)
}

// parseStrict implements the regular PEP 508 shape:
// name [extras] constraint [; marker].
func parseStrict(raw string) (*Requirement, error) {
	s := strings.TrimSpace(raw)

	// Split off the environment marker first.
	var marker string
	if idx := strings.IndexByte(s, ';'); idx >= 0 {
		marker = strings.TrimSpace(s[idx+1:])
		s = strings.TrimSpace(s[:idx])
	}

	name := nameRe.FindString(s)
	if name == "" {
		return nil, fmt.Errorf("no package name")
	}
	s = strings.TrimSpace(s[len(name):])

	// Optional bracketed extras.
	var extras []string
	if strings.HasPrefix(s, "[") {
		end := strings.IndexByte(s, ']')
		if end < 0 {
			return nil, fmt.Errorf("unterminated extras")
		}
		extras = splitExtras(s[1:end])
		s = strings.TrimSpace(s[end+1:])
	}

	// What remains is the constraint, optionally parenthesized.
	constraint := strings.TrimSpace(strings.Trim(s, "()"))
	if constraint != "" && !validConstraintStart(constraint) {
		return nil, fmt.Errorf("malformed constraint %q", constraint)
	}

	return &Requirement{
		OriginalName:   name,
		NormalizedName: NormalizeName(name),
		Extras:         extras,
		Constraint:     constraint,
		Marker:         marker,
	}, nil
}

// parseFallback recovers something usable from a malformed declaration:
// a leading alphanumeric/hyphen/underscore run with an optional bracketed
// extras suffix, or failing that the whole trimmed string as the name.
func parseFallback(raw string) *Requirement {
	s := strings.TrimSpace(raw)

	if m := fallbackRe.FindStringSubmatch(s); m != nil {
		var extras []string
		if m[2] != "" {
			extras = splitExtras(strings.Trim(m[2], "[]"))
		}
		return &Requirement{
			OriginalName:   m[1],
			NormalizedName: NormalizeName(m[1]),
			Extras:         extras,
		}
	}

	return &Requirement{
		OriginalName:   s,
		NormalizedName: NormalizeName(s),
	}
}

func splitExtras(s string) []string {
	seen := make(map[string]bool)
	var extras []string
	for _, e := range strings.Split(s, ",") {
		e = strings.TrimSpace(e)
		if e == "" || seen[e] {
			continue
		}
		seen[e] = true
		extras = append(extras, e)
	}
	sort.Strings(extras)
	return extras
}

func validConstraintStart(s string) bool {
	switch s[0] {
	case '=', '<', '>', '!', '~', '^':
		return true
	default:
		return false
	}
}

// ExtrasSuffix renders the extras as "[a,b]", or "" when there are none.
// Extras are already sorted, so the rendering is deterministic.
func (r *Requirement) ExtrasSuffix() string {
	if len(r.Extras) == 0 {
		return ""
	}
	return "[" + strings.Join(r.Extras, ",") + "]"
}

// RenderFloor renders the declaration as a floor constraint on ver:
// "name[extras]>=ver". The original name casing is preserved.
func (r *Requirement) RenderFloor(ver string) string {
	return r.OriginalName + r.ExtrasSuffix() + ">=" + ver
}

// String renders the requirement back to declaration form.
func (r *Requirement) String() string {
	s := r.OriginalName + r.ExtrasSuffix() + r.Constraint
	if r.Marker != "" {
		s += "; " + r.Marker
	}
	return s
}

// IsExtraConditional reports whether the requirement only applies when an
// extra of its parent package is selected. Such requirements are optional
// install-time deps of the dependency, not unconditional transitive needs.
func (r *Requirement) IsExtraConditional() bool {
	m := strings.ToLower(r.Marker)
	return strings.Contains(m, "extra ==") || strings.Contains(m, "extra==")
}
