package version

import "strings"

// ExtractFromConstraint pulls a bare version out of a constraint string such
// as ">=1.2.0" or "^1.2.3". Multi-clause constraints like ">=1.2,<2.0" are
// anchored by their first clause: only that clause is considered.
//
// Returns "" when the constraint is empty or carries no version text.
func ExtractFromConstraint(constraint string) string {
	constraint = strings.TrimSpace(constraint)
	if constraint == "" {
		return ""
	}

	// Only the first comma-separated clause anchors the current version.
	if idx := strings.IndexByte(constraint, ','); idx >= 0 {
		constraint = constraint[:idx]
	}

	// Strip comparison operators and whitespace.
	constraint = strings.TrimLeft(constraint, "=<>!~^ \t")
	constraint = strings.TrimSpace(constraint)

	// "==1.2.*" anchors at "1.2".
	constraint = strings.TrimSuffix(constraint, ".*")

	return constraint
}
