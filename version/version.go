// Package version provides Python package version parsing and comparison.
//
// It follows PEP 440 precedence for the common cases: a dotted numeric
// release segment with optional epoch, pre-release, post-release, and
// dev-release suffixes. Local version labels (after "+") are parsed but
// ignored in comparison.
//
// Example:
//
//	v, err := version.Parse("1.2.3rc1")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(v.Release) // [1 2 3]
package version

import (
	"fmt"
	"strconv"
	"strings"
)

// Version represents a Python package version.
type Version struct {
	// Epoch is the version epoch ("2!1.0" has epoch 2). Almost always 0.
	Epoch int

	// Release holds the dotted numeric release segments, e.g. [1 2 3] for "1.2.3".
	// Always at least one segment.
	Release []int

	// PreLabel is the normalized pre-release phase ("a", "b", or "rc"),
	// empty when the version is not a pre-release.
	PreLabel string

	// PreNumber is the pre-release number ("1.0rc2" has PreNumber 2).
	PreNumber int

	// Post is the post-release number, or -1 when absent.
	Post int

	// Dev is the dev-release number, or -1 when absent.
	Dev int

	// Local is the local version label after "+", ignored in comparison.
	Local string

	// originalString preserves the string the version was parsed from.
	originalString string
}

// String returns the string representation of the version.
func (v *Version) String() string {
	if v.originalString != "" {
		return v.originalString
	}
	return v.format()
}

// format creates a normalized version string.
func (v *Version) format() string {
	var b strings.Builder

	if v.Epoch > 0 {
		fmt.Fprintf(&b, "%d!", v.Epoch)
	}

	for i, n := range v.Release {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(n))
	}

	if v.PreLabel != "" {
		fmt.Fprintf(&b, "%s%d", v.PreLabel, v.PreNumber)
	}
	if v.Post >= 0 {
		fmt.Fprintf(&b, ".post%d", v.Post)
	}
	if v.Dev >= 0 {
		fmt.Fprintf(&b, ".dev%d", v.Dev)
	}
	if v.Local != "" {
		b.WriteByte('+')
		b.WriteString(v.Local)
	}

	return b.String()
}

// IsPrerelease reports whether the version is a pre-release or dev-release.
func (v *Version) IsPrerelease() bool {
	return v.PreLabel != "" || v.Dev >= 0
}

// preLabelAliases maps the PEP 440 spelling variants onto the canonical
// pre-release phases.
var preLabelAliases = map[string]string{
	"a":       "a",
	"alpha":   "a",
	"b":       "b",
	"beta":    "b",
	"c":       "rc",
	"rc":      "rc",
	"pre":     "rc",
	"preview": "rc",
}

// postLabelAliases are the recognized post-release spellings.
var postLabelAliases = map[string]bool{
	"post": true,
	"rev":  true,
	"r":    true,
}

// Parse parses a version string into a Version.
//
// Supported forms include "1.0", "2.4.1", "1!2.0", "1.0a1", "1.0.0rc2",
// "1.0.post3", "1.0.dev4", and "1.0+local". Case and common separator
// variations ("1.0-rc.2", "1.0RC2") are tolerated.
//
// Returns an error if the version string is invalid.
func Parse(s string) (*Version, error) {
	original := s

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "v")
	s = strings.TrimPrefix(s, "V")
	if s == "" {
		return nil, fmt.Errorf("version string cannot be empty")
	}

	v := &Version{
		Post:           -1,
		Dev:            -1,
		originalString: original,
	}

	s = strings.ToLower(s)

	// Split off the local version label.
	if idx := strings.IndexByte(s, '+'); idx >= 0 {
		v.Local = s[idx+1:]
		s = s[:idx]
	}

	// Split off the epoch.
	if idx := strings.IndexByte(s, '!'); idx >= 0 {
		epoch, err := strconv.Atoi(s[:idx])
		if err != nil || epoch < 0 {
			return nil, fmt.Errorf("invalid epoch in version %q", original)
		}
		v.Epoch = epoch
		s = s[idx+1:]
	}

	// Consume the numeric release segments.
	rest := s
	for {
		i := 0
		for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
			i++
		}
		if i == 0 {
			if len(v.Release) == 0 {
				return nil, fmt.Errorf("invalid version format: %q", original)
			}
			break
		}
		n, err := strconv.Atoi(rest[:i])
		if err != nil {
			return nil, fmt.Errorf("invalid release segment in version %q", original)
		}
		v.Release = append(v.Release, n)
		rest = rest[i:]
		if !strings.HasPrefix(rest, ".") {
			break
		}
		next := rest[1:]
		if len(next) == 0 || next[0] < '0' || next[0] > '9' {
			// ".dev1" style suffix, not another release segment.
			break
		}
		rest = next
	}

	// Parse the remaining pre/post/dev suffixes.
	for rest != "" {
		rest = strings.TrimLeft(rest, ".-_")
		if rest == "" {
			break
		}

		i := 0
		for i < len(rest) && rest[i] >= 'a' && rest[i] <= 'z' {
			i++
		}
		if i == 0 {
			// A bare number after a separator is an implicit post-release
			// ("1.0-1" means "1.0.post1").
			j := 0
			for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
				j++
			}
			if j == 0 {
				return nil, fmt.Errorf("invalid suffix in version %q", original)
			}
			n, _ := strconv.Atoi(rest[:j])
			v.Post = n
			rest = rest[j:]
			continue
		}

		label := rest[:i]
		rest = strings.TrimLeft(rest[i:], ".-_")

		j := 0
		for j < len(rest) && rest[j] >= '0' && rest[j] <= '9' {
			j++
		}
		num := 0
		if j > 0 {
			num, _ = strconv.Atoi(rest[:j])
		}
		rest = rest[j:]

		switch {
		case preLabelAliases[label] != "":
			v.PreLabel = preLabelAliases[label]
			v.PreNumber = num
		case postLabelAliases[label]:
			v.Post = num
		case label == "dev":
			v.Dev = num
		default:
			return nil, fmt.Errorf("unknown suffix %q in version %q", label, original)
		}
	}

	return v, nil
}

// MustParse parses a version string and panics on error.
// Use this only when you know the version string is valid.
func MustParse(s string) *Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}
