// Package manifest models a pyproject.toml dependency manifest.
//
// The model covers the three places dependencies are declared: the direct
// [project] dependencies list, [project.optional-dependencies] groups, and
// PEP 735 [dependency-groups], whose entries may be include-markers that
// splice in another named group. Everything else in the file is carried
// through untouched on save.
package manifest

import (
	"fmt"
	"os"
	"sort"

	"github.com/pelletier/go-toml/v2"
)

// Entry is one declaration in a dependency group: either a literal
// requirement string or an include-marker referencing another group.
type Entry struct {
	// Raw is the literal declaration text. Empty for include-markers.
	Raw string

	// IncludeGroup names the spliced group for include-markers.
	IncludeGroup string
}

// IsInclude reports whether the entry is an include-marker.
// Include-markers are never version-resolved.
func (e Entry) IsInclude() bool {
	return e.IncludeGroup != ""
}

// Literal creates a literal declaration entry.
func Literal(raw string) Entry {
	return Entry{Raw: raw}
}

// Include creates an include-marker entry.
func Include(group string) Entry {
	return Entry{IncludeGroup: group}
}

// Group is a named, ordered collection of declarations.
type Group struct {
	Name    string
	Entries []Entry
}

// Manifest is a parsed pyproject.toml.
type Manifest struct {
	// ProjectName is the [project] name, empty when absent.
	ProjectName string

	// RequiresPython is the [project] requires-python constraint.
	RequiresPython string

	// Dependencies is the direct [project] dependencies group.
	Dependencies []Entry

	// OptionalDependencies are the [project.optional-dependencies] groups,
	// ordered by name.
	OptionalDependencies []*Group

	// DependencyGroups are the PEP 735 [dependency-groups], ordered by name.
	// Only these may contain include-markers.
	DependencyGroups []*Group

	// tree holds the full decoded document so unrelated tables survive a
	// load/save round trip.
	tree map[string]any
}

// Load reads and parses a pyproject.toml file.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	m, err := ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}

// ParseBytes parses pyproject.toml content.
func ParseBytes(data []byte) (*Manifest, error) {
	var tree map[string]any
	if err := toml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode toml: %w", err)
	}

	m := &Manifest{tree: tree}

	if project, ok := tree["project"].(map[string]any); ok {
		if name, ok := project["name"].(string); ok {
			m.ProjectName = name
		}
		if rp, ok := project["requires-python"].(string); ok {
			m.RequiresPython = rp
		}
		if deps, ok := project["dependencies"].([]any); ok {
			m.Dependencies = decodeEntries(deps)
		}
		if optional, ok := project["optional-dependencies"].(map[string]any); ok {
			m.OptionalDependencies = decodeGroups(optional)
		}
	}

	if groups, ok := tree["dependency-groups"].(map[string]any); ok {
		m.DependencyGroups = decodeGroups(groups)
	}

	return m, nil
}

func decodeGroups(raw map[string]any) []*Group {
	names := make([]string, 0, len(raw))
	for name := range raw {
		names = append(names, name)
	}
	sort.Strings(names)

	groups := make([]*Group, 0, len(names))
	for _, name := range names {
		entries, ok := raw[name].([]any)
		if !ok {
			continue
		}
		groups = append(groups, &Group{Name: name, Entries: decodeEntries(entries)})
	}
	return groups
}

func decodeEntries(raw []any) []Entry {
	entries := make([]Entry, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case string:
			entries = append(entries, Literal(v))
		case map[string]any:
			if include, ok := v["include-group"].(string); ok {
				entries = append(entries, Include(include))
			}
		}
	}
	return entries
}

func encodeEntries(entries []Entry) []any {
	out := make([]any, 0, len(entries))
	for _, e := range entries {
		if e.IsInclude() {
			out = append(out, map[string]any{"include-group": e.IncludeGroup})
		} else {
			out = append(out, e.Raw)
		}
	}
	return out
}

// Bytes serializes the manifest back to TOML, folding the structured groups
// into the preserved document tree.
func (m *Manifest) Bytes() ([]byte, error) {
	tree := m.tree
	if tree == nil {
		tree = make(map[string]any)
	}

	project, _ := tree["project"].(map[string]any)
	if project == nil && (m.ProjectName != "" || len(m.Dependencies) > 0) {
		project = make(map[string]any)
		tree["project"] = project
	}
	if project != nil {
		if m.ProjectName != "" {
			project["name"] = m.ProjectName
		}
		if m.RequiresPython != "" {
			project["requires-python"] = m.RequiresPython
		}
		if m.Dependencies != nil {
			project["dependencies"] = encodeEntries(m.Dependencies)
		}
		if len(m.OptionalDependencies) > 0 {
			optional := make(map[string]any, len(m.OptionalDependencies))
			for _, g := range m.OptionalDependencies {
				optional[g.Name] = encodeEntries(g.Entries)
			}
			project["optional-dependencies"] = optional
		}
	}

	if len(m.DependencyGroups) > 0 {
		groups := make(map[string]any, len(m.DependencyGroups))
		for _, g := range m.DependencyGroups {
			groups[g.Name] = encodeEntries(g.Entries)
		}
		tree["dependency-groups"] = groups
	}

	data, err := toml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("encode toml: %w", err)
	}
	return data, nil
}

// Save writes the manifest to path. The write goes through a temp file and
// rename so an aborted run never leaves a partially written manifest behind.
func (m *Manifest) Save(path string) error {
	data, err := m.Bytes()
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}

// Clone returns a deep copy. Conflict fixes are applied to a clone so the
// pre-fix manifest can be restored when re-verification fails.
func (m *Manifest) Clone() *Manifest {
	c := &Manifest{
		ProjectName:    m.ProjectName,
		RequiresPython: m.RequiresPython,
		Dependencies:   append([]Entry(nil), m.Dependencies...),
	}
	for _, g := range m.OptionalDependencies {
		c.OptionalDependencies = append(c.OptionalDependencies, &Group{
			Name:    g.Name,
			Entries: append([]Entry(nil), g.Entries...),
		})
	}
	for _, g := range m.DependencyGroups {
		c.DependencyGroups = append(c.DependencyGroups, &Group{
			Name:    g.Name,
			Entries: append([]Entry(nil), g.Entries...),
		})
	}
	if m.tree != nil {
		c.tree = deepCopyTable(m.tree)
	}
	return c
}

func deepCopyTable(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyTable(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}

// VisitGroups calls fn for every dependency group in the manifest: the
// direct dependencies (named "dependencies"), each optional group, then each
// named dependency group.
func (m *Manifest) VisitGroups(fn func(name string, entries []Entry)) {
	fn("dependencies", m.Dependencies)
	for _, g := range m.OptionalDependencies {
		fn(g.Name, g.Entries)
	}
	for _, g := range m.DependencyGroups {
		fn(g.Name, g.Entries)
	}
}

// MapGroups rewrites every dependency group in place, replacing each group's
// entries with fn's result. Conflict fixes use this to apply a change across
// all groups consistently.
func (m *Manifest) MapGroups(fn func(name string, entries []Entry) []Entry) {
	m.Dependencies = fn("dependencies", m.Dependencies)
	for _, g := range m.OptionalDependencies {
		g.Entries = fn(g.Name, g.Entries)
	}
	for _, g := range m.DependencyGroups {
		g.Entries = fn(g.Name, g.Entries)
	}
}
