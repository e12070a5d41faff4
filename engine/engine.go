// Package engine orchestrates one manifest update run: plan every dependency
// group against the registry, verify the rewritten manifest with the external
// package manager, and apply at most one corrective pass when verification
// fails.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/keikotool/keiko/manifest"
	"github.com/keikotool/keiko/observability"
	"github.com/keikotool/keiko/planner"
	"github.com/keikotool/keiko/registry"
	"github.com/keikotool/keiko/requirement"
	"github.com/keikotool/keiko/verify"
)

// DefaultManifestPath is the manifest the engine updates when none is given.
const DefaultManifestPath = "pyproject.toml"

// lockRecordLimit bounds how many lock-derived records are rendered
// individually before collapsing into a count.
const lockRecordLimit = 10

// Options configures one update run.
type Options struct {
	// ManifestPath is the manifest to update, defaulting to pyproject.toml
	// in the working directory.
	ManifestPath string

	// DryRun plans and verifies but never writes the manifest.
	DryRun bool

	// NoBackup skips writing the .backup copy before a destructive write.
	NoBackup bool

	// Transitive enables the walker enrichment pass when planning.
	Transitive bool

	// VerifyTimeout bounds each external tool invocation. Zero means the
	// verifier default.
	VerifyTimeout time.Duration
}

// Result reports the outcome of one update run.
type Result struct {
	// RunID uniquely identifies the run in logs.
	RunID string

	// Records lists the human-readable update records, in the order the
	// reporting layer should render them.
	Records []string

	// UpToDate is true when nothing changed and nothing was written.
	UpToDate bool

	// Written is true when the manifest file was rewritten.
	Written bool

	// BackupPath is the path of the pre-change backup, when one was made.
	BackupPath string

	// VerifySkipped is true when installability was assumed rather than
	// checked (external tool missing or not runnable).
	VerifySkipped bool

	// ConflictRule and ConflictNote describe a kept conflict fix.
	ConflictRule string
	ConflictNote string

	// Suggestions holds manual fix hints when verification failed and no
	// automatic fix could be kept.
	Suggestions []string
}

// Config wires the engine's collaborators. Nil fields get defaults.
type Config struct {
	Registry  *registry.Client
	Installer verify.Installer
	Logger    observability.Logger
}

// Engine runs the plan/verify/correct pipeline.
type Engine struct {
	registry *registry.Client
	verifier *verify.Verifier
	resolver *verify.ConflictResolver
	logger   observability.Logger
	opts     Options
}

// New creates an engine for one run.
func New(opts Options, cfg *Config) *Engine {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = registry.NewClient(&registry.Config{Logger: logger})
	}
	installer := cfg.Installer
	if installer == nil {
		installer = verify.NewUvInstaller()
	}
	if opts.ManifestPath == "" {
		opts.ManifestPath = DefaultManifestPath
	}

	verifier := verify.NewVerifier(installer, logger)
	if opts.VerifyTimeout > 0 {
		verifier.SetTimeout(opts.VerifyTimeout)
	}

	return &Engine{
		registry: reg,
		verifier: verifier,
		resolver: verify.NewConflictResolver(reg, logger),
		logger:   logger,
		opts:     opts,
	}
}

// Run executes one update run. It returns an error only for unrecoverable
// failures (unreadable manifest, write failure, cancellation); registry and
// verification trouble degrade per policy instead.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	e.logger.InfoContext(ctx, "Starting update run {RunID} for {Manifest}",
		result.RunID, e.opts.ManifestPath)

	original, err := manifest.Load(e.opts.ManifestPath)
	if err != nil {
		return nil, fmt.Errorf("loading manifest: %w", err)
	}
	originalBytes, err := original.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing manifest: %w", err)
	}

	updated, records := e.planAll(ctx, original)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	final, recordLines := e.verifyAndCorrect(ctx, updated, records, result)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	result.Records = recordLines

	finalBytes, err := final.Bytes()
	if err != nil {
		return nil, fmt.Errorf("serializing updated manifest: %w", err)
	}

	if len(result.Records) == 0 && bytes.Equal(finalBytes, originalBytes) {
		e.logger.InfoContext(ctx, "All dependencies are already up to date")
		result.UpToDate = true
		return result, nil
	}

	if e.opts.DryRun {
		e.logger.InfoContext(ctx, "Dry run, leaving {Manifest} untouched", e.opts.ManifestPath)
		return result, nil
	}

	if !e.opts.NoBackup {
		backupPath := e.opts.ManifestPath + ".backup"
		if err := os.WriteFile(backupPath, originalBytes, 0644); err != nil {
			return nil, fmt.Errorf("writing backup: %w", err)
		}
		result.BackupPath = backupPath
	}

	if err := final.Save(e.opts.ManifestPath); err != nil {
		return nil, fmt.Errorf("writing manifest: %w", err)
	}
	result.Written = true
	e.logger.InfoContext(ctx, "Updated {Manifest} with {Count} change(s)",
		e.opts.ManifestPath, len(result.Records))

	return result, nil
}

// planAll resolves every group in isolation on a clone of the manifest.
func (e *Engine) planAll(ctx context.Context, m *manifest.Manifest) (*manifest.Manifest, []planner.UpdateRecord) {
	p := planner.New(e.registry, e.logger)
	p.Transitive = e.opts.Transitive

	updated := m.Clone()
	var records []planner.UpdateRecord
	updated.MapGroups(func(name string, entries []manifest.Entry) []manifest.Entry {
		e.logger.DebugContext(ctx, "Planning group {Group} ({Count} entries)", name, len(entries))
		newEntries, groupRecords := p.Plan(ctx, entries)
		records = append(records, groupRecords...)
		return newEntries
	})
	return updated, records
}

// verifyAndCorrect runs the compatibility check and the single corrective
// pass, returning the manifest to write and the rendered record lines.
func (e *Engine) verifyAndCorrect(ctx context.Context, updated *manifest.Manifest, records []planner.UpdateRecord, result *Result) (*manifest.Manifest, []string) {
	lines := renderRecords(records)

	res := e.verifier.Verify(ctx, updated)
	if res.Skipped {
		result.VerifySkipped = true
	}
	if res.OK {
		return updated, lines
	}

	e.logger.WarnContext(ctx, "Updated manifest failed the compatibility check, attempting resolution")

	// First recovery: ask the tool itself for a mutually compatible set.
	versions, errText, ok := e.verifier.FindCompatible(ctx, updated)
	if ok {
		if len(versions) == 0 {
			e.logger.WarnContext(ctx, "Lock resolution produced no version information, keeping planned constraints")
			return updated, lines
		}
		e.logger.InfoContext(ctx, "Recovered a compatible set of {Count} packages from the lock file", len(versions))
		return applyVersions(updated, versions), renderLockRecords(versions)
	}
	if errText == "" {
		errText = res.Output()
	}

	// Second recovery: heuristic conflict fix, re-verified exactly once.
	fixed, rule, note := e.resolver.Resolve(ctx, updated, errText)
	if rule == nil {
		result.Suggestions = e.resolver.Suggestions(errText)
		return updated, lines
	}

	recheck := e.verifier.Verify(ctx, fixed)
	if !recheck.OK || recheck.Skipped {
		e.logger.WarnContext(ctx, "{Rule} fix did not pass re-verification, reverting", rule.Name)
		observability.ConflictFixesTotal.WithLabelValues(rule.Name, "reverted").Inc()
		result.Suggestions = e.resolver.Suggestions(errText)
		return updated, lines
	}

	e.logger.InfoContext(ctx, "{Rule} fix verified, keeping it", rule.Name)
	observability.ConflictFixesTotal.WithLabelValues(rule.Name, "kept").Inc()
	result.ConflictRule = rule.Name
	result.ConflictNote = note
	lines = append(lines, fmt.Sprintf("resolved conflict (%s): %s", rule.Name, note))
	return fixed, lines
}

// applyVersions rewrites every literal declaration present in the version
// map to a floor on the lock-derived version. The map supersedes the
// planner's per-declaration resolution for the entries it covers.
func applyVersions(m *manifest.Manifest, versions map[string]string) *manifest.Manifest {
	out := m.Clone()
	out.MapGroups(func(name string, entries []manifest.Entry) []manifest.Entry {
		for i, entry := range entries {
			if entry.IsInclude() {
				continue
			}
			req, _ := requirement.Parse(entry.Raw)
			ver, ok := versions[req.NormalizedName]
			if !ok {
				continue
			}
			entries[i] = manifest.Literal(req.RenderFloor(ver))
		}
		return entries
	})
	return out
}

func renderRecords(records []planner.UpdateRecord) []string {
	lines := make([]string, 0, len(records))
	for _, r := range records {
		lines = append(lines, r.String())
	}
	return lines
}

// renderLockRecords renders the lock-derived set: the first few packages
// individually, then a count of the rest.
func renderLockRecords(versions map[string]string) []string {
	names := make([]string, 0, len(versions))
	for name := range versions {
		names = append(names, name)
	}
	sort.Strings(names)

	lines := make([]string, 0, lockRecordLimit+1)
	for i, name := range names {
		if i == lockRecordLimit {
			lines = append(lines, fmt.Sprintf("... and %d more packages", len(names)-lockRecordLimit))
			break
		}
		lines = append(lines, fmt.Sprintf("%s: -> %s (resolved)", name, versions[name]))
	}
	return lines
}
