package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/keikotool/keiko/manifest"
	"github.com/keikotool/keiko/observability"
)

// DefaultTimeout bounds one external tool invocation.
const DefaultTimeout = 2 * time.Minute

// Result is the verifier's verdict on a candidate manifest.
type Result struct {
	// OK is true when the manifest is installable, or when the check could
	// not run at all (missing tool, timeout): the engine's job is to improve
	// versions, not to block on absent tooling, so those fail open.
	OK bool

	// Skipped is true when OK was assumed rather than established.
	Skipped bool

	// Stderr and Stdout carry the tool's output verbatim on failure, for
	// conflict signature matching.
	Stderr string
	Stdout string
}

// Output returns the combined stderr and stdout text.
func (r *Result) Output() string {
	if r.Stderr != "" && r.Stdout != "" {
		return r.Stderr + "\n" + r.Stdout
	}
	return r.Stderr + r.Stdout
}

// Verifier materializes candidate manifests into scratch directories and
// asks the external package manager whether they are installable.
type Verifier struct {
	installer Installer
	logger    observability.Logger
	timeout   time.Duration
}

// NewVerifier creates a verifier around the given installer.
func NewVerifier(installer Installer, logger observability.Logger) *Verifier {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	return &Verifier{
		installer: installer,
		logger:    logger,
		timeout:   DefaultTimeout,
	}
}

// SetTimeout overrides the per-invocation timeout.
func (v *Verifier) SetTimeout(d time.Duration) {
	v.timeout = d
}

// Verify checks whether the manifest is installable.
func (v *Verifier) Verify(ctx context.Context, m *manifest.Manifest) *Result {
	if !v.installer.Available() {
		v.logger.WarnContext(ctx, "{Tool} is not installed, skipping compatibility check", v.installer.Name())
		observability.VerifierRunsTotal.WithLabelValues("skipped").Inc()
		return &Result{OK: true, Skipped: true}
	}

	res := v.inScratchDir(ctx, m, func(ctx context.Context, dir string) error {
		return v.installer.DryRun(ctx, dir)
	})

	switch {
	case res.OK && !res.Skipped:
		observability.VerifierRunsTotal.WithLabelValues("ok").Inc()
	case res.Skipped:
		observability.VerifierRunsTotal.WithLabelValues("skipped").Inc()
	default:
		observability.VerifierRunsTotal.WithLabelValues("failed").Inc()
	}

	return res
}

// FindCompatible asks the external tool to resolve the manifest into its
// lock artifact and extracts the resulting version set.
//
// On success the returned map holds the tool's mutually consistent versions;
// an empty map means "no new information". When resolution itself fails, the
// tool's error text is returned for conflict signature matching.
func (v *Verifier) FindCompatible(ctx context.Context, m *manifest.Manifest) (versions map[string]string, errText string, ok bool) {
	if !v.installer.Available() {
		return nil, "", false
	}

	var lockText string
	res := v.inScratchDir(ctx, m, func(ctx context.Context, dir string) error {
		if err := v.installer.UpgradeLock(ctx, dir); err != nil {
			return err
		}
		data, err := os.ReadFile(filepath.Join(dir, v.installer.LockFileName()))
		if err != nil {
			// The tool reported success but produced no readable lock
			// artifact: treat as no new information.
			v.logger.WarnContext(ctx, "Lock artifact missing after upgrade: {Error}", err)
			return nil
		}
		lockText = string(data)
		return nil
	})

	if res.OK {
		return ExtractVersions(lockText), "", true
	}
	return nil, res.Output(), false
}

// inScratchDir writes the manifest into a fresh temp directory, runs fn
// there, and guarantees cleanup on every exit path.
func (v *Verifier) inScratchDir(ctx context.Context, m *manifest.Manifest, fn func(ctx context.Context, dir string) error) *Result {
	dir, err := os.MkdirTemp("", "keiko-verify-")
	if err != nil {
		v.logger.WarnContext(ctx, "Could not create scratch directory: {Error}", err)
		return &Result{OK: true, Skipped: true}
	}
	defer func() { _ = os.RemoveAll(dir) }()

	data, err := m.Bytes()
	if err != nil {
		v.logger.WarnContext(ctx, "Could not serialize manifest: {Error}", err)
		return &Result{OK: true, Skipped: true}
	}
	if err := os.WriteFile(filepath.Join(dir, "pyproject.toml"), data, 0644); err != nil {
		v.logger.WarnContext(ctx, "Could not write scratch manifest: {Error}", err)
		return &Result{OK: true, Skipped: true}
	}

	runCtx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	err = fn(runCtx, dir)
	if err == nil {
		return &Result{OK: true}
	}

	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		v.logger.DebugContext(ctx, "{Tool} check failed with exit code {ExitCode}",
			v.installer.Name(), cmdErr.ExitCode)
		return &Result{Stderr: cmdErr.Stderr, Stdout: cmdErr.Stdout}
	}

	// Launch error or timeout: assume compatible rather than block the run.
	v.logger.WarnContext(ctx, "Could not run {Tool} ({Error}), assuming compatible",
		v.installer.Name(), err)
	return &Result{OK: true, Skipped: true}
}
