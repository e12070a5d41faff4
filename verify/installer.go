// Package verify checks rewritten manifests for installability.
//
// The engine never inspects the real environment: the candidate manifest is
// materialized into a scratch directory and an external package manager is
// asked for its verdict there. The external tool is modeled as a capability
// interface so the engine depends only on dry-run and upgrade-lock semantics,
// not on a specific CLI surface.
package verify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Installer is the external package manager the verifier delegates to.
type Installer interface {
	// Name identifies the tool for log and error messages.
	Name() string

	// Available reports whether the tool can be invoked at all.
	Available() bool

	// DryRun checks whether the manifest in dir is installable without
	// touching any real environment. A non-installable manifest returns a
	// *CommandError carrying the tool's output.
	DryRun(ctx context.Context, dir string) error

	// UpgradeLock resolves the manifest in dir into the tool's lock
	// artifact, written into dir. A *CommandError reports resolution failure.
	UpgradeLock(ctx context.Context, dir string) error

	// LockFileName is the name of the lock artifact UpgradeLock produces.
	LockFileName() string
}

// CommandError reports a non-zero exit from the external tool, preserving
// its output verbatim for conflict signature matching.
type CommandError struct {
	Tool     string
	ExitCode int
	Stdout   string
	Stderr   string
}

// Error implements the error interface.
func (e *CommandError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// Output returns the combined stderr and stdout text.
func (e *CommandError) Output() string {
	if e.Stderr != "" && e.Stdout != "" {
		return e.Stderr + "\n" + e.Stdout
	}
	return e.Stderr + e.Stdout
}

// UvInstaller invokes the uv package manager.
type UvInstaller struct {
	// Binary overrides the executable name, defaulting to "uv".
	Binary string
}

// NewUvInstaller creates an installer backed by the uv executable.
func NewUvInstaller() *UvInstaller {
	return &UvInstaller{Binary: "uv"}
}

// Name implements Installer.
func (u *UvInstaller) Name() string {
	return u.binary()
}

func (u *UvInstaller) binary() string {
	if u.Binary != "" {
		return u.Binary
	}
	return "uv"
}

// Available implements Installer.
func (u *UvInstaller) Available() bool {
	_, err := exec.LookPath(u.binary())
	return err == nil
}

// DryRun implements Installer using "uv lock --dry-run".
func (u *UvInstaller) DryRun(ctx context.Context, dir string) error {
	return u.run(ctx, dir, "lock", "--dry-run")
}

// UpgradeLock implements Installer using "uv lock".
func (u *UvInstaller) UpgradeLock(ctx context.Context, dir string) error {
	return u.run(ctx, dir, "lock")
}

// LockFileName implements Installer.
func (u *UvInstaller) LockFileName() string {
	return "uv.lock"
}

func (u *UvInstaller) run(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, u.binary(), args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &CommandError{
			Tool:     u.binary(),
			ExitCode: exitErr.ExitCode(),
			Stdout:   stdout.String(),
			Stderr:   stderr.String(),
		}
	}

	// Launch failures (missing binary, killed by context) pass through for
	// the verifier's fail-open handling.
	return err
}
