package verify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keikotool/keiko/manifest"
)

const sampleManifest = `[project]
name = "demo"
requires-python = ">=3.9"
dependencies = ["requests>=2.31.0"]
`

// fakeInstaller scripts the external tool's behavior for verifier tests.
type fakeInstaller struct {
	available  bool
	dryRunErr  error
	upgradeErr error
	lockText   string
	calls      []string
}

func (f *fakeInstaller) Name() string    { return "faketool" }
func (f *fakeInstaller) Available() bool { return f.available }

func (f *fakeInstaller) DryRun(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "dry-run")
	return f.dryRunErr
}

func (f *fakeInstaller) UpgradeLock(ctx context.Context, dir string) error {
	f.calls = append(f.calls, "upgrade-lock")
	if f.upgradeErr != nil {
		return f.upgradeErr
	}
	if f.lockText != "" {
		return os.WriteFile(filepath.Join(dir, f.LockFileName()), []byte(f.lockText), 0644)
	}
	return nil
}

func (f *fakeInstaller) LockFileName() string { return "fake.lock" }

func parseSample(t *testing.T) *manifest.Manifest {
	t.Helper()
	m, err := manifest.ParseBytes([]byte(sampleManifest))
	require.NoError(t, err)
	return m
}

func TestVerifyPasses(t *testing.T) {
	inst := &fakeInstaller{available: true}
	v := NewVerifier(inst, nil)

	res := v.Verify(context.Background(), parseSample(t))

	assert.True(t, res.OK)
	assert.False(t, res.Skipped)
	assert.Equal(t, []string{"dry-run"}, inst.calls)
}

func TestVerifyReportsToolFailure(t *testing.T) {
	inst := &fakeInstaller{
		available: true,
		dryRunErr: &CommandError{
			Tool:     "faketool",
			ExitCode: 1,
			Stderr:   "No solution found when resolving dependencies",
		},
	}
	v := NewVerifier(inst, nil)

	res := v.Verify(context.Background(), parseSample(t))

	assert.False(t, res.OK)
	assert.False(t, res.Skipped)
	assert.Contains(t, res.Output(), "No solution found")
}

func TestVerifySkipsWhenToolMissing(t *testing.T) {
	inst := &fakeInstaller{available: false}
	v := NewVerifier(inst, nil)

	res := v.Verify(context.Background(), parseSample(t))

	assert.True(t, res.OK)
	assert.True(t, res.Skipped)
	assert.Empty(t, inst.calls)
}

func TestVerifySkipsOnLaunchError(t *testing.T) {
	// A non-CommandError failure means the tool never ran its check; the
	// verifier assumes compatible instead of blocking the run.
	inst := &fakeInstaller{available: true, dryRunErr: errors.New("fork failed")}
	v := NewVerifier(inst, nil)

	res := v.Verify(context.Background(), parseSample(t))

	assert.True(t, res.OK)
	assert.True(t, res.Skipped)
}

func TestFindCompatibleExtractsLockVersions(t *testing.T) {
	inst := &fakeInstaller{
		available: true,
		lockText: `[[package]]
name = "requests"
version = "2.31.0"

[[package]]
name = "urllib3"
version = "2.2.1"
`,
	}
	v := NewVerifier(inst, nil)

	versions, errText, ok := v.FindCompatible(context.Background(), parseSample(t))

	require.True(t, ok)
	assert.Empty(t, errText)
	assert.Equal(t, map[string]string{
		"requests": "2.31.0",
		"urllib3":  "2.2.1",
	}, versions)
}

func TestFindCompatibleMissingLockMeansNoInformation(t *testing.T) {
	inst := &fakeInstaller{available: true}
	v := NewVerifier(inst, nil)

	versions, errText, ok := v.FindCompatible(context.Background(), parseSample(t))

	require.True(t, ok)
	assert.Empty(t, errText)
	assert.Empty(t, versions)
}

func TestFindCompatibleSurfacesResolutionError(t *testing.T) {
	inst := &fakeInstaller{
		available: true,
		upgradeErr: &CommandError{
			Tool:     "faketool",
			ExitCode: 2,
			Stderr:   "because opencv-python and opencv-python-headless conflict",
		},
	}
	v := NewVerifier(inst, nil)

	versions, errText, ok := v.FindCompatible(context.Background(), parseSample(t))

	assert.False(t, ok)
	assert.Nil(t, versions)
	assert.Contains(t, errText, "opencv-python-headless")
}

func TestFindCompatibleUnavailableTool(t *testing.T) {
	inst := &fakeInstaller{available: false}
	v := NewVerifier(inst, nil)

	_, _, ok := v.FindCompatible(context.Background(), parseSample(t))

	assert.False(t, ok)
	assert.Empty(t, inst.calls)
}

func TestCommandErrorOutput(t *testing.T) {
	err := &CommandError{Tool: "uv", ExitCode: 1, Stderr: "err line", Stdout: "out line"}
	assert.Equal(t, "uv exited with code 1", err.Error())
	assert.Equal(t, "err line\nout line", err.Output())

	only := &CommandError{Tool: "uv", ExitCode: 1, Stdout: "out only"}
	assert.Equal(t, "out only", only.Output())
}
