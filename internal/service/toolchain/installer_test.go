package toolchain

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/domain/manifest"
	"github.com/oshokin/pyfreeze/internal/service/common"
)

var errTestStart = errors.New("executable file not found")

// fakePython emulates `python -m PyInstaller --version` and `python -m pip install`.
type fakePython struct {
	// installed is the version reported by --version; empty means not installed.
	installed string
	// installs is the version the installer puts in place.
	installs string
	// installExit is the exit code returned by pip.
	installExit int
	// startErr simulates a missing interpreter.
	startErr error
	// commands records every invocation.
	commands []*common.Command
}

// Run implements common.Runner.
func (f *fakePython) Run(_ context.Context, cmd *common.Command) (*common.Result, error) {
	f.commands = append(f.commands, cmd)

	if f.startErr != nil {
		return &common.Result{ExitCode: -1}, f.startErr
	}

	switch {
	case slices.Contains(cmd.Args, "--version"):
		if f.installed == "" {
			return &common.Result{ExitCode: 1, Output: []byte("No module named PyInstaller\n")}, nil
		}

		return &common.Result{Output: []byte("WARNING: noise\n" + f.installed + "\n")}, nil
	case slices.Contains(cmd.Args, "pip"):
		if f.installExit != 0 {
			return &common.Result{ExitCode: f.installExit, Output: []byte("ERROR: No matching distribution\n")}, nil
		}

		f.installed = f.installs

		return &common.Result{Output: []byte("Successfully installed pyinstaller\n")}, nil
	default:
		return &common.Result{ExitCode: 2}, nil
	}
}

// installCount returns how many times pip ran.
func (f *fakePython) installCount() int {
	n := 0

	for _, c := range f.commands {
		if slices.Contains(c.Args, "pip") {
			n++
		}
	}

	return n
}

// testConfig returns a validated config pointing at a fake interpreter.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	cfg := &config.Config{
		Toolchain: config.Toolchain{Python: "python3"},
		Paths:     config.Paths{Workdir: t.TempDir()},
		Manifest:  &manifest.Manifest{Entry: "main.py", Name: "App"},
	}
	require.NoError(t, config.Validate(cfg))

	return cfg
}

// TestEnsureTool_Idempotent installs once and skips the installer on the second call.
func TestEnsureTool_Idempotent(t *testing.T) {
	t.Parallel()

	fake := &fakePython{installs: "6.11.1"}
	installer := NewInstaller(testConfig(t), fake)

	status, err := installer.EnsureTool(context.Background(), ">=6.0")
	require.NoError(t, err)
	require.True(t, status.Installed)
	require.Equal(t, "6.11.1", status.Version)
	require.Equal(t, 1, fake.installCount())

	status, err = installer.EnsureTool(context.Background(), ">=6.0")
	require.NoError(t, err)
	require.False(t, status.Installed)
	require.Equal(t, 1, fake.installCount())
}

// TestEnsureTool_UpgradesOutdated runs pip with the requirement when the version is too old.
func TestEnsureTool_UpgradesOutdated(t *testing.T) {
	t.Parallel()

	fake := &fakePython{installed: "5.13.2", installs: "6.2.0"}
	installer := NewInstaller(testConfig(t), fake)

	status, err := installer.EnsureTool(context.Background(), "~=6.2")
	require.NoError(t, err)
	require.True(t, status.Installed)
	require.Equal(t, 1, fake.installCount())

	var pip *common.Command

	for _, c := range fake.commands {
		if slices.Contains(c.Args, "pip") {
			pip = c
		}
	}

	require.NotNil(t, pip)
	require.Equal(t, "python3", pip.Name)
	require.Equal(t, []string{"-m", "pip", "install", "--upgrade", "pyinstaller~=6.2"}, pip.Args)
	require.Equal(t, config.DefaultInstallTimeout, pip.Timeout)
}

// TestEnsureTool_Force always runs the installer.
func TestEnsureTool_Force(t *testing.T) {
	t.Parallel()

	fake := &fakePython{installed: "6.3.0", installs: "6.3.0"}
	installer := NewInstaller(testConfig(t), fake, WithForceUpgrade(true))

	status, err := installer.EnsureTool(context.Background(), "")
	require.NoError(t, err)
	require.True(t, status.Installed)
	require.Equal(t, 1, fake.installCount())
}

// TestEnsureTool_InstallerFails surfaces the installer exit code and output.
func TestEnsureTool_InstallerFails(t *testing.T) {
	t.Parallel()

	fake := &fakePython{installExit: 1}

	_, err := NewInstaller(testConfig(t), fake).EnsureTool(context.Background(), ">=6")

	var installErr *build.ToolInstallError
	require.ErrorAs(t, err, &installErr)
	require.Equal(t, 1, installErr.ExitCode)
	require.Contains(t, string(installErr.Output), "No matching distribution")
	require.ErrorIs(t, err, build.ErrToolFailed)
	require.Equal(t, 1, build.ExitCode(err))
}

// TestEnsureTool_InterpreterMissing reports an unreachable installer.
func TestEnsureTool_InterpreterMissing(t *testing.T) {
	t.Parallel()

	fake := &fakePython{startErr: errTestStart}

	_, err := NewInstaller(testConfig(t), fake).EnsureTool(context.Background(), "")

	var installErr *build.ToolInstallError
	require.ErrorAs(t, err, &installErr)
	require.Equal(t, -1, installErr.ExitCode)
	require.ErrorIs(t, err, errTestStart)
}

// TestEnsureTool_StillUnsatisfied fails when the installer cannot reach the constraint.
func TestEnsureTool_StillUnsatisfied(t *testing.T) {
	t.Parallel()

	fake := &fakePython{installs: "5.0.0"}

	_, err := NewInstaller(testConfig(t), fake).EnsureTool(context.Background(), ">=6.0")
	require.ErrorIs(t, err, build.ErrConstraintUnsatisfied)
}

// TestEnsureTool_BadConstraint rejects unparsable constraints before running anything.
func TestEnsureTool_BadConstraint(t *testing.T) {
	t.Parallel()

	fake := new(fakePython)

	_, err := NewInstaller(testConfig(t), fake).EnsureTool(context.Background(), ">=banana")

	var installErr *build.ToolInstallError
	require.ErrorAs(t, err, &installErr)
	require.Empty(t, fake.commands)
}

// TestEnsureTool_ArbitraryEquality names the unsupported operator instead of installing.
func TestEnsureTool_ArbitraryEquality(t *testing.T) {
	t.Parallel()

	fake := new(fakePython)

	_, err := NewInstaller(testConfig(t), fake).EnsureTool(context.Background(), "===6.0")
	require.ErrorIs(t, err, ErrUnsupportedSpecifier)
	require.ErrorContains(t, err, "arbitrary equality")
	require.Empty(t, fake.commands)
}
