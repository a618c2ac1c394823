package toolchain

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/logger"
	"github.com/oshokin/pyfreeze/internal/service/common"
)

// versionQueryTimeout bounds `python -m <tool> --version`.
const versionQueryTimeout = time.Minute

// Installer ensures the packaging tool is present and current.
type Installer struct {
	// cfg supplies the interpreter, package, module and timeouts.
	cfg *config.Config
	// runner executes the interpreter.
	runner common.Runner
	// force runs the installer even when the constraint is already satisfied.
	force bool
}

// Option configures an Installer.
type Option func(*Installer)

// WithForceUpgrade makes EnsureTool run the installer unconditionally.
func WithForceUpgrade(force bool) Option {
	return func(i *Installer) {
		i.force = force
	}
}

// Status is the outcome of EnsureTool.
type Status struct {
	// Version is the installed packaging tool version.
	Version string
	// Installed is true when the installer ran.
	Installed bool
}

// NewInstaller creates an Installer for cfg running commands through runner.
func NewInstaller(cfg *config.Config, runner common.Runner, opts ...Option) *Installer {
	i := &Installer{
		cfg:    cfg,
		runner: runner,
	}

	for _, opt := range opts {
		opt(i)
	}

	return i
}

// InstalledVersion returns the packaging tool version, or "" when it is not importable.
func (i *Installer) InstalledVersion(ctx context.Context) (string, error) {
	command, err := i.pythonCommand(versionQueryTimeout, "-m", i.cfg.Toolchain.Module, "--version")
	if err != nil {
		return "", err
	}

	res, err := i.runner.Run(ctx, command)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", ctxErr
	}

	if err != nil {
		logger.DebugKV(ctx, "Packaging tool version query failed", "error", err)

		return "", nil
	}

	if res.ExitCode != 0 {
		return "", nil
	}

	return parseVersionOutput(res.Output), nil
}

// EnsureTool installs or upgrades the packaging tool until it satisfies constraint.
// No installer runs when the installed version already satisfies it.
func (i *Installer) EnsureTool(ctx context.Context, constraint string) (*Status, error) {
	constraints, err := ParseConstraint(constraint)
	if err != nil {
		return nil, &build.ToolInstallError{ExitCode: -1, Err: err}
	}

	if !i.force {
		current, queryErr := i.InstalledVersion(ctx)
		if queryErr != nil {
			return nil, &build.ToolInstallError{ExitCode: -1, Err: queryErr}
		}

		if Satisfies(current, constraints) {
			logger.InfoKV(ctx, "Packaging tool already satisfies constraint",
				"package", i.cfg.Toolchain.Package, "version", current, "constraint", constraint)

			return &Status{Version: current}, nil
		}

		if current != "" {
			logger.InfoKV(ctx, "Packaging tool version does not satisfy constraint",
				"version", current, "constraint", constraint)
		}
	}

	requirement := Requirement(i.cfg.Toolchain.Package, constraint)
	logger.InfoKV(ctx, "Installing packaging tool", "requirement", requirement)

	if err = i.install(ctx, requirement); err != nil {
		return nil, err
	}

	current, err := i.InstalledVersion(ctx)
	if err != nil {
		return nil, &build.ToolInstallError{ExitCode: -1, Err: err}
	}

	if !Satisfies(current, constraints) {
		return nil, &build.ToolInstallError{
			ExitCode: -1,
			Err: fmt.Errorf("%w: installed %q, want %q",
				build.ErrConstraintUnsatisfied, current, constraint),
		}
	}

	logger.InfoKV(ctx, "Packaging tool installed", "version", current)

	return &Status{Version: current, Installed: true}, nil
}

// install runs `python -m pip install --upgrade requirement`.
func (i *Installer) install(ctx context.Context, requirement string) error {
	command, err := i.pythonCommand(i.cfg.Toolchain.InstallTimeout,
		"-m", "pip", "install", "--upgrade", requirement)
	if err != nil {
		return &build.ToolInstallError{ExitCode: -1, Err: err}
	}

	res, err := i.runner.Run(ctx, command)
	if err != nil {
		installErr := &build.ToolInstallError{ExitCode: -1, Err: fmt.Errorf("run installer: %w", err)}
		if res != nil {
			installErr.Output = res.Output
		}

		return installErr
	}

	if res.ExitCode != 0 {
		return &build.ToolInstallError{
			ExitCode: res.ExitCode,
			Output:   res.Output,
			Err:      fmt.Errorf("%w: installer exit code %d", build.ErrToolFailed, res.ExitCode),
		}
	}

	return nil
}

// pythonCommand prefixes args with the configured interpreter.
func (i *Installer) pythonCommand(timeout time.Duration, args ...string) (*common.Command, error) {
	python, err := i.cfg.PythonCommand()
	if err != nil {
		return nil, err
	}

	return &common.Command{
		Name:    python[0],
		Args:    append(append([]string(nil), python[1:]...), args...),
		Dir:     i.cfg.Paths.Workdir,
		Timeout: timeout,
	}, nil
}

// parseVersionOutput takes the last non-empty line, which is where the
// packaging tool prints its version after any interpreter warnings.
func parseVersionOutput(output []byte) string {
	var last string

	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			last = line
		}
	}

	return last
}
