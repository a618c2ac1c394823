package build

import (
	"errors"
	"fmt"
)

// ExitCodeFailure is used when a failure has no tool exit code to mirror.
const ExitCodeFailure = 1

var (
	// ErrToolFailed is wrapped when the external tool exits non-zero.
	ErrToolFailed = errors.New("tool exited with non-zero status")
	// ErrArtifactMissing is wrapped when the tool succeeded but left no artifact.
	ErrArtifactMissing = errors.New("artifact not produced")
	// ErrArtifactInUse is wrapped when the artifact is running and cannot be replaced.
	ErrArtifactInUse = errors.New("artifact is running")
	// ErrConstraintUnsatisfied is wrapped when the installed tool still misses the constraint.
	ErrConstraintUnsatisfied = errors.New("version constraint not satisfied")
)

// ToolInstallError reports that the packaging tool could not be installed or upgraded.
type ToolInstallError struct {
	// ExitCode is the installer exit code, or -1 when it never ran to completion.
	ExitCode int
	// Output is the captured installer output.
	Output []byte
	// Err is the underlying cause.
	Err error
}

func (e *ToolInstallError) Error() string {
	return fmt.Sprintf("install packaging tool: %v", e.Err)
}

func (e *ToolInstallError) Unwrap() error {
	return e.Err
}

// BuildError reports a failed build. ExitCode mirrors the packaging tool when
// it ran; it is ExitCodeFailure when the build stopped before invoking it.
type BuildError struct {
	// ExitCode is the packaging tool exit code.
	ExitCode int
	// Output is the captured packaging tool output.
	Output []byte
	// Err is the underlying cause.
	Err error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build: %v", e.Err)
}

func (e *BuildError) Unwrap() error {
	return e.Err
}

// NewToolError wraps a non-zero tool exit into a BuildError.
func NewToolError(exitCode int, output []byte) *BuildError {
	return &BuildError{
		ExitCode: exitCode,
		Output:   output,
		Err:      fmt.Errorf("%w: exit code %d", ErrToolFailed, exitCode),
	}
}

// ExitCode maps err to the process exit code pyfreeze should return.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var (
		buildErr   *BuildError
		installErr *ToolInstallError
		code       int
	)

	switch {
	case errors.As(err, &buildErr):
		code = buildErr.ExitCode
	case errors.As(err, &installErr):
		code = installErr.ExitCode
	}

	if code <= 0 {
		return ExitCodeFailure
	}

	return code
}
