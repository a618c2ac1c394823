//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/oshokin/pyfreeze/internal/logger"
)

// Command describes one external tool invocation.
type Command struct {
	// Name is the executable to run.
	Name string
	// Args are passed to the executable as-is, without a shell.
	Args []string
	// Dir is the working directory; empty means the current one.
	Dir string
	// Env is appended to the inherited environment.
	Env []string
	// Timeout bounds the invocation; zero means wait until the process exits.
	Timeout time.Duration
}

// String renders the command line for logs.
func (c *Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the outcome of a process that ran to completion.
type Result struct {
	// ExitCode is the process exit code.
	ExitCode int
	// Output is the combined stdout and stderr in arrival order.
	Output []byte
}

// Runner executes external commands synchronously.
//
// A non-zero exit is not an error: it is reported through Result.ExitCode.
// Errors mean the process could not be started or was cancelled; the partial
// output is still returned when available.
type Runner interface {
	Run(ctx context.Context, cmd *Command) (*Result, error)
}

// ExecRunner runs commands with os/exec, copying output to Stdout and Stderr
// as it arrives while also capturing it.
type ExecRunner struct {
	// Stdout receives the process standard output; nil discards it.
	Stdout io.Writer
	// Stderr receives the process standard error; nil discards it.
	Stderr io.Writer
}

// NewExecRunner creates an ExecRunner streaming to the given writers.
func NewExecRunner(stdout, stderr io.Writer) *ExecRunner {
	return &ExecRunner{
		Stdout: stdout,
		Stderr: stderr,
	}
}

// Run implements Runner.
func (r *ExecRunner) Run(ctx context.Context, command *Command) (*Result, error) {
	if command == nil || command.Name == "" {
		return nil, errEmptyCommand
	}

	runCtx, cancel := commandContext(ctx, command.Timeout)
	defer cancel()

	var captured lockedBuffer

	//nolint:gosec // Running the configured tool is the purpose of this function.
	cmd := exec.CommandContext(runCtx, command.Name, command.Args...)
	cmd.Dir = command.Dir
	cmd.Stdout = io.MultiWriter(orDiscard(r.Stdout), &captured)
	cmd.Stderr = io.MultiWriter(orDiscard(r.Stderr), &captured)

	if len(command.Env) > 0 {
		cmd.Env = append(cmd.Environ(), command.Env...)
	}

	logger.DebugKV(ctx, "Running command", "command", command.String(), "dir", command.Dir)

	err := cmd.Run()
	result := &Result{
		ExitCode: cmd.ProcessState.ExitCode(),
		Output:   captured.Bytes(),
	}

	var exitErr *exec.ExitError

	switch {
	case err == nil:
		return result, nil
	case runCtx.Err() != nil:
		return result, fmt.Errorf("%s: %w", command.Name, runCtx.Err())
	case errors.As(err, &exitErr):
		return result, nil
	default:
		result.ExitCode = -1

		return result, fmt.Errorf("start %s: %w", command.Name, err)
	}
}

var errEmptyCommand = errors.New("command is empty")

// commandContext applies timeout when positive, otherwise only makes ctx cancellable.
func commandContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, timeout)
}

func orDiscard(w io.Writer) io.Writer {
	if w == nil {
		return io.Discard
	}

	return w
}

// lockedBuffer lets stdout and stderr copiers write concurrently.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	return bytes.Clone(b.buf.Bytes())
}
