package lock

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pyfreeze/internal/logger"
)

// Filename is the marker created inside the build directory.
const Filename = "pyfreeze.lock"

// settleTime is how long a marker may stay without a readable PID before it
// counts as abandoned. The owner writes its PID right after creating it.
const settleTime = 5 * time.Second

// ErrBuildInProgress is returned when a live process holds the marker.
var ErrBuildInProgress = errors.New("another build is running in this directory")

// Lock is a held build marker.
type Lock struct {
	path string
}

// Acquire creates the marker in dir, recovering it once if the recorded owner is gone.
func Acquire(ctx context.Context, dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}

	path := filepath.Join(dir, Filename)

	for attempt := 0; attempt < 2; attempt++ {
		err := create(path)
		if err == nil {
			logger.DebugKV(ctx, "Acquired build lock", "path", path)

			return &Lock{path: path}, nil
		}

		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create build lock: %w", err)
		}

		alive, owner := ownerAlive(path, time.Now())
		if alive && owner > 0 {
			return nil, fmt.Errorf("%w (pid %d)", ErrBuildInProgress, owner)
		}

		if alive {
			return nil, ErrBuildInProgress
		}

		logger.InfoKV(ctx, "Removing stale build lock", "path", path, "pid", owner)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale build lock: %w", err)
		}
	}

	return nil, ErrBuildInProgress
}

// Release removes the marker. Releasing twice is a no-op.
func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}

	err := os.Remove(l.path)
	l.path = ""

	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release build lock: %w", err)
	}

	return nil
}

// Path returns the marker location.
func (l *Lock) Path() string {
	return l.path
}

// ExecutableRunning reports whether any other process runs an executable named name.
func ExecutableRunning(name string) (bool, error) {
	processList, err := ps.Processes()
	if err != nil {
		return false, fmt.Errorf("list processes: %w", err)
	}

	thisProcessID := os.Getpid()

	for _, process := range processList {
		if process.Pid() == thisProcessID {
			continue
		}

		if strings.EqualFold(process.Executable(), name) {
			return true, nil
		}
	}

	return false, nil
}

// create writes the current PID into a new marker, failing if it exists.
func create(path string) error {
	//nolint:gosec // The marker lives in the configured build directory.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	_, writeErr := f.WriteString(strconv.Itoa(os.Getpid()))
	closeErr := f.Close()

	if err = errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(path)

		return err
	}

	return nil
}

// ownerAlive reads the marker's PID and checks the process table for it.
// A marker without a valid PID is held while younger than settleTime and
// stale afterwards; a marker that disappeared is stale.
func ownerAlive(path string, now time.Time) (bool, int) {
	info, err := os.Stat(path)
	if err != nil {
		return false, 0
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return false, 0
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(contents)))
	if err != nil || pid <= 0 {
		return now.Sub(info.ModTime()) < settleTime, 0
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		// Unknown state; assume the owner is alive rather than racing it.
		return true, pid
	}

	return process != nil, pid
}
