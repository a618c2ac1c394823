package bundler

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/domain/manifest"
	"github.com/oshokin/pyfreeze/internal/logger"
	"github.com/oshokin/pyfreeze/internal/repository/record"
	"github.com/oshokin/pyfreeze/internal/service/common"
	"github.com/oshokin/pyfreeze/internal/service/lock"
)

// runningBlocksReplace is set where the OS refuses to replace the file of a
// running executable. Elsewhere the old inode stays with the running process.
var runningBlocksReplace = runtime.GOOS == "windows"

// Bundler runs builds for one configuration.
type Bundler struct {
	// cfg supplies the interpreter, the paths and the build timeout.
	cfg *config.Config
	// runner executes the packaging tool.
	runner common.Runner
	// records persists the last successful build.
	records record.Repository
	// toolVersion is stored in build records when known.
	toolVersion string
	// clean forces a clean build regardless of the manifest flag.
	clean bool
	// now is the clock, replaceable in tests.
	now func() time.Time
}

// Option configures a Bundler.
type Option func(*Bundler)

// WithRecords replaces the default file-backed record repository.
func WithRecords(repo record.Repository) Option {
	return func(b *Bundler) {
		if repo != nil {
			b.records = repo
		}
	}
}

// WithToolVersion stores the packaging tool version in build records.
func WithToolVersion(v string) Option {
	return func(b *Bundler) {
		b.toolVersion = v
	}
}

// WithClean forces a clean build even when the manifest does not ask for one.
func WithClean(clean bool) Option {
	return func(b *Bundler) {
		b.clean = clean
	}
}

// layout holds the absolute directories used by one build.
type layout struct {
	// root is the working directory inputs are resolved against.
	root string
	// dist receives the promoted artifact.
	dist string
	// build holds the lock, the record, the work and staging directories.
	build string
	// work is the tool's intermediate directory for this manifest.
	work string
}

// New creates a Bundler for cfg running the packaging tool through runner.
func New(cfg *config.Config, runner common.Runner, opts ...Option) *Bundler {
	b := &Bundler{
		cfg:    cfg,
		runner: runner,
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(b)
	}

	if b.records == nil {
		b.records = record.NewInDir(cfg.BuildDir())
	}

	return b
}

// RunBuild builds m and returns the absolute path of the produced artifact.
func (b *Bundler) RunBuild(ctx context.Context, m *manifest.Manifest) (string, error) {
	rec, err := b.Build(ctx, m)
	if err != nil {
		return "", err
	}

	return rec.Artifact, nil
}

// Build builds m and returns the record of the finished build.
// Every failure is a *build.BuildError.
//
//nolint:funlen // The build is a single linear sequence of fatal steps.
func (b *Bundler) Build(ctx context.Context, m *manifest.Manifest) (*build.Record, error) {
	startedAt := b.now()
	buildID := uuid.NewString()
	ctx = logger.WithKV(ctx, "build_id", buildID)

	dirs, err := b.layout(m)
	if err != nil {
		return nil, failed(err)
	}

	logger.InfoKV(ctx, "Validating manifest", "entry", m.Entry, "name", m.Name, "workdir", dirs.root)

	if err = m.Validate(dirs.root); err != nil {
		return nil, failed(err)
	}

	buildLock, err := lock.Acquire(ctx, dirs.build)
	if err != nil {
		return nil, failed(err)
	}

	defer func() {
		if releaseErr := buildLock.Release(); releaseErr != nil {
			logger.WarnKV(ctx, "Could not release build lock", "error", releaseErr)
		}
	}()

	if err = ensureNotRunning(ctx, runningBlocksReplace, m.ArtifactName()); err != nil {
		return nil, failed(err)
	}

	clean := m.Clean || b.clean
	if clean {
		if err = cleanOutputs(ctx, m, dirs); err != nil {
			return nil, failed(err)
		}
	}

	stage, err := os.MkdirTemp(dirs.build, "stage-")
	if err != nil {
		return nil, failed(fmt.Errorf("create staging directory: %w", err))
	}

	defer func() {
		_ = os.RemoveAll(stage)
	}()

	output, err := b.invoke(ctx, m, dirs, stage, clean)
	if err != nil {
		return nil, err
	}

	artifact, err := promote(ctx, m, stage, dirs.dist)
	if err != nil {
		return nil, &build.BuildError{ExitCode: build.ExitCodeFailure, Output: output, Err: err}
	}

	rec := &build.Record{
		ID:          buildID,
		Name:        m.Name,
		Artifact:    artifact.path,
		Size:        artifact.size,
		Checksum:    base64.StdEncoding.EncodeToString(artifact.checksum),
		ToolVersion: b.toolVersion,
		StartedAt:   startedAt.UTC(),
		Duration:    b.now().Sub(startedAt),
	}

	if actor, actorErr := common.DetectActor(); actorErr == nil {
		rec.Actor = actor
	}

	// The artifact is already in place; a lost record only affects `status`.
	if err = b.records.Save(ctx, rec); err != nil {
		logger.WarnKV(ctx, "Could not save build record", "error", err)
	}

	logger.InfoKV(ctx, "Artifact ready", "path", rec.Artifact)

	return rec, nil
}

// invoke runs the packaging tool and returns its captured output.
func (b *Bundler) invoke(ctx context.Context, m *manifest.Manifest, dirs *layout, stage string, clean bool) ([]byte, error) {
	args, err := toolArgs(m, dirs, stage, clean)
	if err != nil {
		return nil, failed(err)
	}

	python, err := b.cfg.PythonCommand()
	if err != nil {
		return nil, failed(err)
	}

	command := &common.Command{
		Name:    python[0],
		Args:    append(append(append([]string(nil), python[1:]...), "-m", b.cfg.Toolchain.Module), args...),
		Dir:     dirs.root,
		Timeout: b.cfg.Toolchain.BuildTimeout,
	}

	logger.InfoKV(ctx, "Invoking packaging tool", "command", command.String())

	res, err := b.runner.Run(ctx, command)
	if err != nil {
		buildErr := &build.BuildError{ExitCode: -1, Err: fmt.Errorf("run packaging tool: %w", err)}
		if res != nil {
			buildErr.ExitCode = res.ExitCode
			buildErr.Output = res.Output
		}

		return nil, buildErr
	}

	if res.ExitCode != 0 {
		logger.ErrorKV(ctx, "Packaging tool failed", "exit_code", res.ExitCode)

		return nil, build.NewToolError(res.ExitCode, res.Output)
	}

	return res.Output, nil
}

// layout resolves the build directories to absolute paths.
func (b *Bundler) layout(m *manifest.Manifest) (*layout, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: manifest is not set", manifest.ErrInvalidManifest)
	}

	root, err := filepath.Abs(b.cfg.Paths.Workdir)
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}

	buildDir := manifest.Resolve(root, b.cfg.Paths.Build)

	return &layout{
		root:  root,
		dist:  manifest.Resolve(root, b.cfg.Paths.Dist),
		build: buildDir,
		work:  filepath.Join(buildDir, m.Name),
	}, nil
}

// ensureNotRunning refuses to replace an executable that is currently running
// when exclusive is set. Failing to list processes is logged and ignored.
func ensureNotRunning(ctx context.Context, exclusive bool, artifactName string) error {
	if !exclusive {
		return nil
	}

	running, err := lock.ExecutableRunning(artifactName)
	if err != nil {
		logger.WarnKV(ctx, "Could not inspect running processes", "error", err)

		return nil
	}

	if running {
		return fmt.Errorf("%w: %s", build.ErrArtifactInUse, artifactName)
	}

	return nil
}

// cleanOutputs removes the prior artifact and the tool's intermediate files.
func cleanOutputs(ctx context.Context, m *manifest.Manifest, dirs *layout) error {
	targets := []string{
		filepath.Join(dirs.dist, m.ArtifactName()),
		filepath.Join(dirs.dist, m.Name),
		dirs.work,
	}

	for _, target := range targets {
		if _, err := os.Lstat(target); errors.Is(err, os.ErrNotExist) {
			continue
		}

		logger.InfoKV(ctx, "Removing previous output", "path", target)

		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("clean %s: %w", target, err)
		}
	}

	return nil
}

// failed wraps a failure that happened without a tool exit code to mirror.
func failed(err error) *build.BuildError {
	return &build.BuildError{ExitCode: build.ExitCodeFailure, Err: err}
}
