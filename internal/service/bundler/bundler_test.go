package bundler

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/domain/manifest"
	"github.com/oshokin/pyfreeze/internal/repository/record"
	"github.com/oshokin/pyfreeze/internal/service/common"
	"github.com/oshokin/pyfreeze/internal/service/lock"
)

var errTestKilled = errors.New("signal: killed")

// fakeTool emulates the packaging tool by writing the artifact into --distpath.
type fakeTool struct {
	// exitCode is returned instead of building when non-zero.
	exitCode int
	// runErr simulates a tool that could not be started.
	runErr error
	// skipArtifact makes the tool succeed without producing anything.
	skipArtifact bool
	// contents is written into the artifact.
	contents []byte
	// calls records every invocation.
	calls []*common.Command
	// onRun is called before the artifact is written.
	onRun func(cmd *common.Command)
}

// Run implements common.Runner.
func (f *fakeTool) Run(_ context.Context, cmd *common.Command) (*common.Result, error) {
	f.calls = append(f.calls, cmd)

	if f.onRun != nil {
		f.onRun(cmd)
	}

	if f.runErr != nil {
		return &common.Result{ExitCode: -1, Output: []byte("partial")}, f.runErr
	}

	if f.exitCode != 0 {
		return &common.Result{ExitCode: f.exitCode, Output: []byte("ValueError: icon not found\n")}, nil
	}

	if f.skipArtifact {
		return &common.Result{}, nil
	}

	dist := argValue(cmd.Args, "--distpath")
	name := argValue(cmd.Args, "--name")
	target := filepath.Join(dist, name+manifest.ExecutableExtension())

	if slices.Contains(cmd.Args, "--onedir") {
		target = filepath.Join(dist, name, name+manifest.ExecutableExtension())
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, err
	}

	if err := os.WriteFile(target, f.contents, 0o755); err != nil {
		return nil, err
	}

	return &common.Result{Output: []byte("Building EXE completed successfully.\n")}, nil
}

// argValue returns the value following flag in args.
func argValue(args []string, flag string) string {
	i := slices.Index(args, flag)
	if i < 0 || i+1 >= len(args) {
		return ""
	}

	return args[i+1]
}

// memoryRecords is an in-memory record.Repository.
type memoryRecords struct {
	saved *build.Record
}

// Load returns the last saved record.
func (m *memoryRecords) Load(context.Context) (*build.Record, error) {
	if m.saved == nil {
		return nil, record.ErrNotFound
	}

	return m.saved, nil
}

// Save keeps the record in memory.
func (m *memoryRecords) Save(_ context.Context, r *build.Record) error {
	m.saved = r

	return nil
}

// workspace creates a working directory with the inputs of the reference scenario.
func workspace(t *testing.T) (string, *config.Config, *manifest.Manifest) {
	t.Helper()

	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "main"), []byte("print('hi')"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "logo.png"), []byte("png"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.ico"), []byte{0, 0, 1, 0, 1, 0}, 0o600))

	m := &manifest.Manifest{
		Entry: "main",
		Name:  "App",
		Icon:  "app.ico",
		Data:  []manifest.DataFile{{Source: "assets", Dest: "assets"}},
	}

	cfg := &config.Config{
		Toolchain: config.Toolchain{Python: "python"},
		Paths:     config.Paths{Workdir: dir},
		Manifest:  m,
	}
	require.NoError(t, config.Validate(cfg))

	return dir, cfg, m
}

// TestRunBuild_ProducesArtifact runs the reference scenario and checks the single artifact.
func TestRunBuild_ProducesArtifact(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	tool := &fakeTool{contents: []byte("binary")}
	records := new(memoryRecords)

	artifact, err := New(cfg, tool, WithRecords(records), WithToolVersion("6.11.1")).RunBuild(context.Background(), m)
	require.NoError(t, err)

	want := filepath.Join(dir, "dist", "App"+manifest.ExecutableExtension())
	require.Equal(t, want, artifact)

	contents, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, "binary", string(contents))

	entries, err := os.ReadDir(filepath.Join(dir, "dist"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	// Staging and lock are gone after the build.
	buildEntries, err := os.ReadDir(filepath.Join(dir, "build"))
	require.NoError(t, err)

	for _, e := range buildEntries {
		require.NotContains(t, e.Name(), "stage-")
		require.NotEqual(t, lock.Filename, e.Name())
	}

	sum := sha512.Sum512([]byte("binary"))
	require.NotNil(t, records.saved)
	require.Equal(t, artifact, records.saved.Artifact)
	require.Equal(t, base64.StdEncoding.EncodeToString(sum[:]), records.saved.Checksum)
	require.Equal(t, int64(len("binary")), records.saved.Size)
	require.Equal(t, "6.11.1", records.saved.ToolVersion)
	require.NotEmpty(t, records.saved.ID)
}

// TestRunBuild_Arguments checks the manifest is translated into the tool command line.
func TestRunBuild_Arguments(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	m.Windowed = true
	m.HiddenImports = []string{"PIL._tkinter_finder"}
	m.ExtraArgs = `--log-level WARN --collect-data "my pkg"`

	tool := &fakeTool{contents: []byte("binary")}

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, tool.calls, 1)

	cmd := tool.calls[0]
	require.Equal(t, "python", cmd.Name)
	require.Equal(t, dir, cmd.Dir)
	require.Equal(t, []string{"-m", "PyInstaller", "--noconfirm", "--onefile", "--windowed"}, cmd.Args[:5])
	require.Equal(t, "App", argValue(cmd.Args, "--name"))
	require.Equal(t, filepath.Join(dir, "app.ico"), argValue(cmd.Args, "--icon"))
	require.Equal(t, filepath.Join(dir, "assets")+string(os.PathListSeparator)+"assets", argValue(cmd.Args, "--add-data"))
	require.Equal(t, "PIL._tkinter_finder", argValue(cmd.Args, "--hidden-import"))
	require.Equal(t, filepath.Join(dir, "build", "App"), argValue(cmd.Args, "--workpath"))
	require.Equal(t, "my pkg", argValue(cmd.Args, "--collect-data"))
	require.NotContains(t, cmd.Args, "--clean")
	require.Equal(t, filepath.Join(dir, "main"), cmd.Args[len(cmd.Args)-1])
}

// TestRunBuild_MissingEntry fails before the tool is invoked and produces nothing.
func TestRunBuild_MissingEntry(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	m.Entry = "missing.file"

	tool := &fakeTool{contents: []byte("binary")}

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.ErrorIs(t, err, manifest.ErrMissingInput)
	require.Equal(t, build.ExitCodeFailure, build.ExitCode(err))
	require.Empty(t, tool.calls)
	require.NoDirExists(t, filepath.Join(dir, "dist"))
}

// TestRunBuild_MissingDataSource fails for any absent data source.
func TestRunBuild_MissingDataSource(t *testing.T) {
	t.Parallel()

	_, cfg, m := workspace(t)
	m.Data = append(m.Data, manifest.DataFile{Source: "Gen1.py", Dest: "."})

	tool := new(fakeTool)

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.ErrorIs(t, err, manifest.ErrMissingInput)
	require.Empty(t, tool.calls)
}

// TestRunBuild_ToolFailure mirrors the exit code and keeps the tool output.
func TestRunBuild_ToolFailure(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	tool := &fakeTool{exitCode: 3}
	records := new(memoryRecords)

	_, err := New(cfg, tool, WithRecords(records)).RunBuild(context.Background(), m)

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Equal(t, 3, buildErr.ExitCode)
	require.Contains(t, string(buildErr.Output), "icon not found")
	require.ErrorIs(t, err, build.ErrToolFailed)
	require.Equal(t, 3, build.ExitCode(err))
	require.NoFileExists(t, filepath.Join(dir, "dist", m.ArtifactName()))
	require.Nil(t, records.saved)
}

// TestRunBuild_ToolNotStarted reports a runner error as a build error.
func TestRunBuild_ToolNotStarted(t *testing.T) {
	t.Parallel()

	_, cfg, m := workspace(t)
	tool := &fakeTool{runErr: errTestKilled}

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.ErrorIs(t, err, errTestKilled)
	require.Equal(t, "partial", string(buildErr.Output))
}

// TestRunBuild_NoArtifact fails when the tool exits zero without output.
func TestRunBuild_NoArtifact(t *testing.T) {
	t.Parallel()

	_, cfg, m := workspace(t)
	tool := &fakeTool{skipArtifact: true}

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.ErrorIs(t, err, build.ErrArtifactMissing)
}

// TestRunBuild_CleanRemovesStaleArtifact removes the prior artifact before invoking the tool.
func TestRunBuild_CleanRemovesStaleArtifact(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	m.Clean = true

	target := filepath.Join(dir, "dist", m.ArtifactName())
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("stale"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "build", "App", "cache"), 0o755))

	var staleSeen, workSeen bool

	tool := &fakeTool{
		contents: []byte("fresh"),
		onRun: func(cmd *common.Command) {
			_, err := os.Stat(target)
			staleSeen = err == nil
			_, err = os.Stat(filepath.Join(dir, "build", "App", "cache"))
			workSeen = err == nil

			require.Contains(t, cmd.Args, "--clean")
		},
	}

	artifact, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.NoError(t, err)
	require.False(t, staleSeen)
	require.False(t, workSeen)

	contents, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, "fresh", string(contents))
}

// TestRunBuild_BadExtraArgsKeepsPriorArtifact rejects the manifest before cleaning anything.
func TestRunBuild_BadExtraArgsKeepsPriorArtifact(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	m.Clean = true
	m.ExtraArgs = `--foo "bar`

	target := filepath.Join(dir, "dist", m.ArtifactName())
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("previous"), 0o755))

	workCache := filepath.Join(dir, "build", "App", "cache")
	require.NoError(t, os.MkdirAll(workCache, 0o755))

	tool := new(fakeTool)

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Empty(t, tool.calls)

	contents, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "previous", string(contents))
	require.DirExists(t, workCache)
}

// TestRunBuild_FailedPromotionLeavesNoArtifact removes the empty target when the update cannot be applied.
func TestRunBuild_FailedPromotionLeavesNoArtifact(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)

	// The updater writes .<name>.new first; a folder in its way makes it fail.
	blocker := filepath.Join(dir, "dist", "."+m.ArtifactName()+".new")
	require.NoError(t, os.MkdirAll(filepath.Join(blocker, "keep"), 0o755))

	tool := &fakeTool{contents: []byte("binary")}

	_, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)

	var buildErr *build.BuildError
	require.ErrorAs(t, err, &buildErr)
	require.Len(t, tool.calls, 1)
	require.NoFileExists(t, filepath.Join(dir, "dist", m.ArtifactName()))
	require.NoFileExists(t, filepath.Join(dir, "dist", "."+m.ArtifactName()+".old"))
}

// TestRunBuild_ReplacesWithoutClean overwrites the previous artifact atomically.
func TestRunBuild_ReplacesWithoutClean(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)

	target := filepath.Join(dir, "dist", m.ArtifactName())
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))
	require.NoError(t, os.WriteFile(target, []byte("old"), 0o755))

	artifact, err := New(cfg, &fakeTool{contents: []byte("new")}, WithRecords(new(memoryRecords))).
		RunBuild(context.Background(), m)
	require.NoError(t, err)

	contents, err := os.ReadFile(artifact)
	require.NoError(t, err)
	require.Equal(t, "new", string(contents))

	entries, err := os.ReadDir(filepath.Join(dir, "dist"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

// TestRunBuild_CleanOption forces a clean build from the caller.
func TestRunBuild_CleanOption(t *testing.T) {
	t.Parallel()

	_, cfg, m := workspace(t)
	tool := &fakeTool{contents: []byte("binary")}

	_, err := New(cfg, tool, WithClean(true), WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.NoError(t, err)
	require.Contains(t, tool.calls[0].Args, "--clean")
	require.False(t, m.Clean)
}

// TestRunBuild_OneDir promotes the whole bundle folder.
func TestRunBuild_OneDir(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	m.Mode = manifest.ModeOneDir

	tool := &fakeTool{contents: []byte("binary")}

	artifact, err := New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.NoError(t, err)
	require.Contains(t, tool.calls[0].Args, "--onedir")
	require.Equal(t, filepath.Join(dir, "dist", "App", m.ArtifactName()), artifact)
	require.FileExists(t, artifact)
}

// TestRunBuild_LockHeld refuses to build while another build holds the lock.
func TestRunBuild_LockHeld(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)

	held, err := lock.Acquire(context.Background(), filepath.Join(dir, "build"))
	require.NoError(t, err)

	defer func() {
		_ = held.Release()
	}()

	tool := new(fakeTool)

	_, err = New(cfg, tool, WithRecords(new(memoryRecords))).RunBuild(context.Background(), m)
	require.ErrorIs(t, err, lock.ErrBuildInProgress)
	require.Empty(t, tool.calls)
}

// TestRunBuild_RecordsToDisk uses the default file repository.
func TestRunBuild_RecordsToDisk(t *testing.T) {
	t.Parallel()

	dir, cfg, m := workspace(t)
	b := New(cfg, &fakeTool{contents: []byte("binary")})
	b.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	_, err := b.RunBuild(context.Background(), m)
	require.NoError(t, err)

	rec, err := record.NewInDir(filepath.Join(dir, "build")).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "App", rec.Name)
	require.True(t, rec.StartedAt.Equal(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)))
}

// TestEnsureNotRunning only refuses a running executable where it cannot be replaced.
func TestEnsureNotRunning(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("uses sleep")
	}

	sleeper := exec.Command("sleep", "30")
	require.NoError(t, sleeper.Start())

	t.Cleanup(func() {
		_ = sleeper.Process.Kill()
		_ = sleeper.Wait()
	})

	running, err := lock.ExecutableRunning("sleep")
	require.NoError(t, err)
	require.True(t, running)

	require.NoError(t, ensureNotRunning(context.Background(), false, "sleep"))
	require.ErrorIs(t, ensureNotRunning(context.Background(), true, "sleep"), build.ErrArtifactInUse)
	require.NoError(t, ensureNotRunning(context.Background(), true, "pyfreeze-no-such-executable"))
}

// TestToolArgs_BadExtraArgs rejects unterminated quotes.
func TestToolArgs_BadExtraArgs(t *testing.T) {
	t.Parallel()

	m := &manifest.Manifest{Entry: "main.py", Name: "App", ExtraArgs: `--foo "bar`}

	_, err := toolArgs(m, &layout{root: "/w", work: "/w/build/App"}, "/w/build/stage", false)
	require.ErrorIs(t, err, manifest.ErrInvalidManifest)
}
