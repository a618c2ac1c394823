package bundler

import (
	"bytes"
	"context"
	"crypto"
	"crypto/sha512"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/pyfreeze/internal/domain/build"
	"github.com/oshokin/pyfreeze/internal/domain/manifest"
	"github.com/oshokin/pyfreeze/internal/logger"
)

// artifactFileMode is applied to promoted executables.
const artifactFileMode os.FileMode = 0o755

// promoted describes an artifact moved into the dist directory.
type promoted struct {
	path     string
	size     int64
	checksum []byte
}

// promote moves the staged output into dist according to the manifest mode.
func promote(ctx context.Context, m *manifest.Manifest, stage, dist string) (*promoted, error) {
	if err := os.MkdirAll(dist, 0o755); err != nil {
		return nil, fmt.Errorf("create dist directory: %w", err)
	}

	if m.EffectiveMode() == manifest.ModeOneDir {
		return promoteDir(ctx, m, stage, dist)
	}

	return promoteFile(ctx, m, stage, dist)
}

// promoteFile replaces dist/<artifact> with the staged executable. The
// replacement is atomic and verified against the staged file's SHA-512.
func promoteFile(ctx context.Context, m *manifest.Manifest, stage, dist string) (*promoted, error) {
	staged := filepath.Join(stage, m.ArtifactName())

	data, err := os.ReadFile(filepath.Clean(staged))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", build.ErrArtifactMissing, staged)
		}

		return nil, fmt.Errorf("read staged artifact: %w", err)
	}

	checksum := sha512.Sum512(data)
	target := filepath.Join(dist, m.ArtifactName())

	// A one-dir build of the same name may have left a folder here.
	if info, statErr := os.Lstat(target); statErr == nil && info.IsDir() {
		if err = os.RemoveAll(target); err != nil {
			return nil, fmt.Errorf("remove previous output: %w", err)
		}
	}

	// The updater renames the old target aside, so one has to exist.
	placeholder, err := ensureTarget(target)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Promoting artifact", "from", staged, "to", target)

	options := goupdate.Options{
		TargetPath: target,
		TargetMode: artifactFileMode,
		Checksum:   checksum[:],
		Hash:       crypto.SHA512,
	}

	if err = goupdate.Apply(bytes.NewReader(data), options); err != nil {
		if placeholder {
			removePlaceholder(target)
		}

		return nil, fmt.Errorf("promote artifact: %w", err)
	}

	oldFileName := filepath.Join(dist, "."+m.ArtifactName()+".old")
	if _, err = os.Stat(oldFileName); err == nil {
		_ = os.Remove(oldFileName)
	}

	return &promoted{
		path:     target,
		size:     int64(len(data)),
		checksum: checksum[:],
	}, nil
}

// ensureTarget creates an empty file at target when nothing is there yet.
// It reports whether it did.
func ensureTarget(target string) (bool, error) {
	if _, err := os.Stat(target); !errors.Is(err, os.ErrNotExist) {
		return false, nil
	}

	//nolint:gosec // Target lives in the configured dist directory.
	placeholder, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, artifactFileMode)
	if err != nil {
		return false, fmt.Errorf("create artifact: %w", err)
	}

	_ = placeholder.Close()

	return true, nil
}

// removePlaceholder deletes the empty target left by a failed update, along
// with the copy the updater may have moved aside, so dist holds no artifact.
func removePlaceholder(target string) {
	dir, base := filepath.Split(target)

	_ = os.Remove(target)
	_ = os.Remove(filepath.Join(dir, "."+base+".old"))
}

// promoteDir swaps dist/<name> for the staged one-dir bundle.
func promoteDir(ctx context.Context, m *manifest.Manifest, stage, dist string) (*promoted, error) {
	stagedDir := filepath.Join(stage, m.Name)
	if _, err := os.Stat(filepath.Join(stagedDir, m.ArtifactName())); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", build.ErrArtifactMissing, stagedDir)
		}

		return nil, fmt.Errorf("stat staged artifact: %w", err)
	}

	targetDir := filepath.Join(dist, m.Name)

	if err := os.RemoveAll(targetDir); err != nil {
		return nil, fmt.Errorf("remove previous output: %w", err)
	}

	logger.DebugKV(ctx, "Promoting bundle", "from", stagedDir, "to", targetDir)

	if err := os.Rename(stagedDir, targetDir); err != nil {
		return nil, fmt.Errorf("promote bundle: %w", err)
	}

	executable := filepath.Join(targetDir, m.ArtifactName())

	size, checksum, err := fileChecksum(executable)
	if err != nil {
		return nil, err
	}

	return &promoted{
		path:     executable,
		size:     size,
		checksum: checksum,
	}, nil
}

// fileChecksum returns the size and SHA-512 of the file at path.
func fileChecksum(path string) (int64, []byte, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, nil, fmt.Errorf("open artifact: %w", err)
	}

	defer func() {
		_ = f.Close()
	}()

	hasher := sha512.New()

	size, err := io.Copy(hasher, f)
	if err != nil {
		return 0, nil, fmt.Errorf("calculate checksum: %w", err)
	}

	return size, hasher.Sum(nil), nil
}
