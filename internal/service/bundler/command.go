package bundler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/logger"
	"github.com/oshokin/pyfreeze/internal/service/common"
	"github.com/oshokin/pyfreeze/internal/service/toolchain"
)

// Options contains inputs for the build entry point.
type Options struct {
	// ConfigPath is the settings file path.
	ConfigPath string
	// Clean forces a clean build regardless of the manifest.
	Clean bool
	// SkipEnsure skips the toolchain check and uses whatever is installed.
	SkipEnsure bool
	// ForceUpgrade runs the installer even when the constraint is satisfied.
	ForceUpgrade bool
}

// Run ensures the packaging tool is present and then builds the configured manifest.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "build")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	runner := common.NewExecRunner(os.Stdout, os.Stderr)

	var toolVersion string

	if opts.SkipEnsure {
		logger.Info(ctx, "Skipping packaging tool check")
	} else {
		installer := toolchain.NewInstaller(cfg, runner, toolchain.WithForceUpgrade(opts.ForceUpgrade))

		status, ensureErr := installer.EnsureTool(ctx, cfg.Toolchain.Constraint)
		if ensureErr != nil {
			return ensureErr
		}

		toolVersion = status.Version
	}

	b := New(cfg, runner, WithClean(opts.Clean), WithToolVersion(toolVersion))

	rec, err := b.Build(ctx, cfg.Manifest)
	if err != nil {
		return err
	}

	//nolint:gosec // Sizes come from os.Stat and are never negative.
	logger.InfoKV(ctx, "Build succeeded",
		"artifact", rec.Artifact,
		"size", humanize.Bytes(uint64(rec.Size)),
		"duration", rec.Duration.Round(time.Millisecond).String())

	return nil
}
