package toolchain

import (
	"context"
	"fmt"
	"os"

	"github.com/oshokin/pyfreeze/internal/config"
	"github.com/oshokin/pyfreeze/internal/logger"
	"github.com/oshokin/pyfreeze/internal/service/common"
)

// Options contains inputs for the ensure-tool entry point.
type Options struct {
	// ConfigPath is the settings file path.
	ConfigPath string
	// Force runs the installer even when the constraint is already satisfied.
	Force bool
}

// Run loads the settings and ensures the packaging tool is installed.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "ensure-tool")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	installer := NewInstaller(cfg, common.NewExecRunner(os.Stdout, os.Stderr), WithForceUpgrade(opts.Force))

	status, err := installer.EnsureTool(ctx, cfg.Toolchain.Constraint)
	if err != nil {
		return err
	}

	logger.InfoKV(ctx, "Packaging tool ready",
		"package", cfg.Toolchain.Package, "version", status.Version, "installed", status.Installed)

	return nil
}
