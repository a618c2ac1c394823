package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/google/shlex"
	"gopkg.in/yaml.v3"

	"github.com/oshokin/pyfreeze/internal/domain/manifest"
)

// Toolchain locates the interpreter and the packaging tool.
type Toolchain struct {
	// Venv is the virtual environment root holding the interpreter.
	Venv string `yaml:"venv"`
	// Python overrides the interpreter command; it may carry arguments ("py -3").
	Python string `yaml:"python,omitempty"`
	// Package is the distribution name passed to the installer.
	Package string `yaml:"package"`
	// Module is the module run with `python -m` to invoke the packaging tool.
	Module string `yaml:"module"`
	// Constraint is the version constraint; empty accepts any installed version.
	Constraint string `yaml:"constraint,omitempty"`
	// InstallTimeout bounds the installer; zero means no timeout.
	InstallTimeout time.Duration `yaml:"install_timeout"`
	// BuildTimeout bounds the packaging tool; zero means no timeout.
	BuildTimeout time.Duration `yaml:"build_timeout"`
}

// Paths are resolved against Workdir when relative.
type Paths struct {
	// Workdir is the directory inputs are resolved against and tools run in.
	Workdir string `yaml:"workdir"`
	// Dist receives the final artifact.
	Dist string `yaml:"dist"`
	// Build holds intermediate files, the staging area, the lock and the build record.
	Build string `yaml:"build"`
}

// Config is the pyfreeze settings file.
type Config struct {
	Toolchain Toolchain          `yaml:"toolchain"`
	Paths     Paths              `yaml:"paths"`
	Manifest  *manifest.Manifest `yaml:"manifest"`
}

const (
	// DefaultConfigFilename is the default settings file name.
	DefaultConfigFilename = "pyfreeze.yaml"

	// DefaultVenv is the virtual environment looked up when none is configured.
	DefaultVenv = ".venv"

	// DefaultPackage is the packaging tool distribution installed by pip.
	DefaultPackage = "pyinstaller"

	// DefaultModule is the packaging tool module name.
	DefaultModule = "PyInstaller"

	// DefaultInstallTimeout bounds pip, which reaches the network.
	DefaultInstallTimeout = 10 * time.Minute

	// DefaultDistDir and DefaultBuildDir follow the packaging tool's own layout.
	DefaultDistDir  = "dist"
	DefaultBuildDir = "build"

	// DefaultFilePermissions is the permission used for the settings file.
	DefaultFilePermissions = 0o644
)

// Environment variables overriding the settings file.
const (
	EnvVenv       = "PYFREEZE_VENV"
	EnvPython     = "PYFREEZE_PYTHON"
	EnvConstraint = "PYFREEZE_CONSTRAINT"
	EnvWorkdir    = "PYFREEZE_WORKDIR"
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errManifestRequired is returned when the settings file has no manifest section.
	errManifestRequired = errors.New("manifest section is required")
	// errNegativeTimeout is returned for timeouts below zero.
	errNegativeTimeout = errors.New("timeout must not be negative")
	// errEmptyPython is returned when the interpreter override splits into nothing.
	errEmptyPython = errors.New("python command is empty")
	// ErrConfigExists is returned by WriteDefault when the file is already there.
	ErrConfigExists = errors.New("configuration file already exists")
)

// Load reads configuration from path, applies environment overrides and validates it.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err = yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	// A relative workdir is anchored at the settings file, not at the caller's cwd.
	if cfg.Paths.Workdir != "" && !filepath.IsAbs(cfg.Paths.Workdir) {
		cfg.Paths.Workdir = filepath.Join(filepath.Dir(path), cfg.Paths.Workdir)
	} else if cfg.Paths.Workdir == "" {
		cfg.Paths.Workdir = filepath.Dir(path)
	}

	ApplyEnv(&cfg)

	if err = Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save validates cfg and writes it to path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	if err = os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// WriteDefault saves Default() to path unless the file exists and force is false.
func WriteDefault(path string, force bool) error {
	if path == "" {
		path = DefaultConfigFilename
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s: %w", path, ErrConfigExists)
		}
	}

	return Save(path, Default())
}

// ApplyEnv overrides settings from PYFREEZE_* environment variables.
func ApplyEnv(cfg *Config) {
	if v, ok := os.LookupEnv(EnvVenv); ok && v != "" {
		cfg.Toolchain.Venv = v
	}

	if v, ok := os.LookupEnv(EnvPython); ok && v != "" {
		cfg.Toolchain.Python = v
	}

	if v, ok := os.LookupEnv(EnvConstraint); ok {
		cfg.Toolchain.Constraint = v
	}

	if v, ok := os.LookupEnv(EnvWorkdir); ok && v != "" {
		cfg.Paths.Workdir = v
	}
}

// Validate fills defaults and checks the settings for consistency.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if cfg.Manifest == nil {
		return errManifestRequired
	}

	if cfg.Toolchain.Venv == "" {
		cfg.Toolchain.Venv = DefaultVenv
	}

	if cfg.Toolchain.Package == "" {
		cfg.Toolchain.Package = DefaultPackage
	}

	if cfg.Toolchain.Module == "" {
		cfg.Toolchain.Module = DefaultModule
	}

	if cfg.Toolchain.InstallTimeout < 0 || cfg.Toolchain.BuildTimeout < 0 {
		return errNegativeTimeout
	}

	if cfg.Paths.Workdir == "" {
		cfg.Paths.Workdir = "."
	}

	if cfg.Paths.Dist == "" {
		cfg.Paths.Dist = DefaultDistDir
	}

	if cfg.Paths.Build == "" {
		cfg.Paths.Build = DefaultBuildDir
	}

	if cfg.Toolchain.Python != "" {
		if _, err := cfg.PythonCommand(); err != nil {
			return err
		}
	}

	if err := cfg.Manifest.Check(); err != nil {
		return fmt.Errorf("manifest: %w", err)
	}

	return nil
}

// Resolve anchors p at the working directory unless it is absolute.
func (c *Config) Resolve(p string) string {
	return manifest.Resolve(c.Paths.Workdir, p)
}

// DistDir is the absolute-or-workdir-relative final artifact directory.
func (c *Config) DistDir() string {
	return c.Resolve(c.Paths.Dist)
}

// BuildDir is the intermediate files directory.
func (c *Config) BuildDir() string {
	return c.Resolve(c.Paths.Build)
}

// PythonCommand returns the interpreter argv prefix.
// An explicit Python setting wins; otherwise the venv interpreter is used.
func (c *Config) PythonCommand() ([]string, error) {
	if c.Toolchain.Python != "" {
		parts, err := shlex.Split(c.Toolchain.Python)
		if err != nil {
			return nil, fmt.Errorf("parse python command: %w", err)
		}

		if len(parts) == 0 {
			return nil, errEmptyPython
		}

		return parts, nil
	}

	venv := c.Resolve(c.Toolchain.Venv)
	if runtime.GOOS == "windows" {
		return []string{filepath.Join(venv, "Scripts", "python.exe")}, nil
	}

	return []string{filepath.Join(venv, "bin", "python")}, nil
}

// Default returns the settings bundling the IconMaker utility: the launcher
// script, its three generator modules as data, the assets folder and its icon.
func Default() *Config {
	return &Config{
		Toolchain: Toolchain{
			Venv:           DefaultVenv,
			Package:        DefaultPackage,
			Module:         DefaultModule,
			Constraint:     ">=6.0",
			InstallTimeout: DefaultInstallTimeout,
		},
		Paths: Paths{
			Workdir: ".",
			Dist:    DefaultDistDir,
			Build:   DefaultBuildDir,
		},
		Manifest: &manifest.Manifest{
			Entry: "IconMaker.py",
			Name:  "IconMaker",
			Icon:  "assets/Iconner.ico",
			Data: []manifest.DataFile{
				{Source: "Gen1.py", Dest: "."},
				{Source: "Gen2.py", Dest: "."},
				{Source: "Gen3.py", Dest: "."},
				{Source: "assets", Dest: "assets"},
			},
			Mode:     manifest.ModeOneFile,
			Windowed: true,
			Clean:    true,
		},
	}
}
