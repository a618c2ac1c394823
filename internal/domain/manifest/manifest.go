package manifest

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"
)

// Mode selects how the packaging tool lays the artifact out.
type Mode string

const (
	// ModeOneFile produces a single self-extracting executable.
	ModeOneFile Mode = "onefile"
	// ModeOneDir produces a folder holding the executable and its dependencies.
	ModeOneDir Mode = "onedir"
)

// DataFile is one (source, destination folder) embedding pair.
type DataFile struct {
	// Source is a file or directory relative to the working directory.
	Source string `yaml:"source"`
	// Dest is the folder inside the bundle; "." is the bundle root.
	Dest string `yaml:"dest"`
}

// Manifest is the declarative description of a single build.
type Manifest struct {
	// Entry is the entry-point script.
	Entry string `yaml:"entry"`
	// Name is the output binary name without platform extension.
	Name string `yaml:"name"`
	// Icon is the optional icon file embedded into the executable.
	Icon string `yaml:"icon,omitempty"`
	// Data lists auxiliary files and folders embedded as opaque payloads.
	Data []DataFile `yaml:"data,omitempty"`
	// Mode is the build layout, ModeOneFile when empty.
	Mode Mode `yaml:"mode,omitempty"`
	// Windowed suppresses the console window of the produced executable.
	Windowed bool `yaml:"windowed"`
	// Clean removes prior artifacts and tool caches before building.
	Clean bool `yaml:"clean"`
	// HiddenImports names modules the tool cannot discover by itself.
	HiddenImports []string `yaml:"hidden_imports,omitempty"`
	// ExtraArgs is appended to the tool command line after shell-style splitting.
	ExtraArgs string `yaml:"extra_args,omitempty"`
}

var (
	// ErrInvalidManifest marks structural problems found without touching the disk.
	ErrInvalidManifest = errors.New("invalid manifest")
	// ErrMissingInput marks an entry point, data source or icon that does not exist.
	ErrMissingInput = errors.New("missing input")
	// ErrInvalidIcon marks an icon whose contents do not match its format.
	ErrInvalidIcon = errors.New("invalid icon")
)

// EffectiveMode returns the configured mode, defaulting to ModeOneFile.
func (m *Manifest) EffectiveMode() Mode {
	if m.Mode == "" {
		return ModeOneFile
	}

	return m.Mode
}

// ArtifactName is the executable file name with the platform extension.
func (m *Manifest) ArtifactName() string {
	return m.Name + ExecutableExtension()
}

// Check validates fields that do not depend on the filesystem.
func (m *Manifest) Check() error {
	if m == nil {
		return fmt.Errorf("%w: manifest is not set", ErrInvalidManifest)
	}

	var errs []error

	if strings.TrimSpace(m.Entry) == "" {
		errs = append(errs, fmt.Errorf("%w: entry point is required", ErrInvalidManifest))
	}

	switch {
	case strings.TrimSpace(m.Name) == "":
		errs = append(errs, fmt.Errorf("%w: output name is required", ErrInvalidManifest))
	case strings.ContainsAny(m.Name, `/\`) || m.Name == "." || m.Name == "..":
		errs = append(errs, fmt.Errorf("%w: output name %q must be a plain file name", ErrInvalidManifest, m.Name))
	}

	switch m.Mode {
	case "", ModeOneFile, ModeOneDir:
	default:
		errs = append(errs, fmt.Errorf("%w: unknown mode %q", ErrInvalidManifest, m.Mode))
	}

	for i, data := range m.Data {
		if strings.TrimSpace(data.Source) == "" {
			errs = append(errs, fmt.Errorf("%w: data[%d] has no source", ErrInvalidManifest, i))
		}

		if err := checkDest(data.Dest); err != nil {
			errs = append(errs, fmt.Errorf("%w: data[%d]: %w", ErrInvalidManifest, i, err))
		}
	}

	if _, err := m.ExtraArguments(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// ExtraArguments splits ExtraArgs the way a POSIX shell would.
func (m *Manifest) ExtraArguments() ([]string, error) {
	if strings.TrimSpace(m.ExtraArgs) == "" {
		return nil, nil
	}

	args, err := shlex.Split(m.ExtraArgs)
	if err != nil {
		return nil, fmt.Errorf("%w: extra_args: %w", ErrInvalidManifest, err)
	}

	return args, nil
}

// Validate runs Check and then verifies every referenced path under root.
// All problems are reported together.
func (m *Manifest) Validate(root string) error {
	if err := m.Check(); err != nil {
		return err
	}

	var errs []error

	if err := requireFile(Resolve(root, m.Entry)); err != nil {
		errs = append(errs, fmt.Errorf("entry point: %w", err))
	}

	for _, data := range m.Data {
		if err := requireExists(Resolve(root, data.Source)); err != nil {
			errs = append(errs, fmt.Errorf("data source: %w", err))
		}
	}

	if m.Icon != "" {
		if err := checkIcon(Resolve(root, m.Icon)); err != nil {
			errs = append(errs, fmt.Errorf("icon: %w", err))
		}
	}

	return errors.Join(errs...)
}

// Resolve joins relative paths onto root and leaves absolute ones untouched.
func Resolve(root, p string) string {
	if filepath.IsAbs(p) || root == "" {
		return filepath.Clean(p)
	}

	return filepath.Join(root, p)
}

// ExecutableExtension returns ".exe" on Windows and "" elsewhere.
func ExecutableExtension() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}

	return ""
}

// checkDest rejects destinations that would land outside the bundle root.
func checkDest(dest string) error {
	if dest == "" || dest == "." {
		return nil
	}

	slashed := filepath.ToSlash(dest)
	if path.IsAbs(slashed) || filepath.IsAbs(dest) || filepath.VolumeName(dest) != "" {
		return fmt.Errorf("destination %q must be relative", dest)
	}

	cleaned := path.Clean(slashed)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("destination %q escapes the bundle root", dest)
	}

	return nil
}
