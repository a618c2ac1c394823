package bundler

import (
	"os"

	"github.com/oshokin/pyfreeze/internal/domain/manifest"
)

// dataSeparator joins source and destination in --add-data, ";" on Windows and ":" elsewhere.
var dataSeparator = string(os.PathListSeparator)

// toolArgs translates the manifest into the packaging tool's command line.
// Inputs are passed as absolute paths so the tool's own cwd does not matter.
func toolArgs(m *manifest.Manifest, dirs *layout, stage string, clean bool) ([]string, error) {
	args := []string{"--noconfirm"}

	if clean {
		args = append(args, "--clean")
	}

	if m.EffectiveMode() == manifest.ModeOneDir {
		args = append(args, "--onedir")
	} else {
		args = append(args, "--onefile")
	}

	if m.Windowed {
		args = append(args, "--windowed")
	} else {
		args = append(args, "--console")
	}

	args = append(args, "--name", m.Name)

	if m.Icon != "" {
		args = append(args, "--icon", manifest.Resolve(dirs.root, m.Icon))
	}

	for _, data := range m.Data {
		dest := data.Dest
		if dest == "" {
			dest = "."
		}

		args = append(args, "--add-data", manifest.Resolve(dirs.root, data.Source)+dataSeparator+dest)
	}

	for _, module := range m.HiddenImports {
		args = append(args, "--hidden-import", module)
	}

	args = append(args,
		"--distpath", stage,
		"--workpath", dirs.work,
		"--specpath", dirs.work,
	)

	extra, err := m.ExtraArguments()
	if err != nil {
		return nil, err
	}

	args = append(args, extra...)

	return append(args, manifest.Resolve(dirs.root, m.Entry)), nil
}
