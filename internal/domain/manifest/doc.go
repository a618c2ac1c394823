// Package manifest describes what pyfreeze bundles and how.
//
// A Manifest names the entry-point script, the data files embedded next to
// it, the icon and the output name, plus the build-mode flags. Check performs
// the structural validation done while loading configuration. Validate also
// touches the filesystem and runs right before the packaging tool is invoked.
package manifest
