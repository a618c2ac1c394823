// Package config defines the pyfreeze settings file and provides helpers to
// load, validate and save it in YAML format.
//
// Config groups the toolchain location (virtual environment, packaging tool,
// version constraint, timeouts), the build paths and the build manifest.
// PYFREEZE_* environment variables override the file after loading.
package config
