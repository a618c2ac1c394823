// Package lock serializes builds that share a build directory.
//
// A marker file records the PID of the build holding it. A marker whose
// owner is no longer running is treated as stale and replaced. The package
// also reports whether an executable is currently running, which the bundler
// checks before replacing an artifact.
package lock
