// Package version exposes build metadata for pyfreeze.
//
// Version, Commit and BuildTime are injected with -ldflags at release time.
// Short and Full render them for the `version` subcommand and for build records.
package version
