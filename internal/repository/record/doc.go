// Package record persists the last successful build.
//
// FileRepository stores a build.Record as YAML next to the intermediate build
// files and exposes a Repository interface the bundler depends on.
package record
