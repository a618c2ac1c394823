// Package common holds helpers shared by the toolchain and bundler services.
//
// It provides the Runner abstraction used to invoke external tools (with an
// exec-backed implementation that streams and captures output) and detects
// the current system actor (hostname/username) recorded with each build.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
