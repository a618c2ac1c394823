// Package build holds the types shared by the toolchain and bundler
// services: the failure taxonomy with its exit-code mapping, and the Record
// describing a finished build.
package build
