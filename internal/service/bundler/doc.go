// Package bundler turns a build manifest into one run of the packaging tool.
//
// A build validates every input before anything runs, takes the build lock,
// optionally cleans prior output and invokes the tool into a private staging
// directory. Only after the tool succeeds is the staged artifact promoted
// into the dist directory, so a failed build never leaves a half-written
// executable behind. The finished build is recorded for `pyfreeze status`.
package bundler
