// Package toolchain makes sure the packaging tool is installed in the
// configured interpreter and satisfies the version constraint.
//
// EnsureTool only runs the installer when the installed version is missing
// or outside the constraint, so repeated calls are idempotent.
package toolchain
