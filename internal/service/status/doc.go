// Package status reports the last successful build recorded in the build directory.
package status
