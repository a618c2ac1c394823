package build

import "time"

// Actor identifies who ran a build.
type Actor struct {
	// Hostname is the machine the build ran on.
	Hostname string `yaml:"hostname"`
	// Username is the system user who ran the build.
	Username string `yaml:"username"`
}

// Record describes a finished build.
type Record struct {
	// ID is the UUID assigned to the build invocation.
	ID string `yaml:"id"`
	// Name is the manifest output name.
	Name string `yaml:"name"`
	// Artifact is the absolute path of the produced executable.
	Artifact string `yaml:"artifact"`
	// Size is the artifact size in bytes.
	Size int64 `yaml:"size"`
	// Checksum is the base64-encoded SHA-512 of the artifact.
	Checksum string `yaml:"checksum"`
	// ToolVersion is the packaging tool version, if known.
	ToolVersion string `yaml:"tool_version,omitempty"`
	// StartedAt is when the build started.
	StartedAt time.Time `yaml:"started_at"`
	// Duration is the wall time of the build.
	Duration time.Duration `yaml:"duration"`
	// Actor is who ran the build.
	Actor *Actor `yaml:"actor,omitempty"`
}
