package version

import "fmt"

var (
	// Version is the release of the updater binary itself, not of the artifact it installs.
	Version = "0.1.0"
	// Commit is the short git SHA of the build.
	Commit = "none"
	// BuildTime is the UTC build timestamp.
	BuildTime = "unknown"
)

// Short returns the bare semantic version.
func Short() string {
	return Version
}

// Full returns version, commit and build time on one line.
func Full() string {
	return fmt.Sprintf("installer-updater %s (commit %s, built %s)", Version, Commit, BuildTime)
}
