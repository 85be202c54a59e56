package updater

import (
	"time"
)

const (
	// backupSuffix is appended to the target path to name its backup.
	backupSuffix = ".backup"

	// markerSuffix is appended to the target path to name the run marker.
	markerSuffix = ".update-marker"

	// markerLifetime is the age after which a leftover marker is considered stale.
	markerLifetime = 10 * time.Minute

	// parentPollInterval is how often the process table is checked for the parent.
	parentPollInterval = 250 * time.Millisecond

	// readinessPollInterval is how often the relaunched artifact is probed.
	readinessPollInterval = 200 * time.Millisecond

	// markerFileMode is used for the run marker.
	markerFileMode = 0o600
)

// BackupPath returns where the current target is kept while it is being replaced.
func BackupPath(target string) string {
	return target + backupSuffix
}

// MarkerPath returns the file that marks a run in progress for target.
func MarkerPath(target string) string {
	return target + markerSuffix
}
