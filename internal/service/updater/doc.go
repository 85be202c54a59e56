// Package updater swaps a live artifact for a freshly staged one.
//
// A run waits for the invoking installer to let go of the target, checks the
// staged artifact, moves the target aside to a backup, renames the new
// artifact into place, verifies it, and starts it detached. Any failure after
// the backup step renames the backup back and starts the restored artifact.
// Failures are reported as *StepError values tagged with the stage that failed.
package updater
