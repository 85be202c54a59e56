package updater

import (
	"errors"
	"fmt"
)

// Stage names the step of an update run that failed.
type Stage string

// Stages of an update run, in execution order.
const (
	StageUsage        Stage = "usage"
	StagePrecondition Stage = "precondition"
	StageQuiescence   Stage = "quiescence"
	StageBackup       Stage = "backup"
	StageInstall      Stage = "install"
	StageVerify       Stage = "verify"
	StageRelaunch     Stage = "relaunch"
	StageCleanup      Stage = "cleanup"
	StageRollback     Stage = "rollback"
)

var (
	// ErrRollbackFailed marks a run whose backup could not be restored.
	// The target is left absent or in an undefined state.
	ErrRollbackFailed = errors.New("rollback failed")

	errArtifactMissing    = errors.New("new artifact not found")
	errArtifactNotRegular = errors.New("new artifact is not a regular file")
	errArtifactTooSmall   = errors.New("new artifact seems too small, might be corrupted")
	errTargetMissing      = errors.New("target does not exist after install")
	errSizeMismatch       = errors.New("installed size does not match the new artifact")
	errUpdateInProgress   = errors.New("another update of this target is in progress")
	errParentStillRunning = errors.New("parent process is still running")
	errEmptyCommand       = errors.New("launch command is empty")
	errNoProcess          = errors.New("launcher reported no process")
	errMissingArgument    = errors.New("required argument is empty")
	errUnexpected         = errors.New("unexpected failure")
)

// StepError tags an error with the stage that produced it.
type StepError struct {
	Stage Stage
	Err   error
}

// NewStepError wraps err with stage. A nil err yields nil.
func NewStepError(stage Stage, err error) error {
	if err == nil {
		return nil
	}

	return &StepError{Stage: stage, Err: err}
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StageOf returns the stage of the first StepError in err's chain.
func StageOf(err error) (Stage, bool) {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return stepErr.Stage, true
	}

	return "", false
}

// mutates reports whether a failure at stage happened after the target may have been touched.
func (s Stage) mutates() bool {
	switch s {
	case StageBackup, StageInstall, StageVerify, StageRelaunch:
		return true
	default:
		return false
	}
}
