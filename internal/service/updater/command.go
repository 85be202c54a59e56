package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/oshokin/installer-updater/internal/config"
	"github.com/oshokin/installer-updater/internal/logger"
	"github.com/oshokin/installer-updater/internal/service/common"
)

// Options are inputs accepted by the updater entry point.
type Options struct {
	// NewArtifactPath is the staged replacement.
	NewArtifactPath string
	// TargetPath is the live artifact to replace.
	TargetPath string
	// VersionLabel is carried into the logs only.
	VersionLabel string

	// ParentPID is the installer that started the updater; 0 when unknown.
	ParentPID int
	// QuiescenceWait is slept instead of watching ParentPID when it is 0.
	QuiescenceWait time.Duration
	// ParentWaitTimeout bounds the wait for ParentPID; 0 waits until ctx is done.
	ParentWaitTimeout time.Duration
	// MinArtifactSize rejects smaller artifacts.
	MinArtifactSize int64
	// SizeMismatch is config.SizeMismatchWarn or config.SizeMismatchFail.
	SizeMismatch string
	// LaunchCommand is prepended to the target when starting it, e.g. [java, -jar].
	LaunchCommand []string
	// SettleDelay is slept after the relaunch when ReadinessAddress is empty.
	SettleDelay time.Duration
	// ReadinessAddress is probed with the gRPC health service after the relaunch.
	ReadinessAddress string
	// ReadinessTimeout bounds the readiness probe.
	ReadinessTimeout time.Duration

	// Launcher starts the relaunched and restored artifacts; ProcessLauncher when nil.
	Launcher Launcher
}

// OptionsFromConfig fills the tunables of Options from cfg.
func OptionsFromConfig(cfg *config.Config, newArtifact, target, versionLabel string) *Options {
	return &Options{
		NewArtifactPath:   newArtifact,
		TargetPath:        target,
		VersionLabel:      versionLabel,
		QuiescenceWait:    cfg.QuiescenceWait,
		ParentWaitTimeout: cfg.ParentWaitTimeout,
		MinArtifactSize:   cfg.MinArtifactSize,
		SizeMismatch:      cfg.SizeMismatch,
		LaunchCommand:     cfg.LaunchCommand,
		SettleDelay:       cfg.SettleDelay,
		ReadinessAddress:  cfg.ReadinessAddress,
		ReadinessTimeout:  cfg.ReadinessTimeout,
	}
}

// runner holds the state of a single update run.
type runner struct {
	opts *Options

	newArtifact string // Absolute path of the staged artifact.
	target      string // Absolute path of the live artifact.
	backup      string // BackupPath(target).
	newSize     int64  // Size of the staged artifact, captured before install.
	stage       Stage  // Stage currently executing.

	launcher Launcher
	rename   renameFunc
	alive    processAliveFunc
}

// Run performs one update and is the public entry point for the CLI.
// Every returned error is a *StepError; errors.Is(err, ErrRollbackFailed)
// reports that the target could not be restored.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "installer-updater")

	u, err := newRunner(opts)
	if err != nil {
		logger.ErrorKV(ctx, "Invalid update request", "error", err)
		return err
	}

	return u.run(ctx)
}

// newRunner resolves paths and fills defaults.
func newRunner(opts *Options) (*runner, error) {
	if opts == nil {
		return nil, NewStepError(StageUsage, errMissingArgument)
	}

	for name, value := range map[string]string{
		"new artifact path": opts.NewArtifactPath,
		"target path":       opts.TargetPath,
	} {
		if strings.TrimSpace(value) == "" {
			return nil, NewStepError(StageUsage, fmt.Errorf("%s: %w", name, errMissingArgument))
		}
	}

	newArtifact, err := filepath.Abs(opts.NewArtifactPath)
	if err != nil {
		return nil, NewStepError(StageUsage, err)
	}

	target, err := filepath.Abs(opts.TargetPath)
	if err != nil {
		return nil, NewStepError(StageUsage, err)
	}

	u := &runner{
		opts:        opts,
		newArtifact: newArtifact,
		target:      target,
		backup:      BackupPath(target),
		launcher:    opts.Launcher,
		rename:      os.Rename,
		alive:       processAlive,
	}

	if u.launcher == nil {
		u.launcher = ProcessLauncher{}
	}

	return u, nil
}

// run executes the update:
// 1) Wait for the installer to let go of the target.
// 2) Check the staged artifact.
// 3) Back up, install, verify and relaunch, rolling back on failure.
// 4) Let the new process settle and remove the backup.
func (u *runner) run(ctx context.Context) error {
	ctx = logger.WithKV(ctx, "target", u.target)

	u.logRequest(ctx)

	release, err := acquireMarker(ctx, MarkerPath(u.target))
	if err != nil {
		logger.ErrorKV(ctx, "Update refused", "error", err)
		return NewStepError(StagePrecondition, err)
	}

	defer release()

	if err = u.awaitQuiescence(ctx); err != nil {
		logger.ErrorKV(ctx, "Update aborted before touching the target", "error", err)
		return err
	}

	if err = u.checkArtifact(ctx); err != nil {
		logger.ErrorKV(ctx, "Update aborted before touching the target", "error", err)
		return err
	}

	process, err := u.swap(ctx)
	if err != nil {
		stage, _ := StageOf(err)
		logger.ErrorKV(ctx, "Update failed", "stage", stage, "error", err)

		return u.rollback(ctx, err)
	}

	u.settle(ctx, process)

	if err = u.cleanup(ctx); err != nil {
		logger.ErrorKV(ctx, "Update installed but the backup could not be removed", "error", err)
		return err
	}

	logger.InfoKV(ctx, "Update completed successfully", "version", u.opts.VersionLabel)

	return nil
}

// logRequest writes the audit line of the run.
func (u *runner) logRequest(ctx context.Context) {
	kvs := []any{
		"artifact", u.newArtifact,
		"version", u.opts.VersionLabel,
	}

	if actor, err := common.DetectActor(); err == nil {
		kvs = append(kvs, "host", actor.Hostname, "user", actor.Username)
	} else {
		logger.Debug(ctx, "Could not detect the current user: ", err)
	}

	logger.InfoKV(ctx, "Update requested", kvs...)
}

// awaitQuiescence waits for the parent to exit, or sleeps when its PID is unknown.
func (u *runner) awaitQuiescence(ctx context.Context) error {
	u.stage = StageQuiescence

	if u.opts.ParentPID > 0 {
		logger.InfoKV(ctx, "Waiting for the installer to exit",
			"pid", u.opts.ParentPID, "timeout", u.opts.ParentWaitTimeout)

		if err := waitForExit(ctx, u.opts.ParentPID, u.opts.ParentWaitTimeout, u.alive); err != nil {
			return NewStepError(StageQuiescence, err)
		}

		return nil
	}

	logger.InfoKV(ctx, "Waiting for the installer to close", "delay", u.opts.QuiescenceWait)

	return NewStepError(StageQuiescence, sleepContext(ctx, u.opts.QuiescenceWait))
}

// checkArtifact verifies that the staged artifact exists and is large enough.
func (u *runner) checkArtifact(ctx context.Context) error {
	u.stage = StagePrecondition

	info, err := os.Stat(u.newArtifact)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewStepError(StagePrecondition, fmt.Errorf("%s: %w", u.newArtifact, errArtifactMissing))
		}

		return NewStepError(StagePrecondition, err)
	}

	if !info.Mode().IsRegular() {
		return NewStepError(StagePrecondition, fmt.Errorf("%s: %w", u.newArtifact, errArtifactNotRegular))
	}

	u.newSize = info.Size()
	logger.InfoKV(ctx, "New artifact found", "size", u.newSize)

	if u.newSize < u.opts.MinArtifactSize {
		return NewStepError(StagePrecondition, fmt.Errorf("%d bytes, expected at least %d: %w",
			u.newSize, u.opts.MinArtifactSize, errArtifactTooSmall))
	}

	return nil
}

// swap runs the mutating steps. Panics are turned into errors of the current
// stage so that they still reach the rollback.
func (u *runner) swap(ctx context.Context) (process *Process, err error) {
	defer func() {
		if p := recover(); p != nil {
			process = nil
			err = NewStepError(u.stage, fmt.Errorf("%w: %v", errUnexpected, p))
		}
	}()

	if err = u.backupTarget(ctx); err != nil {
		return nil, err
	}

	if err = u.install(ctx); err != nil {
		return nil, err
	}

	if err = u.verify(ctx); err != nil {
		return nil, err
	}

	return u.relaunch(ctx)
}

// backupTarget moves the current target aside, if there is one.
func (u *runner) backupTarget(ctx context.Context) error {
	u.stage = StageBackup

	if _, err := os.Lstat(u.target); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info(ctx, "No existing artifact at the target, nothing to back up")
			return nil
		}

		return NewStepError(StageBackup, err)
	}

	if _, err := os.Lstat(u.backup); err == nil {
		logger.WarnKV(ctx, "Replacing a stale backup", "backup", u.backup)
	}

	if err := u.rename(u.target, u.backup); err != nil {
		return NewStepError(StageBackup, err)
	}

	logger.InfoKV(ctx, "Backup created", "backup", u.backup)

	return nil
}

// install moves the staged artifact to the target.
func (u *runner) install(ctx context.Context) error {
	u.stage = StageInstall

	logger.Info(ctx, "Moving the new version to the target location")

	if err := moveIntoPlace(ctx, u.rename, u.newArtifact, u.target); err != nil {
		return NewStepError(StageInstall, err)
	}

	return nil
}

// verify checks that the target exists and compares its size with the staged artifact.
func (u *runner) verify(ctx context.Context) error {
	u.stage = StageVerify

	info, err := os.Stat(u.target)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewStepError(StageVerify, errTargetMissing)
		}

		return NewStepError(StageVerify, err)
	}

	if size := info.Size(); size != u.newSize {
		if u.opts.SizeMismatch == config.SizeMismatchFail {
			return NewStepError(StageVerify, fmt.Errorf("expected %d bytes, got %d: %w", u.newSize, size, errSizeMismatch))
		}

		logger.WarnKV(ctx, "File sizes do not match", "expected", u.newSize, "actual", size)

		return nil
	}

	logger.InfoKV(ctx, "File sizes match", "size", info.Size())

	return nil
}

// relaunch starts the installed target.
func (u *runner) relaunch(ctx context.Context) (*Process, error) {
	u.stage = StageRelaunch

	process, err := u.launch(ctx)
	if err != nil {
		return nil, NewStepError(StageRelaunch, err)
	}

	if process == nil {
		return nil, NewStepError(StageRelaunch, errNoProcess)
	}

	logger.InfoKV(ctx, "New version started", "pid", process.PID)

	return process, nil
}

// launch starts whatever is at the target, detached, from the target's directory.
func (u *runner) launch(ctx context.Context) (*Process, error) {
	command := make([]string, 0, len(u.opts.LaunchCommand)+1)
	command = append(command, u.opts.LaunchCommand...)
	command = append(command, u.target)

	return u.launcher.Launch(ctx, LaunchSpec{
		Command: command,
		Dir:     filepath.Dir(u.target),
	})
}

// settle gives the relaunched process time to start before the backup goes away.
func (u *runner) settle(ctx context.Context, process *Process) {
	if u.opts.ReadinessAddress == "" {
		if err := sleepContext(ctx, u.opts.SettleDelay); err != nil {
			logger.WarnKV(ctx, "Settle delay interrupted", "error", err)
		}

		return
	}

	probeCtx, cancel := context.WithTimeout(ctx, u.opts.ReadinessTimeout)
	defer cancel()

	client, err := common.Dial(probeCtx, u.opts.ReadinessAddress, common.WithCallTimeout(u.opts.ReadinessTimeout))
	if err != nil {
		logger.WarnKV(ctx, "Readiness probe unavailable", "address", u.opts.ReadinessAddress, "error", err)
		return
	}

	defer func() {
		_ = client.Close()
	}()

	if err = client.WaitServing(probeCtx, "", readinessPollInterval); err != nil {
		logger.WarnKV(ctx, "New version did not report readiness",
			"address", u.opts.ReadinessAddress, "pid", process.PID, "error", err)

		return
	}

	logger.InfoKV(ctx, "New version is ready", "address", u.opts.ReadinessAddress, "pid", process.PID)
}

// cleanup removes the backup after a successful update.
func (u *runner) cleanup(ctx context.Context) error {
	u.stage = StageCleanup

	if _, err := os.Lstat(u.backup); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return NewStepError(StageCleanup, err)
	}

	logger.InfoKV(ctx, "Cleaning up the backup", "backup", u.backup)

	if err := os.Remove(u.backup); err != nil {
		return NewStepError(StageCleanup, err)
	}

	return nil
}

// rollback restores the backup after a failed step and starts the restored artifact.
// The returned error always carries cause; a failed restore adds ErrRollbackFailed.
func (u *runner) rollback(ctx context.Context, cause error) error {
	if stage, _ := StageOf(cause); !stage.mutates() {
		return cause
	}

	if _, err := os.Lstat(u.backup); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "No backup to restore")
			return cause
		}

		return u.criticalRollback(ctx, cause, err)
	}

	logger.InfoKV(ctx, "Attempting to restore the backup", "backup", u.backup)

	if err := u.rename(u.backup, u.target); err != nil {
		return u.criticalRollback(ctx, cause, err)
	}

	logger.Info(ctx, "Backup restored, starting the original version")

	// A signal that interrupted the update must not keep the original down.
	process, err := u.launch(context.WithoutCancel(ctx))
	if err != nil {
		logger.WarnKV(ctx, "Could not start the original version", "error", err)
		return cause
	}

	if process == nil {
		logger.WarnKV(ctx, "Could not start the original version", "error", errNoProcess)
		return cause
	}

	logger.InfoKV(ctx, "Original version started", "pid", process.PID)

	return cause
}

// criticalRollback reports a restore failure; the target is left in an undefined state.
func (u *runner) criticalRollback(ctx context.Context, cause, err error) error {
	logger.ErrorKV(ctx, "CRITICAL: failed to restore the backup, manual recovery required",
		"severity", "critical", "backup", u.backup, "error", err)

	return multierr.Append(cause, NewStepError(StageRollback, fmt.Errorf("%w: %w", ErrRollbackFailed, err)))
}
