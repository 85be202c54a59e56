package updater

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// LaunchSpec describes a process to start.
type LaunchSpec struct {
	// Command is the program followed by its arguments.
	Command []string
	// Dir is the working directory of the new process.
	Dir string
}

// Process identifies a started process. The updater never waits on it.
type Process struct {
	PID     int
	Command []string
}

// Launcher starts a process and detaches from it.
type Launcher interface {
	Launch(ctx context.Context, spec LaunchSpec) (*Process, error)
}

// ProcessLauncher starts processes in their own session or process group so
// they outlive the updater.
type ProcessLauncher struct{}

// Launch starts spec and releases the process handle immediately.
// ctx only guards the start; cancelling it later does not touch the child.
func (ProcessLauncher) Launch(ctx context.Context, spec LaunchSpec) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, errEmptyCommand
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	//nolint:gosec // The command is the artifact this tool was asked to install.
	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	cmd.Dir = spec.Dir
	cmd.Env = os.Environ()
	cmd.SysProcAttr = detachedProcAttr()

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Command[0], err)
	}

	process := &Process{
		PID:     cmd.Process.Pid,
		Command: spec.Command,
	}

	// The child keeps running; only our handle goes away.
	_ = cmd.Process.Release()

	return process, nil
}
