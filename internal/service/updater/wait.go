package updater

import (
	"context"
	"fmt"
	"time"

	"github.com/mitchellh/go-ps"
)

// processAliveFunc reports whether a process with pid exists.
type processAliveFunc func(pid int) (bool, error)

// processAlive looks pid up in the process table.
func processAlive(pid int) (bool, error) {
	process, err := ps.FindProcess(pid)
	if err != nil {
		return false, err
	}

	return process != nil, nil
}

// waitForExit polls until pid disappears, timeout elapses or ctx is done.
// A zero timeout waits until ctx is done.
func waitForExit(ctx context.Context, pid int, timeout time.Duration, alive processAliveFunc) error {
	waitCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	ticker := time.NewTicker(parentPollInterval)
	defer ticker.Stop()

	for {
		running, err := alive(pid)
		if err != nil {
			return fmt.Errorf("look up process %d: %w", pid, err)
		}

		if !running {
			return nil
		}

		select {
		case <-waitCtx.Done():
			if err = ctx.Err(); err != nil {
				return err
			}

			return fmt.Errorf("pid %d after %s: %w", pid, timeout, errParentStillRunning)
		case <-ticker.C:
		}
	}
}

// sleepContext pauses for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
