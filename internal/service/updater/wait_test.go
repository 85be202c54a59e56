package updater

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestWaitForExit_ReturnsWhenProcessIsGone polls until the fake process disappears.
func TestWaitForExit_ReturnsWhenProcessIsGone(t *testing.T) {
	t.Parallel()

	calls := 0
	alive := func(pid int) (bool, error) {
		require.Equal(t, 1234, pid)

		calls++

		return calls < 3, nil
	}

	require.NoError(t, waitForExit(context.Background(), 1234, 10*time.Second, alive))
	require.Equal(t, 3, calls)
}

// TestWaitForExit_TimesOut uses the test process itself, which never exits during the test.
func TestWaitForExit_TimesOut(t *testing.T) {
	t.Parallel()

	err := waitForExit(context.Background(), os.Getpid(), 300*time.Millisecond, processAlive)
	require.ErrorIs(t, err, errParentStillRunning)
}

// TestWaitForExit_Cancelled returns the context error rather than a timeout.
func TestWaitForExit_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := waitForExit(ctx, os.Getpid(), time.Minute, func(int) (bool, error) { return true, nil })
	require.ErrorIs(t, err, context.Canceled)
}

// TestWaitForExit_LookupError surfaces process table failures.
func TestWaitForExit_LookupError(t *testing.T) {
	t.Parallel()

	boom := errors.New("proc unavailable")

	err := waitForExit(context.Background(), 1, time.Second, func(int) (bool, error) { return false, boom })
	require.ErrorIs(t, err, boom)
}

// TestSleepContext covers the zero, elapsed and cancelled cases.
func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, sleepContext(context.Background(), 0))

	start := time.Now()
	require.NoError(t, sleepContext(context.Background(), 50*time.Millisecond))
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, sleepContext(ctx, time.Hour), context.Canceled)
}
