//go:build !windows

package updater

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestProcessLauncher_Launch starts a script detached and checks its working directory.
func TestProcessLauncher_Launch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	script := filepath.Join(dir, "app.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\npwd -P > started.txt\n"), 0o755))

	process, err := ProcessLauncher{}.Launch(context.Background(), LaunchSpec{
		Command: []string{script},
		Dir:     dir,
	})
	require.NoError(t, err)
	require.Positive(t, process.PID)
	require.Equal(t, []string{script}, process.Command)

	wantDir, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)

	marker := filepath.Join(dir, "started.txt")
	require.Eventually(t, func() bool {
		data, readErr := os.ReadFile(marker)
		return readErr == nil && strings.TrimSpace(string(data)) == wantDir
	}, 5*time.Second, 20*time.Millisecond)
}

// TestProcessLauncher_Errors covers an empty command, a missing binary and a cancelled context.
func TestProcessLauncher_Errors(t *testing.T) {
	t.Parallel()

	_, err := ProcessLauncher{}.Launch(context.Background(), LaunchSpec{})
	require.ErrorIs(t, err, errEmptyCommand)

	_, err = ProcessLauncher{}.Launch(context.Background(), LaunchSpec{
		Command: []string{filepath.Join(t.TempDir(), "missing")},
	})
	require.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = ProcessLauncher{}.Launch(ctx, LaunchSpec{Command: []string{"/bin/true"}})
	require.ErrorIs(t, err, context.Canceled)
}
