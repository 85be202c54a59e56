package updater

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/installer-updater/internal/config"
)

// fakeLauncher records launches and fails the calls listed in failures.
type fakeLauncher struct {
	specs    []LaunchSpec
	failures map[int]error
}

func (f *fakeLauncher) Launch(_ context.Context, spec LaunchSpec) (*Process, error) {
	call := len(f.specs)
	f.specs = append(f.specs, spec)

	if err := f.failures[call]; err != nil {
		return nil, err
	}

	return &Process{PID: 4242 + call, Command: spec.Command}, nil
}

// writeArtifact creates a file of size bytes filled with fill and returns its content.
func writeArtifact(t *testing.T, path string, size int, fill byte) []byte {
	t.Helper()

	data := bytes.Repeat([]byte{fill}, size)
	require.NoError(t, os.WriteFile(path, data, 0o755))

	return data
}

// testOptions returns options without waits for files in dir.
func testOptions(dir string, launcher Launcher) *Options {
	return &Options{
		NewArtifactPath: filepath.Join(dir, "new.jar"),
		TargetPath:      filepath.Join(dir, "app", "app.jar"),
		VersionLabel:    "2.0.0",
		MinArtifactSize: config.DefaultMinArtifactSize,
		SizeMismatch:    config.SizeMismatchWarn,
		Launcher:        launcher,
	}
}

// requireMissing asserts that path does not exist.
func requireMissing(t *testing.T, path string) {
	t.Helper()

	_, err := os.Lstat(path)
	require.ErrorIs(t, err, os.ErrNotExist, path)
}

// requireContent asserts that path holds want.
func requireContent(t *testing.T, path string, want []byte) {
	t.Helper()

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.Equal(want, got), "%s: content differs (%d vs %d bytes)", path, len(want), len(got))
}
