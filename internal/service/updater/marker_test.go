package updater

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestAcquireMarker refuses a second run while the first one holds the marker.
func TestAcquireMarker(t *testing.T) {
	t.Parallel()

	path := MarkerPath(filepath.Join(t.TempDir(), "app.jar"))

	release, err := acquireMarker(context.Background(), path)
	require.NoError(t, err)

	_, err = acquireMarker(context.Background(), path)
	require.ErrorIs(t, err, errUpdateInProgress)

	release()
	requireMissing(t, path)

	release, err = acquireMarker(context.Background(), path)
	require.NoError(t, err)
	release()
}

// TestAcquireMarker_Stale replaces a marker older than its lifetime.
func TestAcquireMarker_Stale(t *testing.T) {
	t.Parallel()

	path := MarkerPath(filepath.Join(t.TempDir(), "app.jar"))
	require.NoError(t, os.WriteFile(path, []byte("1"), 0o600))

	old := time.Now().Add(-2 * markerLifetime)
	require.NoError(t, os.Chtimes(path, old, old))

	release, err := acquireMarker(context.Background(), path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now(), info.ModTime(), time.Minute)

	release()
}
