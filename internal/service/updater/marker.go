package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/oshokin/installer-updater/internal/logger"
)

// acquireMarker creates the run marker for a target.
// A fresh marker means another run owns the target; a stale one is replaced.
func acquireMarker(ctx context.Context, path string) (release func(), err error) {
	info, err := os.Stat(path)

	switch {
	case err == nil:
		if age := time.Since(info.ModTime()); age <= markerLifetime {
			return nil, fmt.Errorf("%s is %s old: %w", path, age.Round(time.Second), errUpdateInProgress)
		}

		logger.WarnKV(ctx, "The update marker is too old, removing it", "marker", path)

		if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale marker: %w", err)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read marker: %w", err)
	}

	marker, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, markerFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%s: %w", path, errUpdateInProgress)
		}

		return nil, fmt.Errorf("create marker: %w", err)
	}

	_, err = marker.WriteString(strconv.Itoa(os.Getpid()))
	if closeErr := marker.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write marker: %w", err)
	}

	return func() {
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			logger.WarnKV(ctx, "Could not remove the update marker", "marker", path, "error", removeErr)
		}
	}, nil
}
