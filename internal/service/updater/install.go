package updater

import (
	"context"
	"errors"
	"fmt"
	"os"

	goupdate "github.com/doitdistributed/go-update"

	"github.com/oshokin/installer-updater/internal/logger"
)

// renameFunc matches os.Rename.
type renameFunc func(oldpath, newpath string) error

// moveIntoPlace renames src to dst. When the two paths live on different
// filesystems the artifact is streamed into dst's directory by go-update,
// which finishes with a rename of its own, and src is removed afterwards.
func moveIntoPlace(ctx context.Context, rename renameFunc, src, dst string) error {
	err := rename(src, dst)
	if err == nil || !isCrossDevice(err) {
		return err
	}

	logger.InfoKV(ctx, "Artifact is on another filesystem, copying it next to the target",
		"artifact", src)

	if err = applyAcrossDevices(src, dst); err != nil {
		return fmt.Errorf("copy across filesystems: %w", err)
	}

	if err = os.Remove(src); err != nil {
		logger.WarnKV(ctx, "Could not remove the staged artifact", "artifact", src, "error", err)
	}

	return nil
}

// applyAcrossDevices writes src's bytes to dst through go-update.
func applyAcrossDevices(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	source, err := os.Open(src) //nolint:gosec // Path comes from the caller on purpose.
	if err != nil {
		return err
	}

	defer func() {
		_ = source.Close()
	}()

	// go-update moves the current target aside before swapping, so it needs one to exist.
	placeholder := false

	if _, err = os.Stat(dst); errors.Is(err, os.ErrNotExist) {
		var f *os.File

		f, err = os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
		if err != nil {
			return err
		}

		_ = f.Close()
		placeholder = true
	}

	options := goupdate.Options{
		TargetPath: dst,
		TargetMode: info.Mode().Perm(),
	}

	if err = goupdate.Apply(source, options); err != nil {
		if placeholder {
			_ = os.Remove(dst)
		}

		return err
	}

	return nil
}
