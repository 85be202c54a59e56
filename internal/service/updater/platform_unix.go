//go:build !windows

package updater

import (
	"errors"
	"syscall"
)

// detachedProcAttr starts the child in a new session so it survives the updater.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setsid: true,
	}
}

// isCrossDevice reports whether a rename failed because the paths are on different filesystems.
func isCrossDevice(err error) bool {
	return errors.Is(err, syscall.EXDEV)
}
