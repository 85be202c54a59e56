//go:build windows

package updater

import (
	"errors"
	"syscall"

	"golang.org/x/sys/windows"
)

// detachedProcAttr starts the child without a console in its own process group.
func detachedProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS,
	}
}

// isCrossDevice reports whether a rename failed because the paths are on different volumes.
func isCrossDevice(err error) bool {
	return errors.Is(err, windows.ERROR_NOT_SAME_DEVICE)
}
