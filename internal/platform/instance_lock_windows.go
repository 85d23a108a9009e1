//go:build windows

package platform

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows"
)

type windowsInstanceLock struct {
	handle windows.Handle
}

// Windows has no flock, so the lock is a named mutex derived from the data
// directory path. Mutexes are per-session which is enough here: two sessions
// point at different user config dirs anyway.
func acquireInstanceLock(dataDir string) (InstanceLock, error) {
	namePtr, err := windows.UTF16PtrFromString(`Local\beacon-` + normalizeLockName(dataDir))
	if err != nil {
		return nil, fmt.Errorf("encode lock mutex name: %w", err)
	}

	handle, err := windows.CreateMutex(nil, false, namePtr)
	if errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}

		return nil, ErrDataDirInUse
	}
	if err != nil {
		if handle != 0 {
			_ = windows.CloseHandle(handle)
		}

		return nil, fmt.Errorf("create lock mutex: %w", err)
	}

	return &windowsInstanceLock{handle: handle}, nil
}

func (l *windowsInstanceLock) Release() error {
	if l == nil || l.handle == 0 {
		return nil
	}

	err := windows.CloseHandle(l.handle)
	l.handle = 0
	if err != nil {
		return fmt.Errorf("close lock mutex handle: %w", err)
	}

	return nil
}
