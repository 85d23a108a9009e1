//go:build unix && !windows

package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const lockFilename = "beacon.lock"

type unixInstanceLock struct {
	file *os.File
}

func acquireInstanceLock(dataDir string) (InstanceLock, error) {
	lockPath := filepath.Join(dataDir, lockFilename)

	// #nosec G304 -- lockPath lives inside the app-owned data directory.
	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}

	if err := syscall.Flock(int(file.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		_ = file.Close()
		if errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EAGAIN) {
			return nil, ErrDataDirInUse
		}

		return nil, fmt.Errorf("lock data directory: %w", err)
	}

	return &unixInstanceLock{file: file}, nil
}

// Release drops the flock. The kernel also releases it when the process dies,
// so a crashed instance never wedges the directory.
func (l *unixInstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}

	fd := int(l.file.Fd())
	unlockErr := syscall.Flock(fd, syscall.LOCK_UN)
	closeErr := l.file.Close()
	l.file = nil

	if unlockErr != nil && !errors.Is(unlockErr, syscall.EBADF) {
		return fmt.Errorf("unlock data directory: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close lock file: %w", closeErr)
	}

	return nil
}
