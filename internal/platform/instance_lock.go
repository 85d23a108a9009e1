package platform

import (
	"errors"
	"strings"
)

// ErrDataDirInUse indicates another process already holds the lock on the data directory.
var ErrDataDirInUse = errors.New("data directory already in use")

// ErrInstanceLockUnsupported indicates the current platform has no lock backend implementation.
var ErrInstanceLockUnsupported = errors.New("instance lock unsupported")

// InstanceLock keeps a data directory reserved for one process until released.
type InstanceLock interface {
	Release() error
}

// AcquireInstanceLock reserves dataDir for this process. A second process
// pointed at the same directory gets ErrDataDirInUse until the first one
// releases the lock or exits.
func AcquireInstanceLock(dataDir string) (InstanceLock, error) {
	dataDir = strings.TrimSpace(dataDir)
	if dataDir == "" {
		return nil, errors.New("empty data directory")
	}

	return acquireInstanceLock(dataDir)
}

func normalizeLockName(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	normalized := strings.Trim(b.String(), "_-.")
	if normalized == "" {
		return "beacon"
	}

	return normalized
}
