//go:build unix

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func acquireFileLock(ctx context.Context, lockPath string) (*os.File, error) {
	if mkdirError := os.MkdirAll(filepath.Dir(lockPath), dataDirMode); mkdirError != nil {
		return nil, fmt.Errorf("create lock dir: %w", mkdirError)
	}
	lockFile, openError := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, dataFileMode)
	if openError != nil {
		return nil, fmt.Errorf("open lock file: %w", openError)
	}

	lockError := retryLock(ctx, func() error {
		flockError := unix.Flock(int(lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if errors.Is(flockError, unix.EWOULDBLOCK) || errors.Is(flockError, unix.EINTR) {
			return errLockBusy
		}
		return flockError
	})
	if lockError != nil {
		_ = lockFile.Close()
		return nil, fmt.Errorf("flock %s: %w", lockPath, lockError)
	}
	return lockFile, nil
}

func releaseFileLock(lockFile *os.File) error {
	unlockError := unix.Flock(int(lockFile.Fd()), unix.LOCK_UN)
	closeError := lockFile.Close()
	return errors.Join(unlockError, closeError)
}
