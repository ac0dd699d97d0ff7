package store

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
)

const (
	lockRetryInitialInterval = 5 * time.Millisecond
	lockRetryMaxInterval     = 100 * time.Millisecond
)

// errLockBusy marks a lock attempt that should be retried.
var errLockBusy = errors.New("lock busy")

// Guard is a held store lock. Release is safe to call more than once.
type Guard struct {
	store       *FileStore
	lockFile    *os.File
	releaseOnce sync.Once
}

// Lock takes the exclusive writer lock, waiting at most the configured lock
// timeout. Two layers are held: an in-process semaphore and, where supported,
// an advisory lock on a sibling ".lock" file so separate processes sharing the
// data file are serialized as well.
func (store *FileStore) Lock(ctx context.Context) (*Guard, error) {
	waitStarted := time.Now()
	lockContext, cancelLock := context.WithTimeout(ctx, store.lockTimeout)
	defer cancelLock()

	if acquireError := store.writers.Acquire(lockContext, 1); acquireError != nil {
		store.observer.LockTimedOut(time.Since(waitStarted))
		return nil, apperr.Wrap(apperr.CodeLockTimeout, "failed to acquire lock", acquireError)
	}

	lockFile, fileLockError := acquireFileLock(lockContext, store.lockPath)
	if fileLockError != nil {
		store.writers.Release(1)
		if lockContext.Err() != nil {
			store.observer.LockTimedOut(time.Since(waitStarted))
			return nil, apperr.Wrap(apperr.CodeLockTimeout, "failed to acquire lock", fileLockError)
		}
		return nil, apperr.Wrap(apperr.CodePersistence, "failed to acquire lock", fileLockError)
	}

	store.observer.LockAcquired(time.Since(waitStarted))
	return &Guard{store: store, lockFile: lockFile}, nil
}

func (guard *Guard) Release() {
	guard.releaseOnce.Do(func() {
		if guard.lockFile != nil {
			if unlockError := releaseFileLock(guard.lockFile); unlockError != nil {
				guard.store.logger.Warn("release file lock", "path", guard.store.lockPath, "error", unlockError)
			}
		}
		guard.store.writers.Release(1)
	})
}

// retryLock calls attempt until it succeeds, fails with something other than
// errLockBusy, or ctx is done.
func retryLock(ctx context.Context, attempt func() error) error {
	retryPolicy := backoff.NewExponentialBackOff()
	retryPolicy.InitialInterval = lockRetryInitialInterval
	retryPolicy.MaxInterval = lockRetryMaxInterval

	_, retryError := backoff.Retry(ctx, func() (struct{}, error) {
		attemptError := attempt()
		if attemptError == nil {
			return struct{}{}, nil
		}
		if errors.Is(attemptError, errLockBusy) {
			return struct{}{}, attemptError
		}
		return struct{}{}, backoff.Permanent(attemptError)
	}, backoff.WithBackOff(retryPolicy))
	if retryError != nil && ctx.Err() != nil {
		return errors.Join(ctx.Err(), retryError)
	}
	return retryError
}
