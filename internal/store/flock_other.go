//go:build !unix

package store

import (
	"context"
	"os"
)

// Without flock only the in-process semaphore serializes writers.
func acquireFileLock(ctx context.Context, lockPath string) (*os.File, error) {
	return nil, ctx.Err()
}

func releaseFileLock(lockFile *os.File) error {
	return lockFile.Close()
}
