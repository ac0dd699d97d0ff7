// Package store persists the scores document as a single JSON file.
//
// Readers call Load without locking; Save replaces the file atomically so a
// reader sees either the old or the new document, never a partial one.
// Writers go through Update, which holds the exclusive lock across
// load, mutate and save.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/MarkoPoloResearchLab/escapeboard/internal/apperr"
	"github.com/MarkoPoloResearchLab/escapeboard/internal/scores"
)

const (
	DefaultLockTimeout = 5 * time.Second

	dataFileMode = 0o644
	dataDirMode  = 0o755
)

// LockObserver receives lock wait measurements.
type LockObserver interface {
	LockAcquired(wait time.Duration)
	LockTimedOut(wait time.Duration)
}

type noopObserver struct{}

func (noopObserver) LockAcquired(time.Duration) {}
func (noopObserver) LockTimedOut(time.Duration) {}

// Options tune a FileStore. Zero values pick defaults.
type Options struct {
	LockTimeout time.Duration
	Logger      *slog.Logger
	Observer    LockObserver
}

// FileStore owns one data file and its lock.
type FileStore struct {
	path        string
	lockPath    string
	lockTimeout time.Duration
	writers     *semaphore.Weighted
	logger      *slog.Logger
	observer    LockObserver
}

func New(path string, options Options) *FileStore {
	lockTimeout := options.LockTimeout
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var observer LockObserver = noopObserver{}
	if options.Observer != nil {
		observer = options.Observer
	}
	return &FileStore{
		path:        path,
		lockPath:    path + ".lock",
		lockTimeout: lockTimeout,
		writers:     semaphore.NewWeighted(1),
		logger:      logger,
		observer:    observer,
	}
}

// Path returns the data file location.
func (store *FileStore) Path() string {
	return store.path
}

// Load reads the document. A missing or unparsable file yields the default
// document; the file is never created here.
func (store *FileStore) Load() (scores.Document, error) {
	data, readError := os.ReadFile(store.path)
	if errors.Is(readError, fs.ErrNotExist) {
		return scores.NewDocument(), nil
	}
	if readError != nil {
		return scores.Document{}, apperr.Wrap(apperr.CodePersistence, "failed to load data", readError)
	}

	var document scores.Document
	if decodeError := json.Unmarshal(data, &document); decodeError != nil {
		store.logger.Warn("data file unreadable, using defaults", "path", store.path, "error", decodeError)
		return scores.NewDocument(), nil
	}
	document.Normalize()
	return document, nil
}

// Save replaces the data file with document via a temp file and rename.
func (store *FileStore) Save(document scores.Document) error {
	encoded, encodeError := json.Marshal(document)
	if encodeError != nil {
		return apperr.Wrap(apperr.CodePersistence, "failed to save data", fmt.Errorf("encode document: %w", encodeError))
	}
	encoded = append(encoded, '\n')

	if writeError := writeFileAtomic(store.path, encoded); writeError != nil {
		return apperr.Wrap(apperr.CodePersistence, "failed to save data", writeError)
	}
	return nil
}

// Update runs mutate on a freshly loaded document while holding the exclusive
// lock and saves the result when mutate returns nil. The lock is released on
// every path.
func (store *FileStore) Update(ctx context.Context, mutate func(document *scores.Document) error) error {
	guard, lockError := store.Lock(ctx)
	if lockError != nil {
		return lockError
	}
	defer guard.Release()

	document, loadError := store.Load()
	if loadError != nil {
		return loadError
	}
	if mutateError := mutate(&document); mutateError != nil {
		return mutateError
	}
	return store.Save(document)
}

func writeFileAtomic(path string, data []byte) error {
	directory := filepath.Dir(path)
	if mkdirError := os.MkdirAll(directory, dataDirMode); mkdirError != nil {
		return fmt.Errorf("create data dir: %w", mkdirError)
	}

	tempFile, createError := os.CreateTemp(directory, filepath.Base(path)+".*.tmp")
	if createError != nil {
		return fmt.Errorf("create temp file: %w", createError)
	}
	tempPath := tempFile.Name()
	renamed := false
	defer func() {
		if !renamed {
			_ = os.Remove(tempPath)
		}
	}()

	if _, writeError := tempFile.Write(data); writeError != nil {
		_ = tempFile.Close()
		return fmt.Errorf("write temp file: %w", writeError)
	}
	if syncError := tempFile.Sync(); syncError != nil {
		_ = tempFile.Close()
		return fmt.Errorf("sync temp file: %w", syncError)
	}
	if closeError := tempFile.Close(); closeError != nil {
		return fmt.Errorf("close temp file: %w", closeError)
	}
	if chmodError := os.Chmod(tempPath, dataFileMode); chmodError != nil {
		return fmt.Errorf("chmod temp file: %w", chmodError)
	}
	if renameError := os.Rename(tempPath, path); renameError != nil {
		return fmt.Errorf("replace data file: %w", renameError)
	}
	renamed = true
	syncDirectory(directory)
	return nil
}

// syncDirectory makes the rename durable where the platform allows it.
func syncDirectory(directory string) {
	directoryHandle, openError := os.Open(directory)
	if openError != nil {
		return
	}
	_ = directoryHandle.Sync()
	_ = directoryHandle.Close()
}
