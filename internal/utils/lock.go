package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
	lockRetryDelay = 200 * time.Millisecond
)

// DBLock serializes CLI access to one data file across processes. Writers
// take it exclusively, readers shared.
type DBLock struct {
	lock *flock.Flock
	path string
}

// NewDBLock creates a lock next to the given data path.
func NewDBLock(dbPath string) (*DBLock, error) {
	absPath, err := GetAbsDBPath(dbPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute db path: %w", err)
	}
	lockPath := absPath + lockFileSuffix
	return &DBLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Lock takes the exclusive lock, waiting until ctx is done.
func (l *DBLock) Lock(ctx context.Context) error {
	return l.acquire(ctx, true)
}

// RLock takes a shared lock, waiting until ctx is done.
func (l *DBLock) RLock(ctx context.Context) error {
	return l.acquire(ctx, false)
}

func (l *DBLock) acquire(ctx context.Context, exclusive bool) error {
	try := l.lock.TryRLock
	if exclusive {
		try = l.lock.TryLock
	}
	locked, err := try()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	if locked {
		return nil
	}

	Log.Warnf("Another quotebuilder process is using %s, waiting for it to finish...", l.path)
	if exclusive {
		locked, err = l.lock.TryLockContext(ctx, lockRetryDelay)
	} else {
		locked, err = l.lock.TryRLockContext(ctx, lockRetryDelay)
	}
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
	}
	if !locked {
		return fmt.Errorf("lock on %s not acquired", l.path)
	}
	return nil
}

// Unlock releases the lock.
func (l *DBLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}

// With runs fn while holding the lock.
func (l *DBLock) With(ctx context.Context, exclusive bool, fn func() error) error {
	if err := l.acquire(ctx, exclusive); err != nil {
		return err
	}
	defer func() {
		if err := l.Unlock(); err != nil {
			Log.Warnf("Releasing lock: %v", err)
		}
	}()
	return fn()
}

// GetAbsDBPath resolves a data path, defaulting to quotes.sqlite in DataDir.
func GetAbsDBPath(dbPath string) (string, error) {
	if dbPath == "" {
		dir, err := DataDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(dir, "quotes.sqlite"), nil
	}
	return filepath.Abs(dbPath)
}
