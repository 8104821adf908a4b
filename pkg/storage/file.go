package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
)

const (
	blobExt        = ".json"
	lockFileSuffix = ".lock"
	lockRetry      = 50 * time.Millisecond
)

// Files keeps one JSON file per key in a directory. Writes go through a
// temp file and rename, under an flock shared with other processes.
type Files struct {
	dir  string
	lock *flock.Flock
}

func OpenFiles(dir string) (*Files, error) {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create blob directory %s: %w", dir, err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Files{dir: abs, lock: flock.New(filepath.Join(abs, "quotes"+lockFileSuffix))}, nil
}

func (f *Files) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+blobExt)
}

func (f *Files) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	var (
		locked bool
		err    error
	)
	if exclusive {
		locked, err = f.lock.TryLockContext(ctx, lockRetry)
	} else {
		locked, err = f.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("lock %s: %w", f.lock.Path(), err)
	}
	if !locked {
		return fmt.Errorf("lock %s: not acquired", f.lock.Path())
	}
	defer f.lock.Unlock()
	return fn()
}

func (f *Files) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := f.withLock(ctx, false, func() error {
		b, err := os.ReadFile(f.path(key))
		if errors.Is(err, os.ErrNotExist) {
			return ErrNotFound
		}
		out = b
		return err
	})
	return out, err
}

func (f *Files) Put(ctx context.Context, key string, blob []byte) error {
	return f.withLock(ctx, true, func() error {
		tmp, err := os.CreateTemp(f.dir, ".blob-*")
		if err != nil {
			return err
		}
		if _, err := tmp.Write(blob); err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			return err
		}
		if err := tmp.Close(); err != nil {
			os.Remove(tmp.Name())
			return err
		}
		return os.Rename(tmp.Name(), f.path(key))
	})
}

func (f *Files) Delete(ctx context.Context, key string) error {
	return f.withLock(ctx, true, func() error {
		err := os.Remove(f.path(key))
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	})
}

func (f *Files) Keys(ctx context.Context) ([]string, error) {
	var keys []string
	err := f.withLock(ctx, false, func() error {
		entries, err := os.ReadDir(f.dir)
		if err != nil {
			return err
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, blobExt) || strings.HasPrefix(name, ".") {
				continue
			}
			key, err := url.PathUnescape(strings.TrimSuffix(name, blobExt))
			if err != nil {
				continue
			}
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)
	return keys, err
}

func (f *Files) Close() error {
	return f.lock.Close()
}
