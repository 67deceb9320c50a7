// Package storage mirrors the capture bucket into the local data folder.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/formcheck/formcheck/internal/fsutil"
	"github.com/formcheck/formcheck/internal/monitoring"
	"github.com/formcheck/formcheck/internal/security"
)

// Object is one listed bucket entry.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStore is the read side of an object store.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]Object, error)
	Get(ctx context.Context, key string, w io.Writer) error
}

// SyncResult lists what a sync pass fetched.
type SyncResult struct {
	Downloaded []string // local paths
	Skipped    int
	Failed     int
}

// NewData reports whether anything was downloaded.
func (r SyncResult) NewData() bool { return len(r.Downloaded) > 0 }

// LocalPath maps an object key under dir, rejecting folder markers and keys
// that would escape it.
func LocalPath(dir, key string) (string, error) {
	if key == "" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("key %q is not a file", key)
	}
	return security.JoinWithin(dir, key)
}

// Sync downloads every object under prefix that is missing from dir. A
// failed object is logged and left for the next pass; only a listing
// failure aborts.
func Sync(ctx context.Context, store ObjectStore, prefix string, fsys fsutil.FileSystem, dir string) (SyncResult, error) {
	var res SyncResult
	objects, err := store.List(ctx, prefix)
	if err != nil {
		return res, fmt.Errorf("list objects: %w", err)
	}

	for _, obj := range objects {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		local, err := LocalPath(dir, obj.Key)
		if err != nil {
			if errors.Is(err, security.ErrTraversal) {
				monitoring.Warnf("skipping object: %v", err)
			}
			continue
		}
		if fsys.Exists(local) {
			res.Skipped++
			continue
		}
		if err := download(ctx, store, obj.Key, fsys, local); err != nil {
			monitoring.Warnf("object %s: %v", obj.Key, err)
			res.Failed++
			continue
		}
		monitoring.Debugf("downloaded %s", obj.Key)
		res.Downloaded = append(res.Downloaded, local)
	}
	if res.NewData() {
		monitoring.Logf("fetched %d new objects from storage", len(res.Downloaded))
	}
	return res, nil
}

func download(ctx context.Context, store ObjectStore, key string, fsys fsutil.FileSystem, local string) error {
	if err := fsys.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return fmt.Errorf("create folder: %w", err)
	}
	f, err := fsys.Create(local)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	if err := store.Get(ctx, key, f); err != nil {
		f.Close()
		_ = fsys.Remove(local)
		return err
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(local)
		return fmt.Errorf("close file: %w", err)
	}
	return nil
}
