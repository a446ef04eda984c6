// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"github.com/kraklabs/lazyjson/pkg/codec"
)

// FileBackendName is the configuration name of the file backend.
const FileBackendName = "file"

const (
	docExt      = ".json"
	shardDepth  = 5
	filePerm    = 0o644
	dirPerm     = 0o755
	tempPattern = ".lazyjson-*.tmp"
)

// DefaultExcludedRootFiles are root-level JSON files that are not part of
// the catch-all hashmap.
var DefaultExcludedRootFiles = []string{"ranked_hubs_authorities.json", "all_feedstocks.json"}

// FileBackend stores each document as a JSON file below a root directory.
// Hashmap documents live under <hashmap>/<s0>/<s1>/<s2>/<s3>/<s4>/<key>.json
// where s0..s4 are the leading hex characters of the SHA-1 of "<key>.json".
// Catch-all documents live flat at the root.
//
// Transaction and Snapshot are no-ops.
type FileBackend struct {
	fs       afero.Fs
	root     string
	locks    *LockSet
	remover  Remover
	excluded map[string]struct{}
	workers  int
	logger   *slog.Logger
}

// FileOption configures a FileBackend.
type FileOption func(*FileBackend)

// WithFs sets the filesystem. Defaults to the OS filesystem.
func WithFs(fsys afero.Fs) FileOption {
	return func(b *FileBackend) { b.fs = fsys }
}

// WithLocks sets the lock set taken around deletes.
func WithLocks(l *LockSet) FileOption {
	return func(b *FileBackend) { b.locks = l }
}

// WithRemover sets the version-control remover used by Delete.
func WithRemover(r Remover) FileOption {
	return func(b *FileBackend) { b.remover = r }
}

// WithExcludedRootFiles replaces the root files hidden from the catch-all.
func WithExcludedRootFiles(names ...string) FileOption {
	return func(b *FileBackend) {
		b.excluded = make(map[string]struct{}, len(names))
		for _, n := range names {
			b.excluded[n] = struct{}{}
		}
	}
}

// WithHashWorkers bounds the goroutines used by GetAll.
func WithHashWorkers(n int) FileOption {
	return func(b *FileBackend) { b.workers = n }
}

// WithFileLogger sets the logger.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(b *FileBackend) { b.logger = l }
}

// NewFileBackend returns a file backend rooted at root.
func NewFileBackend(root string, opts ...FileOption) *FileBackend {
	b := &FileBackend{root: root}
	WithExcludedRootFiles(DefaultExcludedRootFiles...)(b)
	for _, opt := range opts {
		opt(b)
	}
	if b.fs == nil {
		b.fs = afero.NewOsFs()
	}
	if b.locks == nil {
		b.locks = DefaultLocks()
	}
	if b.remover == nil {
		if _, onDisk := b.fs.(*afero.OsFs); onDisk {
			b.remover = GitRemover{}
		} else {
			b.remover = NopRemover{}
		}
	}
	if b.workers <= 0 {
		b.workers = runtime.GOMAXPROCS(0)
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	return b
}

// Name implements Backend.
func (b *FileBackend) Name() string { return FileBackendName }

// Root returns the root directory.
func (b *FileBackend) Root() string { return b.root }

// Fs returns the underlying filesystem.
func (b *FileBackend) Fs() afero.Fs { return b.fs }

// RelPath returns the path of a document relative to the root.
func RelPath(h Hashmap, key string) string {
	name := key + docExt
	if h == CatchAll {
		return name
	}
	prefix := codec.ShardPrefix(name, shardDepth)
	parts := make([]string, 0, shardDepth+2)
	parts = append(parts, string(h))
	for _, c := range prefix {
		parts = append(parts, string(c))
	}
	parts = append(parts, name)
	return filepath.Join(parts...)
}

// Path returns the absolute path of a document.
func (b *FileBackend) Path(h Hashmap, key string) string {
	return filepath.Join(b.root, RelPath(h, key))
}

// Exists implements Backend.
func (b *FileBackend) Exists(_ context.Context, h Hashmap, key string) (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}
	ok, err := afero.Exists(b.fs, b.Path(h, key))
	if err != nil {
		return false, fmt.Errorf("stat %s/%s: %w", h, key, err)
	}
	return ok, nil
}

// SetIfAbsent implements Backend with an exclusive create.
func (b *FileBackend) SetIfAbsent(_ context.Context, h Hashmap, key, value string) (bool, error) {
	if err := h.Validate(); err != nil {
		return false, err
	}
	path := b.Path(h, key)
	if err := b.fs.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return false, fmt.Errorf("create shard directory: %w", err)
	}
	f, err := b.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePerm)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create %s/%s: %w", h, key, err)
	}
	if _, err := f.WriteString(value); err != nil {
		_ = f.Close()
		return false, fmt.Errorf("write %s/%s: %w", h, key, err)
	}
	if err := f.Close(); err != nil {
		return false, fmt.Errorf("close %s/%s: %w", h, key, err)
	}
	return true, nil
}

// Set implements Backend. The file is replaced atomically via a temporary
// file in the same directory.
func (b *FileBackend) Set(_ context.Context, h Hashmap, key, value string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	return b.write(b.Path(h, key), value)
}

func (b *FileBackend) write(path, value string) error {
	dir := filepath.Dir(path)
	if err := b.fs.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create shard directory: %w", err)
	}
	tmp, err := afero.TempFile(b.fs, dir, tempPattern)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.WriteString(value); err != nil {
		_ = tmp.Close()
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := b.fs.Rename(tmpName, path); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("rename into place: %w", err)
	}
	return nil
}

// MultiSet implements Backend.
func (b *FileBackend) MultiSet(ctx context.Context, h Hashmap, mapping map[string]string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	for _, key := range sortedKeys(mapping) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := b.write(b.Path(h, key), mapping[key]); err != nil {
			return fmt.Errorf("set %s/%s: %w", h, key, err)
		}
	}
	return nil
}

// Get implements Backend.
func (b *FileBackend) Get(_ context.Context, h Hashmap, key string) (string, error) {
	if err := h.Validate(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(b.fs, b.Path(h, key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", notFound(h, key)
	}
	if err != nil {
		return "", fmt.Errorf("read %s/%s: %w", h, key, err)
	}
	return string(data), nil
}

// MultiGet implements Backend.
func (b *FileBackend) MultiGet(ctx context.Context, h Hashmap, keys []string) ([]string, error) {
	out := make([]string, len(keys))
	for i, key := range keys {
		v, err := b.Get(ctx, h, key)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Delete implements Backend. Files are first removed through version
// control while holding the pr, delete and tree locks, then from the
// filesystem. Files that are already gone are ignored.
func (b *FileBackend) Delete(ctx context.Context, h Hashmap, keys []string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	rel := make([]string, len(keys))
	for i, key := range keys {
		rel[i] = RelPath(h, key)
	}

	err := b.untrack(ctx, rel)
	if err != nil && !errors.Is(err, ErrNotRepository) {
		return fmt.Errorf("delete %s: %w", h, err)
	}
	if err != nil {
		b.logger.Debug("storage.file.delete.untracked", "hashmap", h, "err", err)
	}

	for _, p := range rel {
		err := b.fs.Remove(filepath.Join(b.root, p))
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	return nil
}

// untrack removes rel from version control under the pr, delete and tree
// locks. The locks are released even if the remover panics.
func (b *FileBackend) untrack(ctx context.Context, rel []string) error {
	release, err := b.locks.Acquire(LockPR, LockDelete, LockTree)
	if err != nil {
		return err
	}
	defer release()
	return b.remover.Remove(ctx, b.root, rel)
}

// ListKeys implements Backend.
func (b *FileBackend) ListKeys(_ context.Context, h Hashmap) ([]string, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	var keys []string
	if h == CatchAll {
		entries, err := afero.ReadDir(b.fs, b.root)
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", b.root, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || !strings.HasSuffix(name, docExt) {
				continue
			}
			if _, skip := b.excluded[name]; skip {
				continue
			}
			keys = append(keys, strings.TrimSuffix(name, docExt))
		}
	} else {
		dir := filepath.Join(b.root, string(h))
		err := afero.Walk(b.fs, dir, func(_ string, info fs.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && strings.HasSuffix(info.Name(), docExt) {
				keys = append(keys, strings.TrimSuffix(info.Name(), docExt))
			}
			return nil
		})
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", dir, err)
		}
	}
	sort.Strings(keys)
	if keys == nil {
		keys = []string{}
	}
	return keys, nil
}

// GetAll implements Backend. Files are read and hashed concurrently.
func (b *FileBackend) GetAll(ctx context.Context, h Hashmap, hashOnly bool) (map[string]string, error) {
	keys, err := b.ListKeys(ctx, h)
	if err != nil {
		return nil, err
	}
	values := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := b.Get(gctx, h, key)
			if err != nil {
				return err
			}
			if hashOnly {
				v = codec.HashString(v)
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(keys))
	for i, key := range keys {
		out[key] = values[i]
	}
	return out, nil
}

// Transaction implements Backend.
func (b *FileBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScope(ctx, fn)
}

// Snapshot implements Backend.
func (b *FileBackend) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScope(ctx, fn)
}

// Close implements Backend.
func (b *FileBackend) Close(context.Context) error { return nil }

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var _ Backend = (*FileBackend)(nil)
