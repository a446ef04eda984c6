// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package testing

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/spf13/afero"

	"github.com/kraklabs/lazyjson/pkg/codec"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

// SetupFileBackend creates a file backend on an in-memory filesystem.
//
// The backend gets its own lock set and never shells out to git, so tests
// using it can run in parallel.
//
// Example:
//
//	func TestMyFeature(t *testing.T) {
//	    cache := testing.SetupFileBackend(t)
//	    testing.Seed(t, cache, storage.NodeAttrs, map[string]any{"numpy": map[string]any{}})
//	}
func SetupFileBackend(t *testing.T) *storage.FileBackend {
	t.Helper()
	return setupFileBackend(afero.NewMemMapFs())
}

// SetupCountingFileBackend is SetupFileBackend with a filesystem that
// counts completed file writes, so tests can assert on writes that bypass
// any Recorder.
func SetupCountingFileBackend(t *testing.T) (*storage.FileBackend, *CountingFs) {
	t.Helper()
	fsys := NewCountingFs(afero.NewMemMapFs())
	return setupFileBackend(fsys), fsys
}

func setupFileBackend(fsys afero.Fs) *storage.FileBackend {
	locks := storage.NewLockSet().
		Register(storage.LockPR, &sync.Mutex{}).
		Register(storage.LockDelete, &sync.Mutex{}).
		Register(storage.LockTree, &sync.Mutex{})
	return storage.NewFileBackend("/graph",
		storage.WithFs(fsys),
		storage.WithLocks(locks),
		storage.WithRemover(storage.NopRemover{}),
	)
}

// SetupMemoryBackend creates an in-memory backend closed at test end.
func SetupMemoryBackend(t *testing.T) *storage.MemoryBackend {
	t.Helper()
	b := storage.NewMemoryBackend()
	t.Cleanup(func() {
		_ = b.Close(context.Background())
	})
	return b
}

// Seed writes every document of docs into h, canonically encoded.
//
// Example:
//
//	testing.Seed(t, backend, storage.PRInfo, map[string]any{
//	    "numpy": map[string]any{"prs": []any{}},
//	})
func Seed(t *testing.T, b storage.Backend, h storage.Hashmap, docs map[string]any) {
	t.Helper()
	mapping := make(map[string]string, len(docs))
	for key, doc := range docs {
		mapping[key] = Canonical(t, doc)
	}
	if err := b.MultiSet(context.Background(), h, mapping); err != nil {
		t.Fatalf("failed to seed %s: %v", h, err)
	}
}

// Canonical returns the canonical encoding of v.
func Canonical(t *testing.T, v any) string {
	t.Helper()
	s, err := codec.MarshalString(v)
	if err != nil {
		t.Fatalf("failed to encode %#v: %v", v, err)
	}
	return s
}

// Hashes returns the {key: content hash} map of h.
func Hashes(t *testing.T, b storage.Backend, h storage.Hashmap) map[string]string {
	t.Helper()
	m, err := b.GetAll(context.Background(), h, true)
	if err != nil {
		t.Fatalf("failed to read %s hashes: %v", h, err)
	}
	return m
}

// Value returns the stored text of one document.
func Value(t *testing.T, b storage.Backend, h storage.Hashmap, key string) string {
	t.Helper()
	v, err := b.Get(context.Background(), h, key)
	if err != nil {
		t.Fatalf("failed to read %s/%s: %v", h, key, err)
	}
	return v
}

// Keys returns the sorted keys of h.
func Keys(t *testing.T, b storage.Backend, h storage.Hashmap) []string {
	t.Helper()
	keys, err := b.ListKeys(context.Background(), h)
	if err != nil {
		t.Fatalf("failed to list %s: %v", h, err)
	}
	sort.Strings(keys)
	return keys
}
