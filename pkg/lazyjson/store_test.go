// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lazytest "github.com/kraklabs/lazyjson/internal/testing"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, []storage.Backend{storage.NewMemoryBackend()})
	assert.Error(t, err)
	_, err = New(lazytest.SetupFileBackend(t), nil)
	assert.Error(t, err)
}

func TestStore_RemoveKey(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		e.Set("x", 1)
		return nil
	}))

	require.NoError(t, f.store.RemoveKey(ctx, storage.PRInfo, "numpy"))
	for _, b := range []storage.Backend{f.primary, f.mirror, f.cacheFile} {
		ok, err := b.Exists(ctx, storage.PRInfo, "numpy")
		require.NoError(t, err)
		assert.False(t, ok, b.Name())
	}
}

func TestStore_RemoveKeyClearsUnlistedCache(t *testing.T) {
	ctx := context.Background()
	cache := lazytest.SetupFileBackend(t)
	primary := lazytest.SetupMemoryBackend(t)
	store, err := New(cache, []storage.Backend{primary})
	require.NoError(t, err)
	lazytest.Seed(t, cache, storage.Versions, map[string]any{"numpy": map[string]any{}})

	require.NoError(t, store.RemoveKey(ctx, storage.Versions, "numpy"))
	assert.Empty(t, lazytest.Keys(t, cache, storage.Versions))
}

func TestStore_ListKeysFromPrimary(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.Versions, map[string]any{"b": map[string]any{}, "a": map[string]any{}})
	lazytest.Seed(t, f.mirror, storage.Versions, map[string]any{"z": map[string]any{}})

	keys, err := f.store.ListKeys(ctx, storage.Versions)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, keys)
}

func TestStore_Sync(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.NodeAttrs, map[string]any{"numpy": map[string]any{"v": 1}})

	res, err := f.store.Sync(ctx, 10, syncer.WithHashmaps(storage.NodeAttrs))
	require.NoError(t, err)
	require.Len(t, res.Hashmaps, 1)

	primaryHashes := lazytest.Hashes(t, f.primary, storage.NodeAttrs)
	assert.Equal(t, primaryHashes, lazytest.Hashes(t, f.mirror, storage.NodeAttrs))
	assert.Equal(t, primaryHashes, lazytest.Hashes(t, f.cacheFile, storage.NodeAttrs))
}

func TestStore_SyncToCache(t *testing.T) {
	ctx := context.Background()
	cache := lazytest.SetupFileBackend(t)
	primary := lazytest.SetupMemoryBackend(t)
	mirror := lazytest.NewRecorder("mirror", lazytest.SetupMemoryBackend(t))
	store, err := New(cache, []storage.Backend{primary, mirror})
	require.NoError(t, err)
	lazytest.Seed(t, primary, storage.PRJSON, map[string]any{"1": map[string]any{}})

	_, err = store.SyncToCache(ctx, 0, syncer.WithHashmaps(storage.PRJSON))
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, lazytest.Keys(t, cache, storage.PRJSON))
	assert.Empty(t, mirror.Calls(""), "only the cache is synced")

	single, err := New(cache, []storage.Backend{primary})
	require.NoError(t, err)
	res, err := single.SyncToCache(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, res.Hashmaps)
}

func TestStore_Scopes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	calls := 0
	err := f.store.Transaction(ctx, func(ctx context.Context) error {
		return f.store.Snapshot(ctx, func(context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, f.primary.Calls("Transaction"), 1)
	assert.Len(t, f.primary.Calls("Snapshot"), 1)
	assert.Empty(t, f.mirror.Calls(""))
}
