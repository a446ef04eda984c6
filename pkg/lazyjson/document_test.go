// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lazytest "github.com/kraklabs/lazyjson/internal/testing"
	"github.com/kraklabs/lazyjson/pkg/codec"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

type fixture struct {
	store       *Store
	cache       *lazytest.Recorder
	cacheFile   *storage.FileBackend
	cacheWrites *lazytest.CountingFs
	primary     *lazytest.Recorder
	mirror      *lazytest.Recorder
}

// newFixture builds a store with a memory primary, a memory mirror and the
// file cache also listed as a backend.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	cacheFile, cacheWrites := lazytest.SetupCountingFileBackend(t)
	f := &fixture{
		cacheFile:   cacheFile,
		cacheWrites: cacheWrites,
		cache:       lazytest.NewRecorder("file", cacheFile),
		primary:     lazytest.NewRecorder("primary", lazytest.SetupMemoryBackend(t)),
		mirror:      lazytest.NewRecorder("mirror", lazytest.SetupMemoryBackend(t)),
	}
	store, err := New(cacheFile, []storage.Backend{f.primary, f.mirror, f.cache},
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	require.NoError(t, err)
	f.store = store
	return f
}

func (f *fixture) reset() {
	f.cacheWrites.Reset()
	f.cache.Reset()
	f.primary.Reset()
	f.mirror.Reset()
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name    string
		h       storage.Hashmap
		key     string
		wantErr bool
	}{
		{name: "node_attrs/numpy.json", h: storage.NodeAttrs, key: "numpy"},
		{name: "graph.json", h: storage.CatchAll, key: "graph"},
		{name: "pr_json/1234.json", h: storage.PRJSON, key: "1234"},
		{name: "numpy", wantErr: true},
		{name: "bogus/numpy.json", wantErr: true},
		{name: "node_attrs/a/b.json", wantErr: true},
		{name: ".json", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, key, err := ParseName(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.h, h)
			assert.Equal(t, tt.key, key)
			assert.Equal(t, tt.name, NodeName(h, key))
		})
	}
}

func TestOpen_DoesNoIO(t *testing.T) {
	f := newFixture(t)
	doc, err := f.store.Open(context.Background(), "node_attrs/numpy.json")
	require.NoError(t, err)

	assert.Equal(t, Unloaded, doc.State())
	assert.Empty(t, f.primary.Calls(""))
	assert.Empty(t, f.mirror.Calls(""))
	assert.Equal(t, "node_attrs/numpy.json", doc.LazyJSONName())
}

func TestOpen_FilePrimaryCreatesEagerly(t *testing.T) {
	ctx := context.Background()
	cache := lazytest.SetupFileBackend(t)
	store, err := New(cache, []storage.Backend{cache})
	require.NoError(t, err)

	_, err = store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	assert.Equal(t, "{}", lazytest.Value(t, cache, storage.PRInfo, "numpy"))
}

func TestLoad_FromPrimaryFillsCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.NodeAttrs, map[string]any{"numpy": map[string]any{"version": "1.26.4"}})
	f.reset()

	doc, err := f.store.OpenNode(ctx, storage.NodeAttrs, "numpy")
	require.NoError(t, err)
	v, ok, err := doc.Get(ctx, "version")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1.26.4", v)
	assert.Equal(t, Clean, doc.State())

	assert.Len(t, f.primary.Calls("Get"), 1)
	assert.Equal(t,
		lazytest.Value(t, f.primary, storage.NodeAttrs, "numpy"),
		lazytest.Value(t, f.cacheFile, storage.NodeAttrs, "numpy"))
}

func TestLoad_MissingEverywhereCreatesEmpty(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.Versions, "new")
	require.NoError(t, err)

	n, err := doc.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, "{}", lazytest.Value(t, f.primary, storage.Versions, "new"))
	assert.Len(t, f.primary.Calls("SetIfAbsent"), 1)
}

func TestEdit_DirtyTracking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.NodeAttrs, "numpy")
	require.NoError(t, err)
	_, err = doc.Len(ctx)
	require.NoError(t, err)
	f.reset()

	err = doc.Edit(ctx, func(e *Editor) error {
		assert.Equal(t, Dirty, doc.State())
		e.Set("a", 1)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Purged, doc.State())
	assert.Len(t, f.primary.Calls("Set"), 1)
	assert.Len(t, f.mirror.Calls("Set"), 1)
	assert.Equal(t, 1, f.cacheWrites.Writes(), "the cache is written once, not again as a listed backend")
	assert.Equal(t, "{\n \"a\": 1\n}", lazytest.Value(t, f.cacheFile, storage.NodeAttrs, "numpy"))
	assert.Equal(t, "{\n \"a\": 1\n}", lazytest.Value(t, f.mirror, storage.NodeAttrs, "numpy"))
	f.reset()

	err = doc.Edit(ctx, func(e *Editor) error {
		e.Set("a", 2)
		e.Set("a", 1)
		return nil
	})
	require.NoError(t, err)
	assert.Zero(t, f.primary.Writes(), "reverted edits write nothing")
	assert.Zero(t, f.mirror.Writes())
	assert.Zero(t, f.cacheWrites.Writes(), "reverted edits leave the cache alone")
}

func TestEdit_PurgeReloadsFromCache(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		e.Set("prs", []any{"1"})
		return nil
	}))
	f.reset()

	v, ok, err := doc.Get(ctx, "prs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{"1"}, v)
	assert.Empty(t, f.primary.Calls(""), "reload is served by the cache")
	assert.Equal(t, Clean, doc.State())
}

func TestEdit_FlushesWhenCallbackFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	boom := errors.New("boom")

	err = doc.Edit(ctx, func(e *Editor) error {
		e.Set("partial", true)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, lazytest.Value(t, f.primary, storage.PRInfo, "numpy"), "partial")
}

func TestEdit_ReportsFlushFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	boom := errors.New("boom")

	err = doc.Edit(ctx, func(e *Editor) error {
		e.Set("ch", make(chan int))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	var ute *codec.UnsupportedTypeError
	assert.ErrorAs(t, err, &ute)
}

func TestEdit_FailedFlushDetachesValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.PRInfo, map[string]any{"numpy": map[string]any{"prs": []any{"1"}}})
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)

	var live map[string]any
	err = doc.Edit(ctx, func(e *Editor) error {
		e.Set("ch", make(chan int))
		live = e.Data()
		return nil
	})
	var ute *codec.UnsupportedTypeError
	require.ErrorAs(t, err, &ute)
	assert.Equal(t, Unflushed, doc.State())

	delete(live, "ch")
	live["outside"] = "scope"
	assert.Error(t, doc.Flush(ctx), "changes through a stale editor map are not seen")
	has, err := doc.Has(ctx, "outside")
	require.NoError(t, err)
	assert.False(t, has)
	assert.NotContains(t, lazytest.Value(t, f.primary, storage.PRInfo, "numpy"), "outside")

	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		e.Delete("ch")
		return nil
	}))
	assert.Equal(t, Purged, doc.State())
	assert.Equal(t, "{\n \"prs\": [\n  \"1\"\n ]\n}", lazytest.Value(t, f.primary, storage.PRInfo, "numpy"))
}

// failingBackend fails Set until healed.
type failingBackend struct {
	storage.Backend
	failing bool
}

func (b *failingBackend) Set(ctx context.Context, h storage.Hashmap, key, value string) error {
	if b.failing {
		return errors.New("backend down")
	}
	return b.Backend.Set(ctx, h, key, value)
}

func TestEdit_FailedWriteRetriesOnFlush(t *testing.T) {
	ctx := context.Background()
	cache := lazytest.SetupFileBackend(t)
	primary := lazytest.SetupMemoryBackend(t)
	mirror := &failingBackend{Backend: lazytest.SetupMemoryBackend(t), failing: true}
	store, err := New(cache, []storage.Backend{primary, mirror})
	require.NoError(t, err)
	doc, err := store.OpenNode(ctx, storage.Versions, "numpy")
	require.NoError(t, err)

	err = doc.Edit(ctx, func(e *Editor) error {
		e.Set("v", "2.0")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, Unflushed, doc.State())

	mirror.failing = false
	require.NoError(t, doc.Flush(ctx))
	assert.Equal(t, Clean, doc.State())
	assert.Equal(t, "{\n \"v\": \"2.0\"\n}", lazytest.Value(t, mirror.Backend, storage.Versions, "numpy"))
}

func TestEdit_Nested(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)
	_, err = doc.Len(ctx)
	require.NoError(t, err)
	f.reset()

	err = doc.Edit(ctx, func(outer *Editor) error {
		outer.Set("a", 1)
		return doc.Edit(ctx, func(inner *Editor) error {
			assert.Same(t, outer, inner)
			inner.Set("b", 2)
			assert.Zero(t, f.primary.Writes(), "inner scope does not flush")
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, f.primary.Writes())
	assert.Equal(t, "{\n \"a\": 1,\n \"b\": 2\n}", lazytest.Value(t, f.primary, storage.PRInfo, "numpy"))
}

func TestEditor_PanicsAfterScope(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.PRInfo, "numpy")
	require.NoError(t, err)

	var kept *Editor
	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		kept = e
		return nil
	}))
	assert.Panics(t, func() { kept.Set("x", 1) })
}

func TestEditor_DeleteAndClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.Versions, map[string]any{"numpy": map[string]any{"a": 1, "b": 2, "c": 3}})
	doc, err := f.store.OpenNode(ctx, storage.Versions, "numpy")
	require.NoError(t, err)

	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		e.Delete("a")
		e.Delete("missing")
		_, ok := e.Get("a")
		assert.False(t, ok)
		e.Data()["d"] = 4
		return nil
	}))
	keys, err := doc.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c", "d"}, keys)

	require.NoError(t, doc.Edit(ctx, func(e *Editor) error {
		e.Clear()
		return nil
	}))
	assert.Equal(t, "{}", lazytest.Value(t, f.primary, storage.Versions, "numpy"))
}

func TestReads_ReturnCopies(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.Versions, map[string]any{"numpy": map[string]any{"l": []any{"x"}}})
	doc, err := f.store.OpenNode(ctx, storage.Versions, "numpy")
	require.NoError(t, err)

	v, _, err := doc.Get(ctx, "l")
	require.NoError(t, err)
	v.([]any)[0] = "mutated"
	data, err := doc.Data(ctx)
	require.NoError(t, err)
	data["new"] = true

	again, _, err := doc.Get(ctx, "l")
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, again)
	has, err := doc.Has(ctx, "new")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestFlushToBackends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lazytest.Seed(t, f.primary, storage.NodeAttrs, map[string]any{"numpy": map[string]any{"a": 1}})
	doc, err := f.store.OpenNode(ctx, storage.NodeAttrs, "numpy")
	require.NoError(t, err)
	f.reset()

	require.NoError(t, doc.FlushToBackends(ctx))
	assert.Len(t, f.primary.Calls("Set"), 1)
	assert.Len(t, f.mirror.Calls("Set"), 1, "unchanged documents are still pushed")
	assert.Equal(t, Purged, doc.State(), "a document that was not loaded is dropped again")

	_, err = doc.Len(ctx)
	require.NoError(t, err)
	require.NoError(t, doc.FlushToBackends(ctx))
	assert.Equal(t, Clean, doc.State(), "a loaded document stays loaded")
}

func TestFlush_KeepsValue(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	doc, err := f.store.OpenNode(ctx, storage.NodeAttrs, "numpy")
	require.NoError(t, err)
	_, err = doc.Len(ctx)
	require.NoError(t, err)
	f.reset()

	require.NoError(t, doc.Flush(ctx))
	assert.Zero(t, f.primary.Writes())
	assert.Equal(t, Clean, doc.State())

	doc.Purge()
	assert.Equal(t, Purged, doc.State())
}

func TestWithBackends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	other := lazytest.NewRecorder("other", lazytest.SetupMemoryBackend(t))
	lazytest.Seed(t, other, storage.PRJSON, map[string]any{"7": map[string]any{"from": "other"}})
	doc, err := f.store.OpenNode(ctx, storage.PRJSON, "7")
	require.NoError(t, err)
	f.reset()

	err = doc.WithBackends([]storage.Backend{other}, func() error {
		v, _, err := doc.Get(ctx, "from")
		require.NoError(t, err)
		assert.Equal(t, "other", v)
		return doc.Edit(ctx, func(e *Editor) error {
			e.Set("seen", true)
			return nil
		})
	})
	require.NoError(t, err)

	assert.Empty(t, f.primary.Calls(""), "configured backends are bypassed")
	assert.Empty(t, f.mirror.Calls(""))
	assert.Len(t, other.Calls("Set"), 1)
	assert.Contains(t, lazytest.Value(t, f.cacheFile, storage.PRJSON, "7"), "seen")

	assert.Error(t, doc.WithBackends(nil, func() error { return nil }))
}

func TestDocument_EncodesAsWeakReference(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	child, err := f.store.Open(ctx, "node_attrs/numpy.json")
	require.NoError(t, err)
	parent, err := f.store.Open(ctx, "graph.json")
	require.NoError(t, err)

	require.NoError(t, parent.Edit(ctx, func(e *Editor) error {
		e.Set("numpy", child)
		return nil
	}))

	v, ok, err := parent.Get(ctx, "numpy")
	require.NoError(t, err)
	require.True(t, ok)
	ref, isRef := v.(codec.Ref)
	require.True(t, isRef, "got %T", v)

	resolved, err := f.store.Resolve(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, storage.NodeAttrs, resolved.Hashmap())
	assert.Equal(t, "numpy", resolved.Key())

	same, err := f.store.Resolve(ctx, child)
	require.NoError(t, err)
	assert.Same(t, child, same)
}

func TestLoad_RejectsNonObject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	require.NoError(t, f.primary.Set(ctx, storage.Versions, "bad", "[]"))
	doc, err := f.store.OpenNode(ctx, storage.Versions, "bad")
	require.NoError(t, err)

	_, err = doc.Len(ctx)
	assert.Error(t, err)
}
