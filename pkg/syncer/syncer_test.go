// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package syncer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lazytest "github.com/kraklabs/lazyjson/internal/testing"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doc(v string) map[string]any {
	return map[string]any{"v": v}
}

func TestOrder(t *testing.T) {
	got := Order([]storage.Hashmap{
		"zeta", storage.Versions, storage.PRJSON, "alpha",
		storage.NodeAttrs, storage.CatchAll, storage.PRInfo, storage.VersionPRInfo, storage.PRJSON,
	})
	assert.Equal(t, []storage.Hashmap{
		storage.CatchAll, storage.NodeAttrs, storage.PRInfo, storage.VersionPRInfo,
		storage.PRJSON, storage.Versions, "alpha", "zeta",
	}, got)
}

func TestSyncHashmap_Converges(t *testing.T) {
	ctx := context.Background()
	primary := lazytest.SetupFileBackend(t)
	secondary := lazytest.NewRecorder("mirror", lazytest.SetupMemoryBackend(t))

	lazytest.Seed(t, primary, storage.NodeAttrs, map[string]any{"a": doc("h1"), "b": doc("h2")})
	lazytest.Seed(t, secondary, storage.NodeAttrs, map[string]any{"b": doc("old"), "c": doc("h3")})
	secondary.Reset()

	s := New(primary, []storage.Backend{secondary}, WithLogger(quietLogger()))
	res, err := s.SyncHashmap(ctx, storage.NodeAttrs)
	require.NoError(t, err)

	assert.Equal(t, lazytest.Hashes(t, primary, storage.NodeAttrs), lazytest.Hashes(t, secondary, storage.NodeAttrs))
	assert.Equal(t, lazytest.Value(t, primary, storage.NodeAttrs, "b"), lazytest.Value(t, secondary, storage.NodeAttrs, "b"))

	deletes := secondary.Calls("Delete")
	require.Len(t, deletes, 1)
	assert.Equal(t, []string{"c"}, deletes[0].Keys)

	sets := secondary.Calls("MultiSet")
	require.Len(t, sets, 1)
	assert.Equal(t, []string{"a", "b"}, sets[0].Keys)

	assert.Equal(t, 2, res.PrimaryKeys)
	assert.Equal(t, 2, res.ToFetch)
	assert.Equal(t, 1, res.Batches)
	assert.Equal(t, []SecondaryResult{{Backend: "mirror", Deleted: 1, Pushed: 2}}, res.Secondaries)
}

func TestSyncHashmap_Batches(t *testing.T) {
	ctx := context.Background()
	primary := lazytest.NewRecorder("primary", lazytest.SetupMemoryBackend(t))
	secondary := lazytest.SetupMemoryBackend(t)
	lazytest.Seed(t, primary, storage.PRJSON, map[string]any{
		"e": doc("5"), "d": doc("4"), "c": doc("3"), "b": doc("2"), "a": doc("1"),
	})

	s := New(primary, []storage.Backend{secondary}, WithBatchSize(2), WithLogger(quietLogger()))
	res, err := s.SyncHashmap(ctx, storage.PRJSON)
	require.NoError(t, err)

	gets := primary.Calls("MultiGet")
	require.Len(t, gets, 3)
	assert.Equal(t, []string{"a", "b"}, gets[0].Keys)
	assert.Equal(t, []string{"c", "d"}, gets[1].Keys)
	assert.Equal(t, []string{"e"}, gets[2].Keys)
	assert.Equal(t, 3, res.Batches)
	assert.Len(t, lazytest.Keys(t, secondary, storage.PRJSON), 5)
}

func TestSyncHashmap_PerSecondaryStaleness(t *testing.T) {
	ctx := context.Background()
	primary := lazytest.SetupMemoryBackend(t)
	fresh := lazytest.NewRecorder("fresh", lazytest.SetupMemoryBackend(t))
	stale := lazytest.NewRecorder("stale", lazytest.SetupMemoryBackend(t))

	docs := map[string]any{"a": doc("1"), "b": doc("2")}
	lazytest.Seed(t, primary, storage.PRInfo, docs)
	lazytest.Seed(t, fresh, storage.PRInfo, docs)
	lazytest.Seed(t, stale, storage.PRInfo, map[string]any{"a": doc("1")})
	fresh.Reset()
	stale.Reset()

	s := New(primary, []storage.Backend{fresh, stale}, WithLogger(quietLogger()))
	res, err := s.SyncHashmap(ctx, storage.PRInfo)
	require.NoError(t, err)

	assert.Empty(t, fresh.Calls("MultiSet"), "an up-to-date secondary receives nothing")
	require.Len(t, stale.Calls("MultiSet"), 1)
	assert.Equal(t, []string{"b"}, stale.Calls("MultiSet")[0].Keys)
	assert.Equal(t, 1, res.ToFetch)
}

func TestSyncHashmap_Idempotent(t *testing.T) {
	ctx := context.Background()
	primary := lazytest.SetupMemoryBackend(t)
	secondary := lazytest.NewRecorder("mirror", lazytest.SetupMemoryBackend(t))
	lazytest.Seed(t, primary, storage.Versions, map[string]any{"a": doc("1")})

	s := New(primary, []storage.Backend{secondary}, WithLogger(quietLogger()))
	_, err := s.SyncHashmap(ctx, storage.Versions)
	require.NoError(t, err)
	secondary.Reset()

	res, err := s.SyncHashmap(ctx, storage.Versions)
	require.NoError(t, err)
	assert.Zero(t, res.ToFetch)
	assert.Zero(t, secondary.Writes())
	assert.Empty(t, secondary.Calls("Delete"))
}

func TestRun_NoSecondaries(t *testing.T) {
	primary := lazytest.NewRecorder("primary", lazytest.SetupMemoryBackend(t))
	res, err := New(primary, nil, WithLogger(quietLogger())).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Hashmaps)
	assert.Empty(t, primary.Calls(""))
}

func TestRun_PriorityOrder(t *testing.T) {
	primary := lazytest.NewRecorder("primary", lazytest.SetupMemoryBackend(t))
	secondary := lazytest.SetupMemoryBackend(t)

	res, err := New(primary, []storage.Backend{secondary}, WithLogger(quietLogger())).Run(context.Background())
	require.NoError(t, err)

	var order []storage.Hashmap
	for _, c := range primary.Calls("GetAll") {
		order = append(order, c.Hashmap)
	}
	assert.Equal(t, []storage.Hashmap{
		storage.CatchAll, storage.NodeAttrs, storage.PRInfo,
		storage.VersionPRInfo, storage.PRJSON, storage.Versions,
	}, order)
	assert.Len(t, res.Hashmaps, 6)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	primary := lazytest.NewRecorder("primary", lazytest.SetupMemoryBackend(t))
	secondary := lazytest.NewRecorder("mirror", lazytest.SetupMemoryBackend(t))
	lazytest.Seed(t, primary, storage.NodeAttrs, map[string]any{"a": doc("1"), "b": doc("2")})
	lazytest.Seed(t, secondary, storage.NodeAttrs, map[string]any{"z": doc("9")})
	primary.Reset()
	secondary.Reset()

	s := New(primary, []storage.Backend{secondary},
		WithDryRun(true), WithHashmaps(storage.NodeAttrs), WithLogger(quietLogger()))
	res, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	deleted, pushed := res.Totals()
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 2, pushed)
	assert.Zero(t, secondary.Writes())
	assert.Empty(t, secondary.Calls("Delete"))
	assert.Empty(t, primary.Calls("MultiGet"))
}

type failingBackend struct {
	storage.Backend
	err error
}

func (f failingBackend) MultiSet(context.Context, storage.Hashmap, map[string]string) error {
	return f.err
}

func TestRun_AbortsOnFailure(t *testing.T) {
	primary := lazytest.SetupMemoryBackend(t)
	lazytest.Seed(t, primary, storage.CatchAll, map[string]any{"graph": doc("1")})
	boom := errors.New("disk full")
	secondary := failingBackend{Backend: lazytest.SetupMemoryBackend(t), err: boom}

	res, err := New(primary, []storage.Backend{secondary}, WithLogger(quietLogger())).Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Empty(t, res.Hashmaps)
}

type countingReporter struct {
	started map[storage.Hashmap]int
	batches int
	done    int
}

func (c *countingReporter) HashmapStarted(h storage.Hashmap, n int) { c.started[h] = n }
func (c *countingReporter) BatchDone(storage.Hashmap, int)          { c.batches++ }
func (c *countingReporter) HashmapDone(HashmapResult)               { c.done++ }

func TestRun_Reporter(t *testing.T) {
	primary := lazytest.SetupMemoryBackend(t)
	lazytest.Seed(t, primary, storage.Versions, map[string]any{"a": doc("1"), "b": doc("2"), "c": doc("3")})
	rep := &countingReporter{started: map[storage.Hashmap]int{}}

	_, err := New(primary, []storage.Backend{lazytest.SetupMemoryBackend(t)},
		WithBatchSize(2), WithReporter(rep), WithLogger(quietLogger())).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, rep.started[storage.Versions])
	assert.Equal(t, 2, rep.batches)
	assert.Equal(t, 6, rep.done)
}
