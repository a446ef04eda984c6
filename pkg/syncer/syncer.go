// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package syncer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

// priority lists the hashmaps that sync before all others, in order.
var priority = []storage.Hashmap{
	storage.CatchAll,
	storage.NodeAttrs,
	storage.PRInfo,
	storage.VersionPRInfo,
	storage.PRJSON,
	storage.Versions,
}

// Order returns hs in sync order: the priority hashmaps first, then the
// rest sorted by name. Duplicates are dropped.
func Order(hs []storage.Hashmap) []storage.Hashmap {
	want := make(map[storage.Hashmap]bool, len(hs))
	for _, h := range hs {
		want[h] = true
	}
	out := make([]storage.Hashmap, 0, len(want))
	for _, h := range priority {
		if want[h] {
			out = append(out, h)
			delete(want, h)
		}
	}
	rest := make([]storage.Hashmap, 0, len(want))
	for h := range want {
		rest = append(rest, h)
	}
	sort.Slice(rest, func(i, j int) bool { return rest[i] < rest[j] })
	return append(out, rest...)
}

// SecondaryResult counts the changes applied to one secondary.
type SecondaryResult struct {
	Backend string `json:"backend"`
	Deleted int    `json:"deleted"`
	Pushed  int    `json:"pushed"`
}

// HashmapResult summarizes the sync of one hashmap.
type HashmapResult struct {
	Hashmap     storage.Hashmap   `json:"hashmap"`
	PrimaryKeys int               `json:"primary_keys"`
	ToFetch     int               `json:"to_fetch"`
	Batches     int               `json:"batches"`
	Secondaries []SecondaryResult `json:"secondaries"`
	Duration    time.Duration     `json:"duration_ns"`
}

// Result summarizes a full run.
type Result struct {
	DryRun   bool            `json:"dry_run"`
	Hashmaps []HashmapResult `json:"hashmaps"`
}

// Totals returns the number of keys deleted and pushed across all
// hashmaps and secondaries.
func (r Result) Totals() (deleted, pushed int) {
	for _, h := range r.Hashmaps {
		for _, s := range h.Secondaries {
			deleted += s.Deleted
			pushed += s.Pushed
		}
	}
	return deleted, pushed
}

// Syncer copies state from one primary backend to its secondaries.
type Syncer struct {
	primary     storage.Backend
	secondaries []storage.Backend
	batchSize   int
	hashmaps    []storage.Hashmap
	dryRun      bool
	logger      *slog.Logger
	reporter    Reporter
}

// New returns a Syncer. With no secondaries Run is a no-op.
func New(primary storage.Backend, secondaries []storage.Backend, opts ...Option) *Syncer {
	s := &Syncer{
		primary:     primary,
		secondaries: secondaries,
		batchSize:   DefaultBatchSize,
		hashmaps:    storage.AllHashmaps(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.reporter == nil {
		s.reporter = nopReporter{}
	}
	return s
}

// Run syncs every configured hashmap in priority order. The first error
// aborts the run; hashmaps synced before it stay synced.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	res := Result{DryRun: s.dryRun}
	if len(s.secondaries) == 0 {
		s.logger.Debug("sync.run.skip", "reason", "no secondaries")
		return res, nil
	}
	order := Order(s.hashmaps)
	s.logger.Info("sync.run.start",
		"primary", s.primary.Name(),
		"secondaries", len(s.secondaries),
		"hashmaps", len(order),
		"batch_size", s.batchSize,
		"dry_run", s.dryRun,
	)
	for _, h := range order {
		hr, err := s.SyncHashmap(ctx, h)
		if err != nil {
			return res, err
		}
		res.Hashmaps = append(res.Hashmaps, hr)
	}
	deleted, pushed := res.Totals()
	s.logger.Info("sync.run.done", "deleted", deleted, "pushed", pushed)
	return res, nil
}

// SyncHashmap brings every secondary's copy of h in line with the primary.
func (s *Syncer) SyncHashmap(ctx context.Context, h storage.Hashmap) (HashmapResult, error) {
	start := time.Now()
	res := HashmapResult{Hashmap: h, Secondaries: make([]SecondaryResult, len(s.secondaries))}
	if err := h.Validate(); err != nil {
		return res, err
	}
	s.logger.Debug("sync.hashmap.start", "hashmap", h)

	primaryHashes, err := s.primary.GetAll(ctx, h, true)
	if err != nil {
		return res, fmt.Errorf("read %s hashes from %s: %w", h, s.primary.Name(), err)
	}
	res.PrimaryKeys = len(primaryHashes)

	secondaryHashes := make([]map[string]string, len(s.secondaries))
	toFetch := make(map[string]struct{})
	for i, sec := range s.secondaries {
		res.Secondaries[i].Backend = sec.Name()
		hashes, err := sec.GetAll(ctx, h, true)
		if err != nil {
			return res, fmt.Errorf("read %s hashes from %s: %w", h, sec.Name(), err)
		}
		secondaryHashes[i] = hashes

		var gone []string
		for key := range hashes {
			if _, ok := primaryHashes[key]; !ok {
				gone = append(gone, key)
			}
		}
		if len(gone) > 0 {
			sort.Strings(gone)
			if !s.dryRun {
				if err := sec.Delete(ctx, h, gone); err != nil {
					return res, fmt.Errorf("delete %d keys from %s/%s: %w", len(gone), sec.Name(), h, err)
				}
				recordDeleted(string(h), sec.Name(), len(gone))
			}
			res.Secondaries[i].Deleted = len(gone)
			s.logger.Debug("sync.hashmap.delete", "hashmap", h, "backend", sec.Name(), "count", len(gone))
		}

		for key, ph := range primaryHashes {
			if !upToDate(hashes, key, ph) {
				toFetch[key] = struct{}{}
			}
		}
	}

	keys := make([]string, 0, len(toFetch))
	for key := range toFetch {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	res.ToFetch = len(keys)
	s.reporter.HashmapStarted(h, len(keys))

	for lo := 0; lo < len(keys); lo += s.batchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		hi := min(lo+s.batchSize, len(keys))
		batch := keys[lo:hi]
		if err := s.pushBatch(ctx, h, batch, primaryHashes, secondaryHashes, &res); err != nil {
			return res, err
		}
		res.Batches++
		s.reporter.BatchDone(h, len(batch))
	}

	res.Duration = time.Since(start)
	recordDuration(string(h), res.Duration.Seconds())
	s.logger.Info("sync.hashmap.done",
		"hashmap", h,
		"primary_keys", res.PrimaryKeys,
		"to_fetch", res.ToFetch,
		"batches", res.Batches,
		"duration_ms", res.Duration.Milliseconds(),
	)
	s.reporter.HashmapDone(res)
	return res, nil
}

func (s *Syncer) pushBatch(ctx context.Context, h storage.Hashmap, batch []string,
	primaryHashes map[string]string, secondaryHashes []map[string]string, res *HashmapResult) error {
	var values []string
	if !s.dryRun {
		var err error
		values, err = s.primary.MultiGet(ctx, h, batch)
		if err != nil {
			return fmt.Errorf("fetch %d keys of %s from %s: %w", len(batch), h, s.primary.Name(), err)
		}
		recordBatch(string(h))
	}

	for i, sec := range s.secondaries {
		mapping := make(map[string]string)
		for j, key := range batch {
			if upToDate(secondaryHashes[i], key, primaryHashes[key]) {
				continue
			}
			if s.dryRun {
				mapping[key] = ""
			} else {
				mapping[key] = values[j]
			}
		}
		if len(mapping) == 0 {
			continue
		}
		if !s.dryRun {
			if err := sec.MultiSet(ctx, h, mapping); err != nil {
				return fmt.Errorf("push %d keys to %s/%s: %w", len(mapping), sec.Name(), h, err)
			}
			recordPushed(string(h), sec.Name(), len(mapping))
		}
		res.Secondaries[i].Pushed += len(mapping)
		s.logger.Debug("sync.batch.push", "hashmap", h, "backend", sec.Name(), "count", len(mapping))
	}
	return nil
}

func upToDate(hashes map[string]string, key, want string) bool {
	got, ok := hashes[key]
	return ok && got == want
}
