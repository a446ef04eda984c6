// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package syncer

import (
	"log/slog"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

// DefaultBatchSize is the number of values fetched from the primary at once.
const DefaultBatchSize = 5000

// Option configures a Syncer.
type Option func(*Syncer)

// WithBatchSize sets the fetch batch size. Values below one select the
// default.
func WithBatchSize(n int) Option {
	return func(s *Syncer) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Syncer) { s.logger = l }
}

// WithReporter sets the progress reporter.
func WithReporter(r Reporter) Option {
	return func(s *Syncer) { s.reporter = r }
}

// WithHashmaps restricts Run to the given hashmaps. They are still
// processed in priority order.
func WithHashmaps(hs ...storage.Hashmap) Option {
	return func(s *Syncer) { s.hashmaps = append([]storage.Hashmap(nil), hs...) }
}

// WithDryRun computes the diff without writing to any secondary.
func WithDryRun(dry bool) Option {
	return func(s *Syncer) { s.dryRun = dry }
}

// Reporter receives progress notifications. Calls happen on the goroutine
// running the sync.
type Reporter interface {
	// HashmapStarted is called once the keys to copy are known.
	HashmapStarted(h storage.Hashmap, toFetch int)
	// BatchDone is called after each batch with the number of keys in it.
	BatchDone(h storage.Hashmap, n int)
	// HashmapDone is called when the hashmap has converged.
	HashmapDone(r HashmapResult)
}

type nopReporter struct{}

func (nopReporter) HashmapStarted(storage.Hashmap, int) {}
func (nopReporter) BatchDone(storage.Hashmap, int)      {}
func (nopReporter) HashmapDone(HashmapResult)           {}
