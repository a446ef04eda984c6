// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"

	"github.com/kraklabs/lazyjson/pkg/codec"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

// emptyObject is the canonical form of {}.
const emptyObject = "{}"

// Store binds the file cache and the ordered backend list that documents
// load from and flush to.
type Store struct {
	cache    *storage.FileBackend
	backends []storage.Backend
	logger   *slog.Logger
	reporter syncer.Reporter
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used by the store and its documents.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithSyncReporter sets the progress reporter handed to sync runs.
func WithSyncReporter(r syncer.Reporter) Option {
	return func(s *Store) { s.reporter = r }
}

// New returns a Store. backends[0] is the primary. cache is the local file
// backend every document is read through; it may also appear in backends.
func New(cache *storage.FileBackend, backends []storage.Backend, opts ...Option) (*Store, error) {
	if cache == nil {
		return nil, errors.New("lazyjson: a file cache is required")
	}
	if len(backends) == 0 {
		return nil, errors.New("lazyjson: at least one backend is required")
	}
	s := &Store{
		cache:    cache,
		backends: append([]storage.Backend(nil), backends...),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Primary returns the authoritative backend.
func (s *Store) Primary() storage.Backend { return s.backends[0] }

// Backends returns the configured backends, primary first.
func (s *Store) Backends() []storage.Backend {
	return append([]storage.Backend(nil), s.backends...)
}

// Cache returns the file cache.
func (s *Store) Cache() *storage.FileBackend { return s.cache }

// Open returns a handle for a document name such as
// "node_attrs/numpy.json" or "graph.json".
func (s *Store) Open(ctx context.Context, name string) (*Document, error) {
	h, key, err := ParseName(name)
	if err != nil {
		return nil, err
	}
	return s.OpenNode(ctx, h, key)
}

// OpenNode returns a handle for one node. No data is read. When the
// primary is the file backend an empty document is created if missing.
func (s *Store) OpenNode(ctx context.Context, h storage.Hashmap, key string) (*Document, error) {
	if err := h.Validate(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.New("lazyjson: empty key")
	}
	if storage.IsFile(s.Primary()) {
		if _, err := s.Primary().SetIfAbsent(ctx, h, key, emptyObject); err != nil {
			return nil, fmt.Errorf("create %s: %w", NodeName(h, key), err)
		}
	}
	return &Document{store: s, hashmap: h, key: key}, nil
}

// Resolve opens the document a weak reference points at.
func (s *Store) Resolve(ctx context.Context, ref codec.Referencer) (*Document, error) {
	if d, ok := ref.(*Document); ok && d.store == s {
		return d, nil
	}
	return s.Open(ctx, ref.LazyJSONName())
}

// RemoveKey deletes a node from every backend and from the cache. Every
// backend is attempted; failures are joined.
func (s *Store) RemoveKey(ctx context.Context, h storage.Hashmap, key string) error {
	if err := h.Validate(); err != nil {
		return err
	}
	var result *multierror.Error
	cacheListed := false
	for _, b := range s.backends {
		if storage.IsFile(b) {
			cacheListed = true
		}
		if err := b.Delete(ctx, h, []string{key}); err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", b.Name(), err))
		}
	}
	if !cacheListed {
		if err := s.cache.Delete(ctx, h, []string{key}); err != nil {
			result = multierror.Append(result, fmt.Errorf("cache: %w", err))
		}
	}
	s.logger.Debug("lazyjson.remove_key", "hashmap", h, "key", key)
	return result.ErrorOrNil()
}

// ListKeys returns the keys of h held by the primary.
func (s *Store) ListKeys(ctx context.Context, h storage.Hashmap) ([]string, error) {
	return s.Primary().ListKeys(ctx, h)
}

// Sync pushes the primary's state to every other configured backend.
func (s *Store) Sync(ctx context.Context, batchSize int, opts ...syncer.Option) (syncer.Result, error) {
	return s.runSync(ctx, s.backends[1:], batchSize, opts)
}

// SyncToCache pushes the primary's state to the file cache only. It does
// nothing when the primary is the file backend or no other backend is
// configured.
func (s *Store) SyncToCache(ctx context.Context, batchSize int, opts ...syncer.Option) (syncer.Result, error) {
	if len(s.backends) < 2 || storage.IsFile(s.Primary()) {
		return syncer.Result{}, nil
	}
	return s.runSync(ctx, []storage.Backend{s.cache}, batchSize, opts)
}

func (s *Store) runSync(ctx context.Context, secondaries []storage.Backend, batchSize int, opts []syncer.Option) (syncer.Result, error) {
	base := []syncer.Option{syncer.WithBatchSize(batchSize), syncer.WithLogger(s.logger)}
	if s.reporter != nil {
		base = append(base, syncer.WithReporter(s.reporter))
	}
	return syncer.New(s.Primary(), secondaries, append(base, opts...)...).Run(ctx)
}

// Transaction runs fn inside a primary transaction.
func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Primary().Transaction(ctx, fn)
}

// Snapshot runs fn against a primary snapshot.
func (s *Store) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.Primary().Snapshot(ctx, fn)
}
