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

package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"

	"github.com/kraklabs/lazyjson/pkg/lazyjson"
	"github.com/kraklabs/lazyjson/pkg/storage"
	"github.com/kraklabs/lazyjson/pkg/syncer"
)

// MongoFactory opens the document-store backend.
type MongoFactory func(ctx context.Context, cfg storage.MongoConfig, logger *slog.Logger) (storage.Backend, error)

// Config describes the backends a Store is built from.
type Config struct {
	// Backends lists backend names in priority order: "file", "mongodb"
	// or "memory". The first entry is the primary.
	Backends []string

	// Root is the graph directory used by the file backend and the cache.
	Root string

	// Mongo configures the "mongodb" backend.
	Mongo storage.MongoConfig

	// ExcludeRootFiles overrides the catch-all listing exclusions. Nil
	// keeps storage.DefaultExcludedRootFiles.
	ExcludeRootFiles []string

	// Fs overrides the filesystem under Root. Nil uses the OS.
	Fs afero.Fs

	// Remover overrides how deletions reach version control.
	Remover storage.Remover

	// OpenMongo overrides how the "mongodb" backend is opened. Nil connects
	// with storage.NewMongoBackend and provisions the collections.
	OpenMongo MongoFactory

	// Memory is used for the "memory" backend. Nil creates an empty one.
	Memory storage.Backend

	// SyncReporter receives sync progress.
	SyncReporter syncer.Reporter
}

// Env is an opened Store together with the backends behind it.
type Env struct {
	Store    *lazyjson.Store
	Cache    *storage.FileBackend
	Backends []storage.Backend
}

// DefaultMongo connects to MongoDB and creates any missing collections.
func DefaultMongo(ctx context.Context, cfg storage.MongoConfig, logger *slog.Logger) (storage.Backend, error) {
	b, err := storage.NewMongoBackend(ctx, cfg, storage.WithMongoLogger(logger))
	if err != nil {
		return nil, err
	}
	if err := b.Provision(ctx); err != nil {
		_ = b.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("provision mongodb: %w", err)
	}
	return b, nil
}

// Open builds every configured backend and the Store over them. The file
// cache is always created; when "file" is listed it is the same instance.
// On failure, backends opened so far are closed again.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (env *Env, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Backends) == 0 {
		return nil, errors.New("no backends configured")
	}
	if cfg.Root == "" {
		return nil, errors.New("graph root is empty")
	}
	openMongo := cfg.OpenMongo
	if openMongo == nil {
		openMongo = DefaultMongo
	}

	fopts := []storage.FileOption{storage.WithFileLogger(logger)}
	if cfg.Fs != nil {
		fopts = append(fopts, storage.WithFs(cfg.Fs))
	}
	if cfg.Remover != nil {
		fopts = append(fopts, storage.WithRemover(cfg.Remover))
	}
	if cfg.ExcludeRootFiles != nil {
		fopts = append(fopts, storage.WithExcludedRootFiles(cfg.ExcludeRootFiles...))
	}
	cache := storage.NewFileBackend(cfg.Root, fopts...)

	env = &Env{Cache: cache}
	defer func() {
		if err != nil {
			_ = env.Close(context.WithoutCancel(ctx))
			env = nil
		}
	}()

	seen := make(map[string]bool)
	for _, name := range cfg.Backends {
		if seen[name] {
			return env, fmt.Errorf("backend %q listed twice", name)
		}
		seen[name] = true

		var b storage.Backend
		switch name {
		case storage.FileBackendName:
			b = cache
		case storage.MongoBackendName:
			if b, err = openMongo(ctx, cfg.Mongo, logger); err != nil {
				return env, fmt.Errorf("open %s backend: %w", name, err)
			}
		case storage.MemoryBackendName:
			if b = cfg.Memory; b == nil {
				b = storage.NewMemoryBackend()
			}
		default:
			return env, fmt.Errorf("unknown backend %q", name)
		}
		env.Backends = append(env.Backends, b)
	}

	sopts := []lazyjson.Option{lazyjson.WithLogger(logger)}
	if cfg.SyncReporter != nil {
		sopts = append(sopts, lazyjson.WithSyncReporter(cfg.SyncReporter))
	}
	if env.Store, err = lazyjson.New(cache, env.Backends, sopts...); err != nil {
		return env, err
	}

	logger.Debug("bootstrap.open",
		"backends", cfg.Backends,
		"root", cfg.Root,
		"primary", env.Backends[0].Name(),
	)
	return env, nil
}

// Close closes every backend. The cache is closed once even when it is
// also listed as a backend.
func (e *Env) Close(ctx context.Context) error {
	var result *multierror.Error
	closedCache := false
	for _, b := range e.Backends {
		if b == storage.Backend(e.Cache) {
			closedCache = true
		}
		if err := b.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close %s: %w", b.Name(), err))
		}
	}
	if !closedCache && e.Cache != nil {
		if err := e.Cache.Close(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("close cache: %w", err))
		}
	}
	return result.ErrorOrNil()
}
