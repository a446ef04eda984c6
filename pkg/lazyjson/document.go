// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package lazyjson

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/kraklabs/lazyjson/pkg/codec"
	"github.com/kraklabs/lazyjson/pkg/storage"
)

// State is the lifecycle stage of a Document.
type State int

const (
	// Unloaded documents have never been read.
	Unloaded State = iota
	// Clean documents hold a value whose hash matches the baseline.
	Clean
	// Dirty documents are inside an edit scope.
	Dirty
	// Purged documents were loaded once and dropped their value.
	Purged
	// Unflushed documents hold edits whose write failed. Flush retries
	// it; a new Edit can repair the value first.
	Unflushed
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Clean:
		return "clean"
	case Dirty:
		return "dirty"
	case Purged:
		return "purged"
	case Unflushed:
		return "unflushed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Document is a lazily loaded JSON object bound to one node.
//
// Reads load the value on first use, from the file cache when present and
// from the primary otherwise. Writes are only possible through Edit. When
// the outermost Edit returns, the value is re-encoded and written out if
// its content hash changed, then dropped from memory.
//
// Get, Has, Len, Keys and Data may be called from several goroutines while
// no edit is open. Reads that overlap an Edit of the same Document are not
// safe, since an Editor hands out the live value. Concurrent edits of the
// same node are not coordinated and must be serialized by the caller.
type Document struct {
	store   *Store
	hashmap storage.Hashmap
	key     string

	mu       sync.Mutex
	data     map[string]any
	baseline string
	state    State
	editor   *Editor
	override []storage.Backend
}

// Hashmap returns the hashmap the document lives in.
func (d *Document) Hashmap() storage.Hashmap { return d.hashmap }

// Key returns the document key.
func (d *Document) Key() string { return d.key }

// LazyJSONName implements codec.Referencer, so a Document stored inside
// another document encodes as a weak reference.
func (d *Document) LazyJSONName() string { return NodeName(d.hashmap, d.key) }

// State returns the current lifecycle stage.
func (d *Document) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Get returns a copy of one field. The boolean reports whether the field
// exists.
func (d *Document) Get(ctx context.Context, field string) (any, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return nil, false, err
	}
	v, ok := d.data[field]
	if !ok {
		return nil, false, nil
	}
	return codec.Clone(v), true, nil
}

// Has reports whether field exists.
func (d *Document) Has(ctx context.Context, field string) (bool, error) {
	_, ok, err := d.Get(ctx, field)
	return ok, err
}

// Len returns the number of top-level fields.
func (d *Document) Len(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return 0, err
	}
	return len(d.data), nil
}

// Keys returns the top-level field names in sorted order.
func (d *Document) Keys(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(d.data))
	for k := range d.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// Data returns a deep copy of the whole value.
func (d *Document) Data(ctx context.Context) (map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.loadLocked(ctx); err != nil {
		return nil, err
	}
	return codec.Clone(d.data).(map[string]any), nil
}

// Edit loads the document and runs fn with an Editor. When the outermost
// Edit returns, the document is flushed and purged, also when fn fails or
// panics. Errors from fn and from the flush are both reported. If the
// flush fails the document is left Unflushed, holding a copy of the value
// that no Editor reference can reach.
//
// Calling Edit again from inside fn reuses the open Editor; only the
// outermost call flushes.
func (d *Document) Edit(ctx context.Context, fn func(e *Editor) error) (err error) {
	d.mu.Lock()
	if e := d.editor; e != nil {
		d.mu.Unlock()
		return fn(e)
	}
	if err := d.loadLocked(ctx); err != nil {
		d.mu.Unlock()
		return err
	}
	e := &Editor{doc: d}
	d.editor = e
	d.state = Dirty
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		e.closed = true
		d.editor = nil
		if flushErr := d.dumpLocked(ctx, true, false); flushErr != nil {
			d.detachLocked()
			if err == nil {
				err = flushErr
			} else {
				err = multierror.Append(err, flushErr)
			}
		}
	}()
	return fn(e)
}

// Flush writes the document out if it changed since it was loaded. The
// value stays in memory.
func (d *Document) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dumpLocked(ctx, false, false)
}

// FlushToBackends writes the document to the cache and every backend even
// if it is unchanged. A document that was not in memory is dropped again
// afterwards.
func (d *Document) FlushToBackends(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	purge := d.data == nil
	return d.dumpLocked(ctx, purge, true)
}

// Purge drops the in-memory value. The next read reloads it from the
// cache. Purge has no effect inside an edit scope.
func (d *Document) Purge() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.editor != nil {
		return
	}
	d.purgeLocked()
}

// WithBackends runs fn with the document bound to backends instead of the
// store's configured list. backends[0] acts as the primary for loads; every
// non-file entry receives flushes. Calls nest; the previous binding is
// restored when fn returns.
func (d *Document) WithBackends(backends []storage.Backend, fn func() error) error {
	if len(backends) == 0 {
		return errors.New("lazyjson: override needs at least one backend")
	}
	d.mu.Lock()
	prev := d.override
	d.override = append([]storage.Backend(nil), backends...)
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.override = prev
		d.mu.Unlock()
	}()
	return fn()
}

func (d *Document) backendsLocked() []storage.Backend {
	if d.override != nil {
		return d.override
	}
	return d.store.backends
}

func (d *Document) loadLocked(ctx context.Context) error {
	if d.data != nil {
		return nil
	}
	cache := d.store.cache
	h, key := d.hashmap, d.key

	cached, err := cache.Exists(ctx, h, key)
	if err != nil {
		return fmt.Errorf("load %s: %w", d.LazyJSONName(), err)
	}
	var text, source string
	if cached {
		source = "cache"
		if text, err = cache.Get(ctx, h, key); err != nil {
			return fmt.Errorf("load %s from cache: %w", d.LazyJSONName(), err)
		}
	} else {
		source = "primary"
		primary := d.backendsLocked()[0]
		if _, err := primary.SetIfAbsent(ctx, h, key, emptyObject); err != nil {
			return fmt.Errorf("create %s in %s: %w", d.LazyJSONName(), primary.Name(), err)
		}
		if text, err = primary.Get(ctx, h, key); err != nil {
			return fmt.Errorf("load %s from %s: %w", d.LazyJSONName(), primary.Name(), err)
		}
		if !storage.IsFile(primary) {
			if err := cache.Set(ctx, h, key, text); err != nil {
				return fmt.Errorf("cache %s: %w", d.LazyJSONName(), err)
			}
		}
	}

	v, err := codec.UnmarshalString(text)
	if err != nil {
		return fmt.Errorf("decode %s: %w", d.LazyJSONName(), err)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return fmt.Errorf("decode %s: top-level value is %T, not an object", d.LazyJSONName(), v)
	}
	d.data = obj
	d.baseline = codec.HashString(text)
	if d.state != Dirty {
		d.state = Clean
	}
	recordLoad(string(h), source)
	d.store.logger.Debug("lazyjson.load", "name", d.LazyJSONName(), "source", source)
	return nil
}

func (d *Document) dumpLocked(ctx context.Context, purge, force bool) error {
	if err := d.loadLocked(ctx); err != nil {
		return err
	}
	text, err := codec.MarshalString(d.data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", d.LazyJSONName(), err)
	}
	sum := codec.HashString(text)
	if sum != d.baseline || force {
		if err := d.store.cache.Set(ctx, d.hashmap, d.key, text); err != nil {
			return fmt.Errorf("write %s to cache: %w", d.LazyJSONName(), err)
		}
		for _, b := range d.backendsLocked() {
			if storage.IsFile(b) {
				continue
			}
			if err := b.Set(ctx, d.hashmap, d.key, text); err != nil {
				return fmt.Errorf("write %s to %s: %w", d.LazyJSONName(), b.Name(), err)
			}
		}
		d.baseline = sum
		recordFlush(string(d.hashmap))
		d.store.logger.Debug("lazyjson.flush", "name", d.LazyJSONName(), "forced", force)
	} else {
		recordSkip(string(d.hashmap))
	}

	if purge {
		d.purgeLocked()
	} else if d.editor == nil {
		d.state = Clean
	}
	return nil
}

// detachLocked keeps an unwritten value for a later retry, cut off from
// any map an Editor returned.
func (d *Document) detachLocked() {
	if d.data == nil {
		d.purgeLocked()
		return
	}
	d.data = codec.Clone(d.data).(map[string]any)
	d.state = Unflushed
}

func (d *Document) purgeLocked() {
	if d.data == nil && d.state == Unloaded {
		return
	}
	d.data = nil
	d.baseline = ""
	d.state = Purged
}

var _ codec.Referencer = (*Document)(nil)
