// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package testing

import (
	"context"
	"sort"
	"sync"

	"github.com/kraklabs/lazyjson/pkg/storage"
)

// Call is one recorded backend operation.
type Call struct {
	Op      string
	Hashmap storage.Hashmap
	Keys    []string
}

// Recorder wraps a Backend and records every call made through it.
type Recorder struct {
	storage.Backend

	name string

	mu    sync.Mutex
	calls []Call
}

// NewRecorder wraps inner. A non-empty name overrides inner's Name, which
// lets tests tell two backends of the same kind apart.
func NewRecorder(name string, inner storage.Backend) *Recorder {
	return &Recorder{Backend: inner, name: name}
}

func (r *Recorder) record(op string, h storage.Hashmap, keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Call{Op: op, Hashmap: h, Keys: append([]string(nil), keys...)})
}

// Calls returns the calls recorded for op, or all calls when op is empty.
func (r *Recorder) Calls(op string) []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.calls {
		if op == "" || c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Writes returns the number of Set, SetIfAbsent and MultiSet calls.
func (r *Recorder) Writes() int {
	return len(r.Calls("Set")) + len(r.Calls("SetIfAbsent")) + len(r.Calls("MultiSet"))
}

// Reset forgets all recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// Unwrap returns the wrapped backend.
func (r *Recorder) Unwrap() storage.Backend { return r.Backend }

// Name implements storage.Backend.
func (r *Recorder) Name() string {
	if r.name != "" {
		return r.name
	}
	return r.Backend.Name()
}

// Exists implements storage.Backend.
func (r *Recorder) Exists(ctx context.Context, h storage.Hashmap, key string) (bool, error) {
	r.record("Exists", h, key)
	return r.Backend.Exists(ctx, h, key)
}

// SetIfAbsent implements storage.Backend.
func (r *Recorder) SetIfAbsent(ctx context.Context, h storage.Hashmap, key, value string) (bool, error) {
	r.record("SetIfAbsent", h, key)
	return r.Backend.SetIfAbsent(ctx, h, key, value)
}

// Set implements storage.Backend.
func (r *Recorder) Set(ctx context.Context, h storage.Hashmap, key, value string) error {
	r.record("Set", h, key)
	return r.Backend.Set(ctx, h, key, value)
}

// MultiSet implements storage.Backend.
func (r *Recorder) MultiSet(ctx context.Context, h storage.Hashmap, mapping map[string]string) error {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	r.record("MultiSet", h, keys...)
	return r.Backend.MultiSet(ctx, h, mapping)
}

// Get implements storage.Backend.
func (r *Recorder) Get(ctx context.Context, h storage.Hashmap, key string) (string, error) {
	r.record("Get", h, key)
	return r.Backend.Get(ctx, h, key)
}

// MultiGet implements storage.Backend.
func (r *Recorder) MultiGet(ctx context.Context, h storage.Hashmap, keys []string) ([]string, error) {
	r.record("MultiGet", h, keys...)
	return r.Backend.MultiGet(ctx, h, keys)
}

// Delete implements storage.Backend.
func (r *Recorder) Delete(ctx context.Context, h storage.Hashmap, keys []string) error {
	r.record("Delete", h, keys...)
	return r.Backend.Delete(ctx, h, keys)
}

// ListKeys implements storage.Backend.
func (r *Recorder) ListKeys(ctx context.Context, h storage.Hashmap) ([]string, error) {
	r.record("ListKeys", h)
	return r.Backend.ListKeys(ctx, h)
}

// GetAll implements storage.Backend.
func (r *Recorder) GetAll(ctx context.Context, h storage.Hashmap, hashOnly bool) (map[string]string, error) {
	r.record("GetAll", h)
	return r.Backend.GetAll(ctx, h, hashOnly)
}

// Transaction implements storage.Backend.
func (r *Recorder) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	r.record("Transaction", "")
	return r.Backend.Transaction(ctx, fn)
}

// Snapshot implements storage.Backend.
func (r *Recorder) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	r.record("Snapshot", "")
	return r.Backend.Snapshot(ctx, fn)
}

var _ storage.Backend = (*Recorder)(nil)
