// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/kraklabs/lazyjson/pkg/codec"
)

// MemoryBackendName is the configuration name of the in-memory backend.
const MemoryBackendName = "memory"

// MemoryBackend keeps every hashmap in process memory. It is safe for
// concurrent use and mostly useful as a secondary in tests and dry runs.
type MemoryBackend struct {
	mu     sync.RWMutex
	data   map[Hashmap]map[string]string
	closed bool
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[Hashmap]map[string]string)}
}

// Name implements Backend.
func (m *MemoryBackend) Name() string { return MemoryBackendName }

func (m *MemoryBackend) check(h Hashmap) error {
	if m.closed {
		return ErrClosed
	}
	return h.Validate()
}

// Exists implements Backend.
func (m *MemoryBackend) Exists(_ context.Context, h Hashmap, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(h); err != nil {
		return false, err
	}
	_, ok := m.data[h][key]
	return ok, nil
}

// SetIfAbsent implements Backend.
func (m *MemoryBackend) SetIfAbsent(_ context.Context, h Hashmap, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(h); err != nil {
		return false, err
	}
	if _, ok := m.data[h][key]; ok {
		return false, nil
	}
	m.bucket(h)[key] = value
	return true, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, h Hashmap, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(h); err != nil {
		return err
	}
	m.bucket(h)[key] = value
	return nil
}

// MultiSet implements Backend.
func (m *MemoryBackend) MultiSet(_ context.Context, h Hashmap, mapping map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(h); err != nil {
		return err
	}
	bucket := m.bucket(h)
	for k, v := range mapping {
		bucket[k] = v
	}
	return nil
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, h Hashmap, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(h); err != nil {
		return "", err
	}
	v, ok := m.data[h][key]
	if !ok {
		return "", notFound(h, key)
	}
	return v, nil
}

// MultiGet implements Backend.
func (m *MemoryBackend) MultiGet(_ context.Context, h Hashmap, keys []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(h); err != nil {
		return nil, err
	}
	out := make([]string, len(keys))
	for i, key := range keys {
		v, ok := m.data[h][key]
		if !ok {
			return nil, notFound(h, key)
		}
		out[i] = v
	}
	return out, nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, h Hashmap, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(h); err != nil {
		return err
	}
	for _, key := range keys {
		delete(m.data[h], key)
	}
	return nil
}

// ListKeys implements Backend.
func (m *MemoryBackend) ListKeys(_ context.Context, h Hashmap) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(h); err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(m.data[h]))
	for k := range m.data[h] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

// GetAll implements Backend.
func (m *MemoryBackend) GetAll(_ context.Context, h Hashmap, hashOnly bool) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check(h); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(m.data[h]))
	for k, v := range m.data[h] {
		if hashOnly {
			v = codec.HashString(v)
		}
		out[k] = v
	}
	return out, nil
}

// Transaction implements Backend.
func (m *MemoryBackend) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScope(ctx, fn)
}

// Snapshot implements Backend.
func (m *MemoryBackend) Snapshot(ctx context.Context, fn func(ctx context.Context) error) error {
	return runScope(ctx, fn)
}

// Close implements Backend. Later calls fail with ErrClosed.
func (m *MemoryBackend) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Len returns the number of keys stored in h.
func (m *MemoryBackend) Len(h Hashmap) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data[h])
}

func (m *MemoryBackend) bucket(h Hashmap) map[string]string {
	b, ok := m.data[h]
	if !ok {
		b = make(map[string]string)
		m.data[h] = b
	}
	return b
}

var _ Backend = (*MemoryBackend)(nil)
