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

package storage

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by every backend.
var (
	// ErrNotFound is returned by Get and MultiGet when a key is absent.
	// Callers are expected to create documents with SetIfAbsent first, so
	// this signals a broken precondition rather than a retryable condition.
	ErrNotFound = errors.New("key not found")

	// ErrUnknownHashmap is returned for hashmap names outside the known set.
	ErrUnknownHashmap = errors.New("unknown hashmap")

	// ErrClosed is returned by backends used after Close.
	ErrClosed = errors.New("backend is closed")
)

// Backend is the interface that all storage backends must implement.
//
// Every operation is scoped to one hashmap. Values are canonical serialized
// documents as produced by the codec package; backends never interpret them
// beyond what they need to hash or index them.
type Backend interface {
	// Name is the identifier used in configuration ("file", "mongodb").
	Name() string

	// Exists reports whether key is present.
	Exists(ctx context.Context, h Hashmap, key string) (bool, error)

	// SetIfAbsent stores value only when key is missing and reports
	// whether it inserted. An existing value is never overwritten.
	SetIfAbsent(ctx context.Context, h Hashmap, key, value string) (bool, error)

	// Set stores value unconditionally.
	Set(ctx context.Context, h Hashmap, key, value string) error

	// MultiSet stores every entry of mapping unconditionally.
	MultiSet(ctx context.Context, h Hashmap, mapping map[string]string) error

	// Get returns the value for key or an error wrapping ErrNotFound.
	Get(ctx context.Context, h Hashmap, key string) (string, error)

	// MultiGet returns values aligned with keys. Every key must exist.
	MultiGet(ctx context.Context, h Hashmap, keys []string) ([]string, error)

	// Delete removes keys. Missing keys are ignored.
	Delete(ctx context.Context, h Hashmap, keys []string) error

	// ListKeys returns every key of the hashmap in ascending order.
	ListKeys(ctx context.Context, h Hashmap) ([]string, error)

	// GetAll returns key -> value, or key -> content hash when hashOnly
	// is set. Backends answer hashOnly without materializing values
	// wherever they can.
	GetAll(ctx context.Context, h Hashmap, hashOnly bool) (map[string]string, error)

	// Transaction runs fn inside a write transaction. The transaction is
	// committed when fn returns nil and aborted otherwise, including on
	// panic. Nested calls with the context handed to fn join the outer
	// transaction.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Snapshot runs fn against a causally consistent read view. Backends
	// without snapshot support run fn directly.
	Snapshot(ctx context.Context, fn func(ctx context.Context) error) error

	// Close releases any resources held by the backend.
	Close(ctx context.Context) error
}

// SetIfAbsentGeneric implements SetIfAbsent as Exists followed by Set for
// backends without an atomic primitive.
func SetIfAbsentGeneric(ctx context.Context, b Backend, h Hashmap, key, value string) (bool, error) {
	ok, err := b.Exists(ctx, h, key)
	if err != nil {
		return false, err
	}
	if ok {
		return false, nil
	}
	if err := b.Set(ctx, h, key, value); err != nil {
		return false, err
	}
	return true, nil
}

// IsFile reports whether b is the local file backend, looking through
// wrappers that expose Unwrap.
func IsFile(b Backend) bool {
	for {
		switch x := b.(type) {
		case *FileBackend:
			return true
		case interface{ Unwrap() Backend }:
			b = x.Unwrap()
		default:
			return false
		}
	}
}

func notFound(h Hashmap, key string) error {
	return fmt.Errorf("%w: %s/%s", ErrNotFound, h, key)
}

// runScope calls fn, the shared body of backends whose transaction and
// snapshot scopes are no-ops.
func runScope(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
