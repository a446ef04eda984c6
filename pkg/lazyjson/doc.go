// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

// Package lazyjson provides lazily loaded, content-addressed JSON documents
// on top of the storage backends.
//
// A Store is built from the local file cache and an ordered list of
// backends whose first entry is the primary:
//
//	store, err := lazyjson.New(cache, []storage.Backend{mongo, cache})
//	doc, err := store.Open(ctx, "node_attrs/numpy.json")
//
// Opening a document does no I/O. The first read loads it from the cache,
// or from the primary when the cache misses, in which case the cache is
// filled. Mutation happens only inside Edit:
//
//	err = doc.Edit(ctx, func(e *lazyjson.Editor) error {
//	    e.Set("version", "1.26.4")
//	    return nil
//	})
//
// When Edit returns, the document is re-encoded and hashed. If the hash
// differs from the one recorded at load, the new text is written to the
// cache and to every non-file backend. The value is then dropped from
// memory so long-lived handles stay cheap.
//
// Documents placed inside other documents are stored as weak references
// ({"__lazy_json__": "<name>"}) and come back as codec.Ref values, which
// Store.Resolve turns into handles again.
package lazyjson
